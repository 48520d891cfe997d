package offers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tcche/orderbump/internal/cart"
	"github.com/tcche/orderbump/internal/catalog"
	"github.com/tcche/orderbump/internal/models"
	"github.com/tcche/orderbump/internal/storage"
	"go.uber.org/zap"
)

type checkoutFixture struct {
	svc       *CheckoutService
	analytics *AnalyticsService
	repo      *storage.InMemoryBumpRepo
	catalog   *catalog.StaticCatalog
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	repo := storage.NewInMemoryBumpRepo()
	events := storage.NewInMemoryAnalyticsStore()
	analytics := NewAnalyticsService(events, repo, nil, time.Hour, nil, zap.NewNop())
	cat := catalog.NewStaticCatalog(
		&catalog.Product{ID: 1, Name: "Widget", Price: 25, Purchasable: true},
		&catalog.Product{ID: 2, Name: "Gadget", Price: 50, Purchasable: true},
		&catalog.Product{ID: 3, Name: "Gone", Price: 10, Purchasable: false},
	)
	return &checkoutFixture{
		svc:       NewCheckoutService(cart.NewInMemoryStore(), cat, repo, analytics, nil, zap.NewNop()),
		analytics: analytics,
		repo:      repo,
		catalog:   cat,
	}
}

func (f *checkoutFixture) seedBump(t *testing.T, b *models.Bump) *models.Bump {
	t.Helper()
	b.Normalize()
	if err := f.repo.Create(context.Background(), b); err != nil {
		t.Fatalf("seed bump: %v", err)
	}
	return b
}

func TestAddItemAndCartTotals(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	c, err := f.svc.AddItem(ctx, "sess-1", 1, 2)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if len(c.Items) != 1 || c.Items[0].Quantity != 2 {
		t.Fatalf("got items %+v, want one line qty 2", c.Items)
	}
	if c.Total != 50.00 {
		t.Errorf("got total %v, want 50.00", c.Total)
	}

	// Adding the same product again merges quantity.
	c, err = f.svc.AddItem(ctx, "sess-1", 1, 1)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if len(c.Items) != 1 || c.Items[0].Quantity != 3 {
		t.Errorf("got items %+v, want one merged line qty 3", c.Items)
	}
}

func TestAddItemUnavailableProduct(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	if _, err := f.svc.AddItem(ctx, "sess-1", 3, 1); !errors.Is(err, ErrProductUnavailable) {
		t.Errorf("got err %v for out-of-stock product, want ErrProductUnavailable", err)
	}
	if _, err := f.svc.AddItem(ctx, "sess-1", 99, 1); !errors.Is(err, ErrProductUnavailable) {
		t.Errorf("got err %v for missing product, want ErrProductUnavailable", err)
	}
}

func TestAcceptBumpAddsDiscountedTaggedLine(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	b := f.seedBump(t, &models.Bump{
		Title:         "Gadget Deal",
		Status:        models.BumpStatusActive,
		BumpProductID: 2,
		DiscountType:  models.DiscountPercentage,
		DiscountValue: 20,
	})

	if _, err := f.svc.AddItem(ctx, "sess-1", 1, 1); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	c, err := f.svc.AcceptBump(ctx, "sess-1", b.ID)
	if err != nil {
		t.Fatalf("AcceptBump: %v", err)
	}

	line := c.FindBump("1")
	if line == nil {
		t.Fatalf("no bump-tagged line in cart: %+v", c.Items)
	}
	if line.UnitPrice != 40.00 {
		t.Errorf("got unit price %v, want 40.00", line.UnitPrice)
	}
	if line.Meta[cart.MetaPriceOverride] != "40.00" {
		t.Errorf("got price override %q, want 40.00", line.Meta[cart.MetaPriceOverride])
	}
	if c.Total != 65.00 {
		t.Errorf("got total %v, want 65.00", c.Total)
	}

	// Accepting twice is a no-op.
	c, err = f.svc.AcceptBump(ctx, "sess-1", b.ID)
	if err != nil {
		t.Fatalf("AcceptBump again: %v", err)
	}
	if len(c.Items) != 2 {
		t.Errorf("got %d items after repeat accept, want 2", len(c.Items))
	}
}

func TestAcceptBumpRejectsDraftAndMissing(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	draft := f.seedBump(t, &models.Bump{Title: "Draft", Status: models.BumpStatusDraft, BumpProductID: 2})

	if _, err := f.svc.AcceptBump(ctx, "sess-1", draft.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("got err %v for draft bump, want ErrNotFound", err)
	}
	if _, err := f.svc.AcceptBump(ctx, "sess-1", 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("got err %v for missing bump, want ErrNotFound", err)
	}
}

func TestRemoveBump(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	b := f.seedBump(t, &models.Bump{Title: "Deal", Status: models.BumpStatusActive, BumpProductID: 2})

	if _, err := f.svc.AcceptBump(ctx, "sess-1", b.ID); err != nil {
		t.Fatalf("AcceptBump: %v", err)
	}
	c, err := f.svc.RemoveBump(ctx, "sess-1", b.ID)
	if err != nil {
		t.Fatalf("RemoveBump: %v", err)
	}
	if len(c.Items) != 0 {
		t.Errorf("got %d items after removal, want 0", len(c.Items))
	}

	// Removing again is a no-op.
	if _, err := f.svc.RemoveBump(ctx, "sess-1", b.ID); err != nil {
		t.Errorf("RemoveBump on empty cart: %v", err)
	}
}

func TestFinalizeEmptyCart(t *testing.T) {
	f := newCheckoutFixture(t)

	if _, err := f.svc.Finalize(context.Background(), "sess-1", 0); !errors.Is(err, ErrEmptyCart) {
		t.Errorf("got err %v, want ErrEmptyCart", err)
	}
}

func TestFinalizeRecordsConversionsAndClearsCart(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	b := f.seedBump(t, &models.Bump{
		Title:         "Gadget Deal",
		Status:        models.BumpStatusActive,
		BumpProductID: 2,
		DiscountType:  models.DiscountFixed,
		DiscountValue: 10,
	})

	if _, err := f.svc.AddItem(ctx, "sess-1", 1, 1); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if _, err := f.svc.AcceptBump(ctx, "sess-1", b.ID); err != nil {
		t.Fatalf("AcceptBump: %v", err)
	}

	order, err := f.svc.Finalize(ctx, "sess-1", 42)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if order.OrderID == "" {
		t.Error("order id is empty")
	}
	if order.Total != 65.00 {
		t.Errorf("got order total %v, want 65.00", order.Total)
	}

	from, to := f.analytics.ParseRange("", "")
	stats, err := f.analytics.Summary(ctx, b.ID, from, to)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if stats.Conversions != 1 {
		t.Errorf("got %d conversions, want 1", stats.Conversions)
	}
	if stats.TotalRevenue != 40.00 {
		t.Errorf("got revenue %v, want 40.00", stats.TotalRevenue)
	}

	c, err := f.svc.Cart(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Cart: %v", err)
	}
	if len(c.Items) != 0 {
		t.Errorf("cart not cleared after finalize")
	}
}

func TestEndToEndOfferFlow(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	b := f.seedBump(t, &models.Bump{
		Title:             "20 Percent Off Gadget",
		Status:            models.BumpStatusActive,
		BumpProductID:     2,
		TriggerProductIDs: []int64{1},
		DiscountType:      models.DiscountPercentage,
		DiscountValue:     20,
	})
	matcher := NewMatcher(f.repo, f.catalog, f.analytics, nil, zap.NewNop())

	if _, err := f.svc.AddItem(ctx, "sess-1", 1, 1); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	c, err := f.svc.Cart(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Cart: %v", err)
	}

	offers, err := matcher.SelectOffers(ctx, models.PlacementAfterOrderReview, "sess-1", 0, c.ProductIDs(), nil)
	if err != nil {
		t.Fatalf("SelectOffers: %v", err)
	}
	if len(offers) != 1 || offers[0].BumpPrice != 40.00 {
		t.Fatalf("got offers %+v, want one at 40.00", offers)
	}

	if _, err := f.svc.AcceptBump(ctx, "sess-1", b.ID); err != nil {
		t.Fatalf("AcceptBump: %v", err)
	}
	if _, err := f.svc.Finalize(ctx, "sess-1", 0); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	from, to := f.analytics.ParseRange("", "")
	stats, err := f.analytics.Summary(ctx, b.ID, from, to)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if stats.Impressions != 1 || stats.Conversions != 1 {
		t.Errorf("got imp=%d conv=%d, want 1/1", stats.Impressions, stats.Conversions)
	}
	if stats.TotalRevenue != 40.00 {
		t.Errorf("got revenue %v, want 40.00", stats.TotalRevenue)
	}
	if stats.ConversionRate != 100.00 {
		t.Errorf("got conversion rate %v, want 100.00", stats.ConversionRate)
	}
}
