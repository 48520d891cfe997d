package offers

import (
	"context"
	"testing"
	"time"

	"github.com/tcche/orderbump/internal/catalog"
	"github.com/tcche/orderbump/internal/models"
	"github.com/tcche/orderbump/internal/storage"
	"go.uber.org/zap"
)

func newTestMatcher(t *testing.T, bumps []*models.Bump, products ...*catalog.Product) (*Matcher, *storage.InMemoryAnalyticsStore) {
	t.Helper()
	repo := storage.NewInMemoryBumpRepo()
	for _, b := range bumps {
		b.Normalize()
		if err := repo.Create(context.Background(), b); err != nil {
			t.Fatalf("seed bump: %v", err)
		}
	}
	events := storage.NewInMemoryAnalyticsStore()
	analytics := NewAnalyticsService(events, repo, nil, time.Hour, nil, zap.NewNop())
	cat := catalog.NewStaticCatalog(products...)
	return NewMatcher(repo, cat, analytics, nil, zap.NewNop()), events
}

func activeBump(productID int64) *models.Bump {
	return &models.Bump{
		Title:         "Test Bump",
		Status:        models.BumpStatusActive,
		BumpProductID: productID,
		Position:      models.PlacementAfterOrderReview,
	}
}

func purchasable(id int64, price float64, categories ...int64) *catalog.Product {
	return &catalog.Product{ID: id, Name: "Product", Price: price, Purchasable: true, CategoryIDs: categories}
}

func TestSelectOffersEmptyTriggersMatchAnyCart(t *testing.T) {
	m, _ := newTestMatcher(t, []*models.Bump{activeBump(10)}, purchasable(10, 19.99))

	offers, err := m.SelectOffers(context.Background(), models.PlacementAfterOrderReview, "sess-1", 0, []int64{99}, nil)
	if err != nil {
		t.Fatalf("SelectOffers: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("got %d offers, want 1", len(offers))
	}
	if offers[0].BasePrice != 19.99 || offers[0].BumpPrice != 19.99 {
		t.Errorf("got base=%v bump=%v, want 19.99 for both", offers[0].BasePrice, offers[0].BumpPrice)
	}
}

func TestSelectOffersPlacementFilter(t *testing.T) {
	b := activeBump(10)
	b.Position = models.PlacementBeforePayment
	m, _ := newTestMatcher(t, []*models.Bump{b}, purchasable(10, 5))

	offers, err := m.SelectOffers(context.Background(), models.PlacementAfterOrderReview, "sess-1", 0, []int64{1}, nil)
	if err != nil {
		t.Fatalf("SelectOffers: %v", err)
	}
	if len(offers) != 0 {
		t.Fatalf("got %d offers at wrong placement, want 0", len(offers))
	}

	offers, err = m.SelectOffers(context.Background(), models.PlacementBeforePayment, "sess-1", 0, []int64{1}, nil)
	if err != nil {
		t.Fatalf("SelectOffers: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("got %d offers at configured placement, want 1", len(offers))
	}
}

func TestSelectOffersNeverOffersProductAlreadyInCart(t *testing.T) {
	m, _ := newTestMatcher(t, []*models.Bump{activeBump(10)}, purchasable(10, 5))

	offers, err := m.SelectOffers(context.Background(), models.PlacementAfterOrderReview, "sess-1", 0, []int64{10}, nil)
	if err != nil {
		t.Fatalf("SelectOffers: %v", err)
	}
	if len(offers) != 0 {
		t.Fatalf("offered a product the cart already contains")
	}
}

func TestSelectOffersTriggerIntersection(t *testing.T) {
	b := activeBump(10)
	b.TriggerProductIDs = []int64{1, 2}
	b.TriggerCategoryIDs = []int64{7}
	m, _ := newTestMatcher(t, []*models.Bump{b}, purchasable(10, 5))

	tests := []struct {
		name       string
		products   []int64
		categories []int64
		want       int
	}{
		{"product match", []int64{2, 3}, nil, 1},
		{"category match", []int64{3}, []int64{7}, 1},
		{"no match", []int64{3}, []int64{8}, 0},
		{"empty cart", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offers, err := m.SelectOffers(context.Background(), models.PlacementAfterOrderReview, "sess-"+tt.name, 0, tt.products, tt.categories)
			if err != nil {
				t.Fatalf("SelectOffers: %v", err)
			}
			if len(offers) != tt.want {
				t.Errorf("got %d offers, want %d", len(offers), tt.want)
			}
		})
	}
}

func TestSelectOffersSkipsUnresolvableAndUnpurchasable(t *testing.T) {
	missing := activeBump(10)
	outOfStock := activeBump(11)
	inStock := activeBump(12)
	m, _ := newTestMatcher(t, []*models.Bump{missing, outOfStock, inStock},
		&catalog.Product{ID: 11, Name: "Out", Price: 5, Purchasable: false},
		purchasable(12, 5),
	)

	offers, err := m.SelectOffers(context.Background(), models.PlacementAfterOrderReview, "sess-1", 0, []int64{1}, nil)
	if err != nil {
		t.Fatalf("SelectOffers: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("got %d offers, want 1", len(offers))
	}
	if offers[0].Bump.BumpProductID != 12 {
		t.Errorf("got product %d, want 12", offers[0].Bump.BumpProductID)
	}
}

func TestSelectOffersIgnoresDraftBumps(t *testing.T) {
	draft := activeBump(10)
	draft.Status = models.BumpStatusDraft
	m, _ := newTestMatcher(t, []*models.Bump{draft}, purchasable(10, 5))

	offers, err := m.SelectOffers(context.Background(), models.PlacementAfterOrderReview, "sess-1", 0, []int64{1}, nil)
	if err != nil {
		t.Fatalf("SelectOffers: %v", err)
	}
	if len(offers) != 0 {
		t.Fatalf("draft bump was offered")
	}
}

func TestSelectOffersDiscountedPrice(t *testing.T) {
	b := activeBump(10)
	b.DiscountType = models.DiscountPercentage
	b.DiscountValue = 20
	m, _ := newTestMatcher(t, []*models.Bump{b}, purchasable(10, 50))

	offers, err := m.SelectOffers(context.Background(), models.PlacementAfterOrderReview, "sess-1", 0, []int64{1}, nil)
	if err != nil {
		t.Fatalf("SelectOffers: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("got %d offers, want 1", len(offers))
	}
	if offers[0].BumpPrice != 40.00 {
		t.Errorf("got bump price %v, want 40.00", offers[0].BumpPrice)
	}
	if offers[0].Savings != 10.00 {
		t.Errorf("got savings %v, want 10.00", offers[0].Savings)
	}
}

func TestSelectOffersRecordsOneImpressionPerMatch(t *testing.T) {
	m, events := newTestMatcher(t, []*models.Bump{activeBump(10)}, purchasable(10, 5))

	for i := 0; i < 3; i++ {
		if _, err := m.SelectOffers(context.Background(), models.PlacementAfterOrderReview, "sess-1", 0, []int64{1}, nil); err != nil {
			t.Fatalf("SelectOffers: %v", err)
		}
	}

	now := time.Now().UTC()
	totals, err := events.Totals(context.Background(), 0, now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if totals.Impressions != 1 {
		t.Errorf("got %d impressions for repeated views in window, want 1", totals.Impressions)
	}
}

func TestCartCategoriesUnion(t *testing.T) {
	cat := catalog.NewStaticCatalog(
		purchasable(1, 5, 7, 8),
		purchasable(2, 5, 8, 9),
	)

	got := CartCategories(context.Background(), cat, []int64{1, 2, 99})
	want := map[int64]bool{7: true, 8: true, 9: true}
	if len(got) != len(want) {
		t.Fatalf("got %v, want categories 7,8,9", got)
	}
	for _, id := range got {
		if !want[id] {
			t.Errorf("unexpected category %d", id)
		}
	}
}
