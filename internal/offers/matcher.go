package offers

import (
	"context"

	"github.com/tcche/orderbump/internal/catalog"
	"github.com/tcche/orderbump/internal/metrics"
	"github.com/tcche/orderbump/internal/models"
	"github.com/tcche/orderbump/internal/storage"
	"go.uber.org/zap"
)

// SelectedOffer is one renderable offer: the bump plus the resolved
// product and its computed prices.
type SelectedOffer struct {
	Bump      *models.Bump     `json:"bump"`
	Product   *catalog.Product `json:"product"`
	BasePrice float64          `json:"base_price"`
	BumpPrice float64          `json:"bump_price"`
	Savings   float64          `json:"savings"`
}

// Matcher selects which active bumps render at a checkout placement for
// the current cart contents.
type Matcher struct {
	repo      storage.BumpRepo
	catalog   catalog.Catalog
	analytics *AnalyticsService
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewMatcher(repo storage.BumpRepo, cat catalog.Catalog, analytics *AnalyticsService, m *metrics.Metrics, logger *zap.Logger) *Matcher {
	return &Matcher{
		repo:      repo,
		catalog:   cat,
		analytics: analytics,
		metrics:   m,
		logger:    logger,
	}
}

// SelectOffers walks active bumps in store order and applies, in
// sequence: the placement filter, the already-in-cart filter, the
// trigger filter, and the purchasability filter. Each returned match
// fires one impression for the session, subject to the analytics dedup
// window. Bumps whose product no longer resolves are skipped silently.
func (m *Matcher) SelectOffers(ctx context.Context, placement models.Placement, sessionID string, userID int64, cartProductIDs, cartCategoryIDs []int64) ([]*SelectedOffer, error) {
	bumps, err := m.repo.List(ctx, models.BumpStatusActive)
	if err != nil {
		return nil, err
	}

	cartProducts := toSet(cartProductIDs)
	cartCategories := toSet(cartCategoryIDs)

	var selected []*SelectedOffer
	for _, b := range bumps {
		if b.Position != placement {
			continue
		}
		if cartProducts[b.BumpProductID] {
			m.skip("already_in_cart")
			continue
		}
		if !triggered(b, cartProducts, cartCategories) {
			m.skip("no_trigger_match")
			continue
		}

		product, err := m.catalog.GetProduct(ctx, b.BumpProductID)
		if err != nil {
			m.logger.Warn("catalog lookup failed, skipping bump",
				zap.Int64("bump_id", b.ID),
				zap.Int64("product_id", b.BumpProductID),
				zap.Error(err),
			)
			m.skip("catalog_error")
			continue
		}
		if product == nil || !product.Purchasable {
			m.skip("not_purchasable")
			continue
		}

		bumpPrice := b.Price(product.Price)
		selected = append(selected, &SelectedOffer{
			Bump:      b,
			Product:   product,
			BasePrice: product.Price,
			BumpPrice: bumpPrice,
			Savings:   models.Round2(product.Price - bumpPrice),
		})

		if m.metrics != nil {
			m.metrics.OffersSelected.WithLabelValues(string(placement)).Inc()
		}
		if err := m.analytics.TrackImpression(ctx, b.ID, sessionID, userID); err != nil {
			// A failed impression write never blocks rendering.
			m.logger.Warn("failed to track impression",
				zap.Int64("bump_id", b.ID),
				zap.Error(err),
			)
		}
	}
	return selected, nil
}

// triggered applies the trigger-condition rule: unconditional when both
// sets are empty, otherwise any product or category intersection shows
// the bump.
func triggered(b *models.Bump, cartProducts, cartCategories map[int64]bool) bool {
	if len(b.TriggerProductIDs) == 0 && len(b.TriggerCategoryIDs) == 0 {
		return true
	}
	for _, id := range b.TriggerProductIDs {
		if cartProducts[id] {
			return true
		}
	}
	for _, id := range b.TriggerCategoryIDs {
		if cartCategories[id] {
			return true
		}
	}
	return false
}

func (m *Matcher) skip(reason string) {
	if m.metrics != nil {
		m.metrics.OffersSkipped.WithLabelValues(reason).Inc()
	}
}

func toSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// CartCategories resolves the union of category ids for the given cart
// products. Unresolvable products contribute nothing.
func CartCategories(ctx context.Context, cat catalog.Catalog, productIDs []int64) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, pid := range productIDs {
		p, err := cat.GetProduct(ctx, pid)
		if err != nil || p == nil {
			continue
		}
		for _, cid := range p.CategoryIDs {
			if !seen[cid] {
				seen[cid] = true
				ids = append(ids, cid)
			}
		}
	}
	return ids
}
