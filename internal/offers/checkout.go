package offers

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/tcche/orderbump/internal/cart"
	"github.com/tcche/orderbump/internal/catalog"
	"github.com/tcche/orderbump/internal/metrics"
	"github.com/tcche/orderbump/internal/models"
	"github.com/tcche/orderbump/internal/storage"
	"go.uber.org/zap"
)

// Order is the result of finalizing a checkout session.
type Order struct {
	OrderID string          `json:"order_id"`
	Items   []cart.LineItem `json:"items"`
	Total   float64         `json:"total"`
}

// CheckoutService owns the session cart during the offer flow: adding
// regular items, accepting and removing bump offers, and finalizing the
// session into an order with conversion attribution.
type CheckoutService struct {
	carts     cart.Store
	catalog   catalog.Catalog
	repo      storage.BumpRepo
	analytics *AnalyticsService
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewCheckoutService(carts cart.Store, cat catalog.Catalog, repo storage.BumpRepo, analytics *AnalyticsService, m *metrics.Metrics, logger *zap.Logger) *CheckoutService {
	return &CheckoutService{
		carts:     carts,
		catalog:   cat,
		repo:      repo,
		analytics: analytics,
		metrics:   m,
		logger:    logger,
	}
}

// Cart returns the session's cart, empty when none exists yet.
func (s *CheckoutService) Cart(ctx context.Context, sessionID string) (*cart.Cart, error) {
	return s.carts.Get(ctx, sessionID)
}

// AddItem resolves the product and adds it to the session cart at catalog
// price. Unresolvable or unpurchasable products are rejected.
func (s *CheckoutService) AddItem(ctx context.Context, sessionID string, productID int64, quantity int) (*cart.Cart, error) {
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil || !product.Purchasable {
		return nil, ErrProductUnavailable
	}

	c, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	c.AddItem(productID, product.Name, quantity, product.Price, nil)
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveItem removes a cart line by key.
func (s *CheckoutService) RemoveItem(ctx context.Context, sessionID, key string) (*cart.Cart, error) {
	c, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !c.RemoveItem(key) {
		return nil, ErrNotFound
	}
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AcceptBump adds the bump's product to the cart at the discounted price,
// tagged with the bump id. Accepting an already-accepted bump is a no-op
// returning the current cart. Only active bumps can be accepted.
func (s *CheckoutService) AcceptBump(ctx context.Context, sessionID string, bumpID int64) (*cart.Cart, error) {
	b, err := s.repo.Get(ctx, bumpID)
	if err != nil {
		return nil, err
	}
	if b == nil || b.Status != models.BumpStatusActive {
		return nil, ErrNotFound
	}

	product, err := s.catalog.GetProduct(ctx, b.BumpProductID)
	if err != nil {
		return nil, err
	}
	if product == nil || !product.Purchasable {
		return nil, ErrProductUnavailable
	}

	c, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	tag := strconv.FormatInt(bumpID, 10)
	if c.FindBump(tag) != nil {
		return c, nil
	}

	price := b.Price(product.Price)
	c.AddItem(b.BumpProductID, product.Name, 1, price, map[string]string{
		cart.MetaBumpID:        tag,
		cart.MetaPriceOverride: strconv.FormatFloat(price, 'f', 2, 64),
	})
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.BumpsAccepted.WithLabelValues(tag).Inc()
	}
	return c, nil
}

// RemoveBump removes the accepted bump's line from the cart. Removing a
// bump that is not in the cart is a no-op.
func (s *CheckoutService) RemoveBump(ctx context.Context, sessionID string, bumpID int64) (*cart.Cart, error) {
	c, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	tag := strconv.FormatInt(bumpID, 10)
	if line := c.FindBump(tag); line != nil {
		c.RemoveItem(line.Key)
		if err := s.carts.Save(ctx, c); err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.BumpsRemoved.WithLabelValues(tag).Inc()
		}
	}
	return c, nil
}

// Finalize turns the session cart into an order, records one conversion
// per bump-tagged line with the line total as revenue, and clears the
// cart. An empty cart cannot finalize.
func (s *CheckoutService) Finalize(ctx context.Context, sessionID string, userID int64) (*Order, error) {
	c, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}

	orderID := uuid.NewString()
	for i := range c.Items {
		tag, ok := c.Items[i].Meta[cart.MetaBumpID]
		if !ok {
			continue
		}
		bumpID, err := strconv.ParseInt(tag, 10, 64)
		if err != nil {
			continue
		}
		if err := s.analytics.TrackConversion(ctx, bumpID, orderID, userID, c.Items[i].LineTotal); err != nil {
			// The order still finalizes; a lost conversion only skews reports.
			s.logger.Warn("failed to track conversion",
				zap.Int64("bump_id", bumpID),
				zap.String("order_id", orderID),
				zap.Error(err),
			)
		}
	}

	if err := s.carts.Delete(ctx, sessionID); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.OrdersFinalized.Inc()
	}
	return &Order{
		OrderID: orderID,
		Items:   c.Items,
		Total:   c.Total,
	}, nil
}
