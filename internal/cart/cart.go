// Package cart holds the session-scoped checkout cart the offer flow
// reads and mutates. Line items carry an arbitrary meta bag; an accepted
// offer is a regular line tagged with the bump id and a price override,
// which is how order finalization later attributes conversions.
package cart

import (
	"context"

	"github.com/google/uuid"
	"github.com/tcche/orderbump/internal/models"
)

// Meta keys attached to line items.
const (
	// MetaBumpID tags a line item added by accepting an offer.
	MetaBumpID = "bump_id"
	// MetaPriceOverride records that the unit price was set by a bump
	// discount rather than the catalog price.
	MetaPriceOverride = "price_override"
)

// LineItem is one cart line.
type LineItem struct {
	Key       string            `json:"key"`
	ProductID int64             `json:"product_id"`
	Name      string            `json:"name"`
	Quantity  int               `json:"quantity"`
	UnitPrice float64           `json:"unit_price"`
	LineTotal float64           `json:"line_total"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// Cart is the full cart for one checkout session.
type Cart struct {
	SessionID string     `json:"session_id"`
	Items     []LineItem `json:"items"`
	Total     float64    `json:"total"`
}

// Store persists carts keyed by session.
type Store interface {
	// Get returns the cart for the session, empty (never nil) when absent.
	Get(ctx context.Context, sessionID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, sessionID string) error
}

// Recompute refreshes line totals and the cart total.
func (c *Cart) Recompute() {
	var total float64
	for i := range c.Items {
		c.Items[i].LineTotal = models.Round2(c.Items[i].UnitPrice * float64(c.Items[i].Quantity))
		total += c.Items[i].LineTotal
	}
	c.Total = models.Round2(total)
}

// AddItem appends a line (or bumps quantity when an untagged line for the
// same product exists) and returns the affected line.
func (c *Cart) AddItem(productID int64, name string, quantity int, unitPrice float64, meta map[string]string) *LineItem {
	if quantity <= 0 {
		quantity = 1
	}
	if len(meta) == 0 {
		for i := range c.Items {
			it := &c.Items[i]
			if it.ProductID == productID && len(it.Meta) == 0 {
				it.Quantity += quantity
				c.Recompute()
				return it
			}
		}
	}
	c.Items = append(c.Items, LineItem{
		Key:       uuid.NewString(),
		ProductID: productID,
		Name:      name,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		Meta:      meta,
	})
	c.Recompute()
	return &c.Items[len(c.Items)-1]
}

// RemoveItem removes the line with the given key. It reports whether a
// line was removed.
func (c *Cart) RemoveItem(key string) bool {
	for i := range c.Items {
		if c.Items[i].Key == key {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.Recompute()
			return true
		}
	}
	return false
}

// FindBump returns the line item tagged with the given bump id, or nil.
func (c *Cart) FindBump(bumpID string) *LineItem {
	for i := range c.Items {
		if c.Items[i].Meta[MetaBumpID] == bumpID {
			return &c.Items[i]
		}
	}
	return nil
}

// ProductIDs returns the set of product ids present in the cart.
func (c *Cart) ProductIDs() []int64 {
	seen := make(map[int64]bool, len(c.Items))
	ids := make([]int64, 0, len(c.Items))
	for i := range c.Items {
		if !seen[c.Items[i].ProductID] {
			seen[c.Items[i].ProductID] = true
			ids = append(ids, c.Items[i].ProductID)
		}
	}
	return ids
}

// HasProduct reports whether the cart contains the product.
func (c *Cart) HasProduct(productID int64) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return true
		}
	}
	return false
}
