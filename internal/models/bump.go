package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

type BumpStatus string

const (
	BumpStatusActive BumpStatus = "active"
	BumpStatusDraft  BumpStatus = "draft"
)

// DiscountType is a closed enumeration of bump discount behaviors.
type DiscountType string

const (
	DiscountNone       DiscountType = "none"
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Placement is one of the four fixed checkout slots a bump may render in.
type Placement string

const (
	PlacementBeforeOrderReview Placement = "before_order_review"
	PlacementAfterOrderReview  Placement = "after_order_review"
	PlacementBeforePayment     Placement = "before_payment"
	PlacementAfterPayment      Placement = "after_payment"
)

// DesignStyle is one of the four visual presets for rendering a bump.
type DesignStyle string

const (
	DesignClassic DesignStyle = "classic"
	DesignMinimal DesignStyle = "minimal"
	DesignBold    DesignStyle = "bold"
	DesignRounded DesignStyle = "rounded"
)

// Bump is a configured promotional offer tying a target product to
// display/trigger rules and a discount.
type Bump struct {
	ID     int64      `json:"id"`
	Title  string     `json:"title"`
	Status BumpStatus `json:"status"`

	// The product offered by this bump.
	BumpProductID int64 `json:"bump_product_id"`

	// Trigger conditions. Both empty means the bump is unconditional.
	TriggerProductIDs  []int64 `json:"trigger_product_ids"`
	TriggerCategoryIDs []int64 `json:"trigger_category_ids"`

	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue float64      `json:"discount_value"`

	Headline    string      `json:"headline"`
	Description string      `json:"description"`
	Position    Placement   `json:"position"`
	DesignStyle DesignStyle `json:"design_style"`

	// Priority is stored and exposed through the API. Rendering order is
	// store iteration order; priority is not consulted by the matcher.
	Priority int `json:"priority"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s BumpStatus) Valid() bool {
	return s == BumpStatusActive || s == BumpStatusDraft
}

func (d DiscountType) Valid() bool {
	switch d {
	case DiscountNone, DiscountPercentage, DiscountFixed:
		return true
	}
	return false
}

func (p Placement) Valid() bool {
	switch p {
	case PlacementBeforeOrderReview, PlacementAfterOrderReview,
		PlacementBeforePayment, PlacementAfterPayment:
		return true
	}
	return false
}

func (d DesignStyle) Valid() bool {
	switch d {
	case DesignClassic, DesignMinimal, DesignBold, DesignRounded:
		return true
	}
	return false
}

// Normalize fills defaults for optional enum fields left empty by the caller.
func (b *Bump) Normalize() {
	if b.Status == "" {
		b.Status = BumpStatusDraft
	}
	if b.DiscountType == "" {
		b.DiscountType = DiscountNone
	}
	if b.Position == "" {
		b.Position = PlacementAfterOrderReview
	}
	if b.DesignStyle == "" {
		b.DesignStyle = DesignClassic
	}
}

// Validate checks field constraints. It does not verify that the referenced
// product still resolves in the catalog; an unresolvable product makes the
// bump non-renderable, not invalid.
func (b *Bump) Validate() error {
	if b.Title == "" {
		return errors.New("title is required")
	}
	if b.BumpProductID <= 0 {
		return errors.New("bump_product_id is required")
	}
	if !b.Status.Valid() {
		return fmt.Errorf("invalid status %q", b.Status)
	}
	if !b.DiscountType.Valid() {
		return fmt.Errorf("invalid discount_type %q", b.DiscountType)
	}
	if b.DiscountValue < 0 {
		return errors.New("discount_value must be >= 0")
	}
	if !b.Position.Valid() {
		return fmt.Errorf("invalid position %q", b.Position)
	}
	if !b.DesignStyle.Valid() {
		return fmt.Errorf("invalid design_style %q", b.DesignStyle)
	}
	return nil
}

// Price computes the discounted bump price from the product's base price.
func (b *Bump) Price(base float64) float64 {
	return BumpPrice(base, b.DiscountType, b.DiscountValue)
}

// BumpPrice computes the offer price for a base price under the given
// discount. The result is rounded to 2 decimals and never negative: fixed
// discounts larger than the base, and percentage values above 100, clamp
// to zero.
func BumpPrice(base float64, kind DiscountType, value float64) float64 {
	var price float64
	switch kind {
	case DiscountPercentage:
		price = base * (1 - value/100)
	case DiscountFixed:
		price = base - value
	case DiscountNone:
		price = base
	default:
		price = base
	}
	if price < 0 {
		price = 0
	}
	return Round2(price)
}

// Round2 rounds to 2 decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
