// Package catalog resolves external product references for offers. The
// order-bump service never owns product data; it reads the store's
// catalog to price, render and gate offers.
package catalog

import (
	"context"
)

// Product is the catalog's view of a product, reduced to what offer
// rendering needs.
type Product struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"image_url,omitempty"`
	Purchasable bool    `json:"purchasable"`
	CategoryIDs []int64 `json:"category_ids,omitempty"`
}

// Category is a product category reference.
type Category struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Catalog resolves product references. GetProduct returns (nil, nil) when
// the reference no longer resolves; callers treat that as non-renderable,
// never as an error.
type Catalog interface {
	GetProduct(ctx context.Context, id int64) (*Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
}
