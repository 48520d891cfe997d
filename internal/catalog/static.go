package catalog

import (
	"context"
	"sort"
	"sync"
)

// StaticCatalog is a fixed in-memory Catalog used in tests and when no
// WooCommerce credentials are configured.
type StaticCatalog struct {
	mu       sync.RWMutex
	products map[int64]*Product
}

func NewStaticCatalog(products ...*Product) *StaticCatalog {
	c := &StaticCatalog{products: make(map[int64]*Product)}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// Put adds or replaces a product.
func (c *StaticCatalog) Put(p *Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

func (c *StaticCatalog) GetProduct(ctx context.Context, id int64) (*Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	cp.CategoryIDs = append([]int64(nil), p.CategoryIDs...)
	return &cp, nil
}

func (c *StaticCatalog) ListCategories(ctx context.Context) ([]Category, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	counts := make(map[int64]int)
	for _, p := range c.products {
		for _, id := range p.CategoryIDs {
			counts[id]++
		}
	}
	cats := make([]Category, 0, len(counts))
	for id, n := range counts {
		cats = append(cats, Category{ID: id, Count: n})
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].ID < cats[j].ID })
	return cats, nil
}
