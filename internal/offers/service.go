// Package offers implements the order-bump domain: bump CRUD, offer
// selection against cart contents, discount pricing, the checkout
// accept/remove flow and the impression/conversion analytics.
package offers

import (
	"context"
	"errors"
	"time"

	"github.com/tcche/orderbump/internal/models"
	"github.com/tcche/orderbump/internal/storage"
)

// Sentinel errors surfaced to the transport layer.
var (
	ErrNotFound           = errors.New("bump not found")
	ErrProductUnavailable = errors.New("product not purchasable")
	ErrEmptyCart          = errors.New("cart is empty")
)

// BumpService provides CRUD operations over bumps. It is intentionally
// thin: validation and timestamp management here, persistence in the repo.
type BumpService struct {
	repo storage.BumpRepo
}

func NewBumpService(repo storage.BumpRepo) *BumpService {
	return &BumpService{repo: repo}
}

// List returns bumps in store order, optionally filtered by status.
func (s *BumpService) List(ctx context.Context, status models.BumpStatus) ([]*models.Bump, error) {
	if status != "" && !status.Valid() {
		return nil, errors.New("invalid status filter")
	}
	return s.repo.List(ctx, status)
}

// Get returns a bump or ErrNotFound.
func (s *BumpService) Get(ctx context.Context, id int64) (*models.Bump, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNotFound
	}
	return b, nil
}

// Create validates, stamps and stores a new bump, assigning its ID.
func (s *BumpService) Create(ctx context.Context, b *models.Bump) error {
	b.Normalize()
	if err := b.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	return s.repo.Create(ctx, b)
}

// Update overwrites an existing bump. The created_at stamp is preserved.
func (s *BumpService) Update(ctx context.Context, id int64, b *models.Bump) (*models.Bump, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	b.ID = existing.ID
	b.CreatedAt = existing.CreatedAt
	b.Normalize()
	if err := b.Validate(); err != nil {
		return nil, err
	}
	b.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Delete removes a bump permanently. Impressions and conversions that
// reference it are kept for historical reporting.
func (s *BumpService) Delete(ctx context.Context, id int64) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}
