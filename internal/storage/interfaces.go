package storage

import (
	"context"
	"time"

	"github.com/tcche/orderbump/internal/models"
)

// =============================================
// BUMP REPOSITORY
// =============================================

// BumpRepo defines CRUD operations over bump records. Lookups return
// (nil, nil) when no record exists; callers translate that into a
// not-found condition at their own layer.
type BumpRepo interface {
	// List returns bumps in store order. An empty status returns all.
	List(ctx context.Context, status models.BumpStatus) ([]*models.Bump, error)
	Get(ctx context.Context, id int64) (*models.Bump, error)
	// Create assigns the store ID to b.
	Create(ctx context.Context, b *models.Bump) error
	Update(ctx context.Context, b *models.Bump) error
	// Delete is a hard delete. It reports whether a row was removed.
	// Analytics rows referencing the bump are left in place for
	// historical reporting.
	Delete(ctx context.Context, id int64) (bool, error)
}

// =============================================
// ANALYTICS STORE
// =============================================

// AnalyticsStore persists append-only impression/conversion facts and
// serves the grouped sums the aggregator builds reports from. Rate math,
// day zero-fill and the by-bump join live above this interface so that
// every backend answers with the same plain sums.
type AnalyticsStore interface {
	// InsertImpression inserts imp unless a row for the same
	// (bump_id, session_id) exists with created_at after dedupAfter.
	// It reports whether a row was inserted. The check-then-insert is
	// not atomic; concurrent calls for the same pair may both insert.
	InsertImpression(ctx context.Context, imp *models.Impression, dedupAfter time.Time) (bool, error)

	// InsertConversion appends unconditionally.
	InsertConversion(ctx context.Context, conv *models.Conversion) error

	// Totals returns sums over [from, to]. bumpID 0 aggregates all bumps.
	Totals(ctx context.Context, bumpID int64, from, to time.Time) (models.StatTotals, error)

	// TotalsByBump returns sums grouped by bump over [from, to]. Bumps
	// with no events in the range are absent from the map.
	TotalsByBump(ctx context.Context, from, to time.Time) (map[int64]models.StatTotals, error)

	// DailyCounts returns sums grouped by calendar day (UTC, YYYY-MM-DD)
	// over [from, to]. Days with no events are absent from the map.
	DailyCounts(ctx context.Context, bumpID int64, from, to time.Time) (map[string]models.StatTotals, error)

	// Setup creates the event tables if they do not exist.
	Setup(ctx context.Context) error
}
