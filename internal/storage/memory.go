package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tcche/orderbump/internal/models"
)

// InMemoryBumpRepo is a map-backed BumpRepo. It backs tests and the
// degraded mode used when PostgreSQL is unavailable at startup.
type InMemoryBumpRepo struct {
	mu     sync.RWMutex
	nextID int64
	bumps  map[int64]*models.Bump
}

func NewInMemoryBumpRepo() *InMemoryBumpRepo {
	return &InMemoryBumpRepo{
		nextID: 1,
		bumps:  make(map[int64]*models.Bump),
	}
}

func (r *InMemoryBumpRepo) List(ctx context.Context, status models.BumpStatus) ([]*models.Bump, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.bumps))
	for id := range r.bumps {
		ids = append(ids, id)
	}
	// Store order is insertion order, which IDs preserve.
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	result := make([]*models.Bump, 0, len(ids))
	for _, id := range ids {
		b := r.bumps[id]
		if status != "" && b.Status != status {
			continue
		}
		result = append(result, cloneBump(b))
	}
	return result, nil
}

func (r *InMemoryBumpRepo) Get(ctx context.Context, id int64) (*models.Bump, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.bumps[id]; ok {
		return cloneBump(b), nil
	}
	return nil, nil
}

func (r *InMemoryBumpRepo) Create(ctx context.Context, b *models.Bump) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.ID = r.nextID
	r.nextID++
	r.bumps[b.ID] = cloneBump(b)
	return nil
}

func (r *InMemoryBumpRepo) Update(ctx context.Context, b *models.Bump) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bumps[b.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.bumps[b.ID] = cloneBump(b)
	return nil
}

func (r *InMemoryBumpRepo) Delete(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bumps[id]; !ok {
		return false, nil
	}
	delete(r.bumps, id)
	return true, nil
}

func cloneBump(b *models.Bump) *models.Bump {
	cp := *b
	cp.TriggerProductIDs = append([]int64(nil), b.TriggerProductIDs...)
	cp.TriggerCategoryIDs = append([]int64(nil), b.TriggerCategoryIDs...)
	return &cp
}

// InMemoryAnalyticsStore keeps events in slices and answers the grouped
// sums in Go. Semantics mirror the SQL backends.
type InMemoryAnalyticsStore struct {
	mu          sync.RWMutex
	nextID      int64
	impressions []models.Impression
	conversions []models.Conversion
}

func NewInMemoryAnalyticsStore() *InMemoryAnalyticsStore {
	return &InMemoryAnalyticsStore{nextID: 1}
}

func (s *InMemoryAnalyticsStore) Setup(ctx context.Context) error {
	return nil
}

func (s *InMemoryAnalyticsStore) InsertImpression(ctx context.Context, imp *models.Impression, dedupAfter time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.impressions {
		e := &s.impressions[i]
		if e.BumpID == imp.BumpID && e.SessionID == imp.SessionID && e.CreatedAt.After(dedupAfter) {
			return false, nil
		}
	}

	stored := *imp
	stored.ID = s.nextID
	s.nextID++
	s.impressions = append(s.impressions, stored)
	return true, nil
}

func (s *InMemoryAnalyticsStore) InsertConversion(ctx context.Context, conv *models.Conversion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *conv
	stored.ID = s.nextID
	s.nextID++
	s.conversions = append(s.conversions, stored)
	return nil
}

func (s *InMemoryAnalyticsStore) Totals(ctx context.Context, bumpID int64, from, to time.Time) (models.StatTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t models.StatTotals
	for i := range s.impressions {
		e := &s.impressions[i]
		if (bumpID == 0 || e.BumpID == bumpID) && inRange(e.CreatedAt, from, to) {
			t.Impressions++
		}
	}
	for i := range s.conversions {
		e := &s.conversions[i]
		if (bumpID == 0 || e.BumpID == bumpID) && inRange(e.CreatedAt, from, to) {
			t.Conversions++
			t.Revenue += e.Revenue
		}
	}
	return t, nil
}

func (s *InMemoryAnalyticsStore) TotalsByBump(ctx context.Context, from, to time.Time) (map[int64]models.StatTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]models.StatTotals)
	for i := range s.impressions {
		e := &s.impressions[i]
		if inRange(e.CreatedAt, from, to) {
			t := result[e.BumpID]
			t.Impressions++
			result[e.BumpID] = t
		}
	}
	for i := range s.conversions {
		e := &s.conversions[i]
		if inRange(e.CreatedAt, from, to) {
			t := result[e.BumpID]
			t.Conversions++
			t.Revenue += e.Revenue
			result[e.BumpID] = t
		}
	}
	return result, nil
}

func (s *InMemoryAnalyticsStore) DailyCounts(ctx context.Context, bumpID int64, from, to time.Time) (map[string]models.StatTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]models.StatTotals)
	for i := range s.impressions {
		e := &s.impressions[i]
		if (bumpID == 0 || e.BumpID == bumpID) && inRange(e.CreatedAt, from, to) {
			day := e.CreatedAt.UTC().Format("2006-01-02")
			t := result[day]
			t.Impressions++
			result[day] = t
		}
	}
	for i := range s.conversions {
		e := &s.conversions[i]
		if (bumpID == 0 || e.BumpID == bumpID) && inRange(e.CreatedAt, from, to) {
			day := e.CreatedAt.UTC().Format("2006-01-02")
			t := result[day]
			t.Conversions++
			t.Revenue += e.Revenue
			result[day] = t
		}
	}
	return result, nil
}

func inRange(ts, from, to time.Time) bool {
	return !ts.Before(from) && !ts.After(to)
}
