package offers

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tcche/orderbump/internal/metrics"
	"github.com/tcche/orderbump/internal/models"
	"github.com/tcche/orderbump/internal/storage"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// SummaryStats is the headline report over a date range.
type SummaryStats struct {
	Impressions    int64   `json:"impressions"`
	Conversions    int64   `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
	TotalRevenue   float64 `json:"total_revenue"`
	AvgOrderValue  float64 `json:"avg_order_value"`
}

// BumpStats is one per-bump report row with the bump embedded.
type BumpStats struct {
	Bump *models.Bump `json:"bump"`
	SummaryStats
}

// AnalyticsService records impression and conversion events and builds
// reports from the store's grouped sums. Rate math, day zero-fill and
// the per-bump join all live here so every storage backend reports
// identically.
type AnalyticsService struct {
	store   storage.AnalyticsStore
	repo    storage.BumpRepo
	rdb     redis.UniversalClient
	window  time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger

	now func() time.Time
}

func NewAnalyticsService(store storage.AnalyticsStore, repo storage.BumpRepo, rdb redis.UniversalClient, window time.Duration, m *metrics.Metrics, logger *zap.Logger) *AnalyticsService {
	if window <= 0 {
		window = time.Hour
	}
	return &AnalyticsService{
		store:   store,
		repo:    repo,
		rdb:     rdb,
		window:  window,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// TrackImpression records one render of a bump to a session, at most once
// per (bump, session) within the dedup window. Calls with an empty session
// id are dropped. Redis SETNX serves as a fast pre-check; the store's
// windowed insert is authoritative, so a Redis outage only costs the
// shortcut.
func (s *AnalyticsService) TrackImpression(ctx context.Context, bumpID int64, sessionID string, userID int64) error {
	if sessionID == "" {
		return nil
	}

	if s.rdb != nil {
		key := fmt.Sprintf("imp:seen:%d:%s", bumpID, sessionID)
		set, err := s.rdb.SetNX(ctx, key, 1, s.window).Result()
		if err != nil {
			s.logger.Warn("impression dedup cache unavailable", zap.Error(err))
		} else if !set {
			if s.metrics != nil {
				s.metrics.RecordImpressionDeduped()
			}
			return nil
		}
	}

	now := s.now().UTC()
	imp := &models.Impression{
		BumpID:    bumpID,
		SessionID: sessionID,
		UserID:    userID,
		CreatedAt: now,
	}
	inserted, err := s.store.InsertImpression(ctx, imp, now.Add(-s.window))
	if err != nil {
		return err
	}
	if s.metrics != nil {
		if inserted {
			s.metrics.RecordImpression(bumpID)
		} else {
			s.metrics.RecordImpressionDeduped()
		}
	}
	return nil
}

// TrackConversion records one bump-attributed order line. Conversions are
// never deduplicated; each finalized line is a distinct fact.
func (s *AnalyticsService) TrackConversion(ctx context.Context, bumpID int64, orderID string, userID int64, revenue float64) error {
	conv := &models.Conversion{
		BumpID:    bumpID,
		OrderID:   orderID,
		UserID:    userID,
		Revenue:   revenue,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertConversion(ctx, conv); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordConversion(bumpID, revenue)
	}
	return nil
}

// Summary builds the headline stats over [from, to]. bumpID 0 spans all
// bumps. Rates divide by zero as zero.
func (s *AnalyticsService) Summary(ctx context.Context, bumpID int64, from, to time.Time) (*SummaryStats, error) {
	totals, err := s.store.Totals(ctx, bumpID, from, to)
	if err != nil {
		return nil, err
	}
	return buildStats(totals), nil
}

// ByBump builds one row per stored bump, any status, including zeros for
// bumps with no events in range, sorted by total revenue descending. Ties
// keep store order.
func (s *AnalyticsService) ByBump(ctx context.Context, from, to time.Time) ([]*BumpStats, error) {
	bumps, err := s.repo.List(ctx, "")
	if err != nil {
		return nil, err
	}
	sums, err := s.store.TotalsByBump(ctx, from, to)
	if err != nil {
		return nil, err
	}

	rows := make([]*BumpStats, 0, len(bumps))
	for _, b := range bumps {
		rows = append(rows, &BumpStats{
			Bump:         b,
			SummaryStats: *buildStats(sums[b.ID]),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].TotalRevenue > rows[j].TotalRevenue
	})
	return rows, nil
}

// Daily builds one row per calendar day in [from, to] inclusive, zero
// rows for eventless days. bumpID 0 spans all bumps.
func (s *AnalyticsService) Daily(ctx context.Context, bumpID int64, from, to time.Time) ([]models.DailyCount, error) {
	sums, err := s.store.DailyCounts(ctx, bumpID, from, to)
	if err != nil {
		return nil, err
	}

	var days []models.DailyCount
	for d := from.Truncate(24 * time.Hour); !d.After(to); d = d.AddDate(0, 0, 1) {
		key := d.Format(dateLayout)
		t := sums[key]
		days = append(days, models.DailyCount{
			Date:        key,
			Impressions: t.Impressions,
			Conversions: t.Conversions,
			Revenue:     models.Round2(t.Revenue),
		})
	}
	return days, nil
}

// ParseRange parses from/to query values as YYYY-MM-DD dates and widens
// them to UTC day bounds. Missing or malformed values fall back to the
// trailing 30 days.
func (s *AnalyticsService) ParseRange(fromStr, toStr string) (time.Time, time.Time) {
	now := s.now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now

	if fromStr != "" {
		if d, err := time.Parse(dateLayout, fromStr); err == nil {
			from = d
		}
	}
	if toStr != "" {
		if d, err := time.Parse(dateLayout, toStr); err == nil {
			to = d
		}
	}

	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	to = time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, time.UTC)
	return from, to
}

func buildStats(t models.StatTotals) *SummaryStats {
	st := &SummaryStats{
		Impressions:  t.Impressions,
		Conversions:  t.Conversions,
		TotalRevenue: models.Round2(t.Revenue),
	}
	if t.Impressions > 0 {
		st.ConversionRate = models.Round2(float64(t.Conversions) / float64(t.Impressions) * 100)
	}
	if t.Conversions > 0 {
		st.AvgOrderValue = models.Round2(t.Revenue / float64(t.Conversions))
	}
	return st
}
