package offers

import (
	"context"
	"testing"
	"time"

	"github.com/tcche/orderbump/internal/models"
	"github.com/tcche/orderbump/internal/storage"
	"go.uber.org/zap"
)

func newTestAnalytics(t *testing.T) (*AnalyticsService, *storage.InMemoryBumpRepo) {
	t.Helper()
	repo := storage.NewInMemoryBumpRepo()
	events := storage.NewInMemoryAnalyticsStore()
	return NewAnalyticsService(events, repo, nil, time.Hour, nil, zap.NewNop()), repo
}

func seedBump(t *testing.T, repo *storage.InMemoryBumpRepo, title string) *models.Bump {
	t.Helper()
	b := &models.Bump{Title: title, Status: models.BumpStatusActive, BumpProductID: 10}
	b.Normalize()
	if err := repo.Create(context.Background(), b); err != nil {
		t.Fatalf("seed bump: %v", err)
	}
	return b
}

func fullRange(svc *AnalyticsService) (time.Time, time.Time) {
	return svc.ParseRange("", "")
}

func TestTrackImpressionDedupWithinWindow(t *testing.T) {
	svc, _ := newTestAnalytics(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	if err := svc.TrackImpression(ctx, 1, "sess-1", 0); err != nil {
		t.Fatalf("TrackImpression: %v", err)
	}
	// Same session 30 minutes later is suppressed.
	svc.now = func() time.Time { return base.Add(30 * time.Minute) }
	if err := svc.TrackImpression(ctx, 1, "sess-1", 0); err != nil {
		t.Fatalf("TrackImpression: %v", err)
	}
	// A different session still inserts.
	if err := svc.TrackImpression(ctx, 1, "sess-2", 0); err != nil {
		t.Fatalf("TrackImpression: %v", err)
	}

	stats, err := svc.Summary(ctx, 1, base.Add(-time.Hour), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if stats.Impressions != 2 {
		t.Errorf("got %d impressions, want 2", stats.Impressions)
	}
}

func TestTrackImpressionAllowedAfterWindow(t *testing.T) {
	svc, _ := newTestAnalytics(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	if err := svc.TrackImpression(ctx, 1, "sess-1", 0); err != nil {
		t.Fatalf("TrackImpression: %v", err)
	}

	svc.now = func() time.Time { return base.Add(61 * time.Minute) }
	if err := svc.TrackImpression(ctx, 1, "sess-1", 0); err != nil {
		t.Fatalf("TrackImpression: %v", err)
	}

	stats, err := svc.Summary(ctx, 1, base.Add(-time.Hour), base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if stats.Impressions != 2 {
		t.Errorf("got %d impressions across windows, want 2", stats.Impressions)
	}
}

func TestTrackImpressionDropsEmptySession(t *testing.T) {
	svc, _ := newTestAnalytics(t)
	ctx := context.Background()

	if err := svc.TrackImpression(ctx, 1, "", 0); err != nil {
		t.Fatalf("TrackImpression: %v", err)
	}
	from, to := fullRange(svc)
	stats, err := svc.Summary(ctx, 0, from, to)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if stats.Impressions != 0 {
		t.Errorf("empty session recorded an impression")
	}
}

func TestSummaryZeroGuards(t *testing.T) {
	svc, _ := newTestAnalytics(t)
	ctx := context.Background()

	from, to := fullRange(svc)
	stats, err := svc.Summary(ctx, 0, from, to)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if stats.ConversionRate != 0 || stats.AvgOrderValue != 0 {
		t.Errorf("got rate=%v aov=%v with no events, want 0", stats.ConversionRate, stats.AvgOrderValue)
	}
}

func TestSummaryRateAndAOV(t *testing.T) {
	svc, _ := newTestAnalytics(t)
	ctx := context.Background()

	for _, sess := range []string{"s1", "s2", "s3", "s4"} {
		if err := svc.TrackImpression(ctx, 1, sess, 0); err != nil {
			t.Fatalf("TrackImpression: %v", err)
		}
	}
	if err := svc.TrackConversion(ctx, 1, "order-1", 0, 30); err != nil {
		t.Fatalf("TrackConversion: %v", err)
	}
	if err := svc.TrackConversion(ctx, 1, "order-2", 0, 10); err != nil {
		t.Fatalf("TrackConversion: %v", err)
	}

	from, to := fullRange(svc)
	stats, err := svc.Summary(ctx, 1, from, to)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if stats.Impressions != 4 || stats.Conversions != 2 {
		t.Fatalf("got imp=%d conv=%d, want 4/2", stats.Impressions, stats.Conversions)
	}
	if stats.ConversionRate != 50.00 {
		t.Errorf("got conversion rate %v, want 50.00", stats.ConversionRate)
	}
	if stats.TotalRevenue != 40.00 {
		t.Errorf("got revenue %v, want 40.00", stats.TotalRevenue)
	}
	if stats.AvgOrderValue != 20.00 {
		t.Errorf("got aov %v, want 20.00", stats.AvgOrderValue)
	}
}

func TestByBumpIncludesZeroRowsAndSortsByRevenue(t *testing.T) {
	svc, repo := newTestAnalytics(t)
	ctx := context.Background()

	low := seedBump(t, repo, "Low")
	idle := seedBump(t, repo, "Idle")
	high := seedBump(t, repo, "High")
	draft := &models.Bump{Title: "Draft", Status: models.BumpStatusDraft, BumpProductID: 10}
	draft.Normalize()
	if err := repo.Create(ctx, draft); err != nil {
		t.Fatalf("seed bump: %v", err)
	}

	if err := svc.TrackConversion(ctx, low.ID, "o1", 0, 5); err != nil {
		t.Fatalf("TrackConversion: %v", err)
	}
	if err := svc.TrackConversion(ctx, high.ID, "o2", 0, 100); err != nil {
		t.Fatalf("TrackConversion: %v", err)
	}

	from, to := fullRange(svc)
	rows, err := svc.ByBump(ctx, from, to)
	if err != nil {
		t.Fatalf("ByBump: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want one per stored bump including draft", len(rows))
	}
	if rows[0].Bump.ID != high.ID || rows[1].Bump.ID != low.ID {
		t.Errorf("rows not sorted by revenue desc: got %d,%d first", rows[0].Bump.ID, rows[1].Bump.ID)
	}
	for _, row := range rows[2:] {
		if row.TotalRevenue != 0 {
			t.Errorf("bump %d has revenue %v, want 0", row.Bump.ID, row.TotalRevenue)
		}
	}
	_ = idle
}

func TestDailyZeroFillsCalendarDays(t *testing.T) {
	svc, _ := newTestAnalytics(t)
	ctx := context.Background()

	svc.now = func() time.Time { return time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC) }
	if err := svc.TrackImpression(ctx, 1, "sess-1", 0); err != nil {
		t.Fatalf("TrackImpression: %v", err)
	}
	if err := svc.TrackConversion(ctx, 1, "order-1", 0, 25); err != nil {
		t.Fatalf("TrackConversion: %v", err)
	}

	from, to := svc.ParseRange("2024-01-01", "2024-01-03")
	days, err := svc.Daily(ctx, 0, from, to)
	if err != nil {
		t.Fatalf("Daily: %v", err)
	}
	if len(days) != 3 {
		t.Fatalf("got %d days, want 3", len(days))
	}
	want := []models.DailyCount{
		{Date: "2024-01-01"},
		{Date: "2024-01-02", Impressions: 1, Conversions: 1, Revenue: 25},
		{Date: "2024-01-03"},
	}
	for i, w := range want {
		if days[i] != w {
			t.Errorf("day %d: got %+v, want %+v", i, days[i], w)
		}
	}
}

func TestParseRangeFallsBackOnMalformedDates(t *testing.T) {
	svc, _ := newTestAnalytics(t)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	from, to := svc.ParseRange("not-a-date", "2024/03/10")
	wantFrom := time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)
	wantTo := time.Date(2024, 3, 15, 23, 59, 59, 0, time.UTC)
	if !from.Equal(wantFrom) {
		t.Errorf("got from %v, want %v", from, wantFrom)
	}
	if !to.Equal(wantTo) {
		t.Errorf("got to %v, want %v", to, wantTo)
	}
}
