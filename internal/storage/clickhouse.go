package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/tcche/orderbump/internal/models"
)

// ClickHouseAnalyticsStore implements AnalyticsStore on ClickHouse. The
// event tables are the same append-only facts as the Postgres backend;
// aggregation is pushed down to MergeTree GROUP BY queries.
type ClickHouseAnalyticsStore struct {
	conn driver.Conn
}

// ClickHouseOptions holds connection settings for the analytics backend.
type ClickHouseOptions struct {
	Addr     string
	Database string
	User     string
	Password string
}

// NewClickHouseAnalyticsStore opens a connection and verifies it with a ping.
func NewClickHouseAnalyticsStore(ctx context.Context, opts ClickHouseOptions) (*ClickHouseAnalyticsStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.User,
			Password: opts.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return &ClickHouseAnalyticsStore{conn: conn}, nil
}

// Close closes the underlying connection.
func (s *ClickHouseAnalyticsStore) Close() error {
	return s.conn.Close()
}

// Setup creates the event tables if they do not exist.
func (s *ClickHouseAnalyticsStore) Setup(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS bump_impressions (
			bump_id    Int64,
			session_id String,
			user_id    Int64,
			created_at DateTime('UTC')
		) ENGINE = MergeTree
		ORDER BY (bump_id, session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS bump_conversions (
			bump_id    Int64,
			order_id   String,
			user_id    Int64,
			revenue    Float64,
			created_at DateTime('UTC')
		) ENGINE = MergeTree
		ORDER BY (bump_id, created_at)`,
	}
	for _, stmt := range statements {
		if err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create analytics table: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseAnalyticsStore) InsertImpression(ctx context.Context, imp *models.Impression, dedupAfter time.Time) (bool, error) {
	var recent uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count() FROM bump_impressions
		WHERE bump_id = ? AND session_id = ? AND created_at > ?
	`, imp.BumpID, imp.SessionID, dedupAfter).Scan(&recent)
	if err != nil {
		return false, fmt.Errorf("failed to check impression window: %w", err)
	}
	if recent > 0 {
		return false, nil
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO bump_impressions (bump_id, session_id, user_id, created_at)
		VALUES (?, ?, ?, ?)
	`, imp.BumpID, imp.SessionID, imp.UserID, imp.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to save impression: %w", err)
	}
	return true, nil
}

func (s *ClickHouseAnalyticsStore) InsertConversion(ctx context.Context, conv *models.Conversion) error {
	err := s.conn.Exec(ctx, `
		INSERT INTO bump_conversions (bump_id, order_id, user_id, revenue, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, conv.BumpID, conv.OrderID, conv.UserID, conv.Revenue, conv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save conversion: %w", err)
	}
	return nil
}

func (s *ClickHouseAnalyticsStore) Totals(ctx context.Context, bumpID int64, from, to time.Time) (models.StatTotals, error) {
	var t models.StatTotals

	impQuery := `SELECT count() FROM bump_impressions WHERE created_at >= ? AND created_at <= ?`
	convQuery := `SELECT count(), sum(revenue) FROM bump_conversions WHERE created_at >= ? AND created_at <= ?`
	args := []any{from, to}
	if bumpID != 0 {
		impQuery += ` AND bump_id = ?`
		convQuery += ` AND bump_id = ?`
		args = append(args, bumpID)
	}

	var impressions, conversions uint64
	if err := s.conn.QueryRow(ctx, impQuery, args...).Scan(&impressions); err != nil {
		return t, fmt.Errorf("failed to count impressions: %w", err)
	}
	if err := s.conn.QueryRow(ctx, convQuery, args...).Scan(&conversions, &t.Revenue); err != nil {
		return t, fmt.Errorf("failed to sum conversions: %w", err)
	}
	t.Impressions = int64(impressions)
	t.Conversions = int64(conversions)
	return t, nil
}

func (s *ClickHouseAnalyticsStore) TotalsByBump(ctx context.Context, from, to time.Time) (map[int64]models.StatTotals, error) {
	result := make(map[int64]models.StatTotals)

	rows, err := s.conn.Query(ctx, `
		SELECT bump_id, count() FROM bump_impressions
		WHERE created_at >= ? AND created_at <= ?
		GROUP BY bump_id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to group impressions: %w", err)
	}
	for rows.Next() {
		var id int64
		var count uint64
		if err := rows.Scan(&id, &count); err != nil {
			rows.Close()
			return nil, err
		}
		t := result[id]
		t.Impressions = int64(count)
		result[id] = t
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.conn.Query(ctx, `
		SELECT bump_id, count(), sum(revenue) FROM bump_conversions
		WHERE created_at >= ? AND created_at <= ?
		GROUP BY bump_id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to group conversions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var count uint64
		var revenue float64
		if err := rows.Scan(&id, &count, &revenue); err != nil {
			return nil, err
		}
		t := result[id]
		t.Conversions = int64(count)
		t.Revenue = revenue
		result[id] = t
	}
	return result, rows.Err()
}

func (s *ClickHouseAnalyticsStore) DailyCounts(ctx context.Context, bumpID int64, from, to time.Time) (map[string]models.StatTotals, error) {
	result := make(map[string]models.StatTotals)

	impQuery := `
		SELECT toString(toDate(created_at)) AS day, count()
		FROM bump_impressions
		WHERE created_at >= ? AND created_at <= ?`
	convQuery := `
		SELECT toString(toDate(created_at)) AS day, count(), sum(revenue)
		FROM bump_conversions
		WHERE created_at >= ? AND created_at <= ?`
	args := []any{from, to}
	if bumpID != 0 {
		impQuery += ` AND bump_id = ?`
		convQuery += ` AND bump_id = ?`
		args = append(args, bumpID)
	}
	impQuery += ` GROUP BY day`
	convQuery += ` GROUP BY day`

	rows, err := s.conn.Query(ctx, impQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group impressions by day: %w", err)
	}
	for rows.Next() {
		var day string
		var count uint64
		if err := rows.Scan(&day, &count); err != nil {
			rows.Close()
			return nil, err
		}
		t := result[day]
		t.Impressions = int64(count)
		result[day] = t
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.conn.Query(ctx, convQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group conversions by day: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var day string
		var count uint64
		var revenue float64
		if err := rows.Scan(&day, &count, &revenue); err != nil {
			return nil, err
		}
		t := result[day]
		t.Conversions = int64(count)
		t.Revenue = revenue
		result[day] = t
	}
	return result, rows.Err()
}
