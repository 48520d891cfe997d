package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tcche/orderbump/internal/models"
)

// PostgresAnalyticsStore implements AnalyticsStore using PostgreSQL.
type PostgresAnalyticsStore struct {
	pool *pgxpool.Pool
}

func NewPostgresAnalyticsStore(pool *pgxpool.Pool) *PostgresAnalyticsStore {
	return &PostgresAnalyticsStore{pool: pool}
}

// Setup creates the event tables if they do not exist.
func (s *PostgresAnalyticsStore) Setup(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS bump_impressions (
			id         BIGSERIAL PRIMARY KEY,
			bump_id    BIGINT NOT NULL,
			session_id TEXT NOT NULL,
			user_id    BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_bump_impressions_dedup
			ON bump_impressions (bump_id, session_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_bump_impressions_created
			ON bump_impressions (created_at);

		CREATE TABLE IF NOT EXISTS bump_conversions (
			id         BIGSERIAL PRIMARY KEY,
			bump_id    BIGINT NOT NULL,
			order_id   TEXT NOT NULL,
			user_id    BIGINT NOT NULL DEFAULT 0,
			revenue    DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_bump_conversions_created
			ON bump_conversions (created_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create analytics tables: %w", err)
	}
	return nil
}

func (s *PostgresAnalyticsStore) InsertImpression(ctx context.Context, imp *models.Impression, dedupAfter time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bump_impressions
			WHERE bump_id = $1 AND session_id = $2 AND created_at > $3
		)
	`, imp.BumpID, imp.SessionID, dedupAfter).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check impression window: %w", err)
	}
	if exists {
		return false, nil
	}

	// Not atomic with the check above: two concurrent renders for the
	// same (bump, session) pair can both insert.
	_, err = s.pool.Exec(ctx, `
		INSERT INTO bump_impressions (bump_id, session_id, user_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, imp.BumpID, imp.SessionID, imp.UserID, imp.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to save impression: %w", err)
	}
	return true, nil
}

func (s *PostgresAnalyticsStore) InsertConversion(ctx context.Context, conv *models.Conversion) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bump_conversions (bump_id, order_id, user_id, revenue, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, conv.BumpID, conv.OrderID, conv.UserID, conv.Revenue, conv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save conversion: %w", err)
	}
	return nil
}

func (s *PostgresAnalyticsStore) Totals(ctx context.Context, bumpID int64, from, to time.Time) (models.StatTotals, error) {
	var t models.StatTotals

	impQuery := `SELECT COUNT(*) FROM bump_impressions WHERE created_at >= $1 AND created_at <= $2`
	convQuery := `SELECT COUNT(*), COALESCE(SUM(revenue), 0) FROM bump_conversions WHERE created_at >= $1 AND created_at <= $2`
	args := []any{from, to}
	if bumpID != 0 {
		impQuery += ` AND bump_id = $3`
		convQuery += ` AND bump_id = $3`
		args = append(args, bumpID)
	}

	if err := s.pool.QueryRow(ctx, impQuery, args...).Scan(&t.Impressions); err != nil {
		return t, fmt.Errorf("failed to count impressions: %w", err)
	}
	if err := s.pool.QueryRow(ctx, convQuery, args...).Scan(&t.Conversions, &t.Revenue); err != nil {
		return t, fmt.Errorf("failed to sum conversions: %w", err)
	}
	return t, nil
}

func (s *PostgresAnalyticsStore) TotalsByBump(ctx context.Context, from, to time.Time) (map[int64]models.StatTotals, error) {
	result := make(map[int64]models.StatTotals)

	rows, err := s.pool.Query(ctx, `
		SELECT bump_id, COUNT(*) FROM bump_impressions
		WHERE created_at >= $1 AND created_at <= $2
		GROUP BY bump_id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to group impressions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		t := result[id]
		t.Impressions = count
		result[id] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT bump_id, COUNT(*), COALESCE(SUM(revenue), 0) FROM bump_conversions
		WHERE created_at >= $1 AND created_at <= $2
		GROUP BY bump_id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to group conversions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, count int64
		var revenue float64
		if err := rows.Scan(&id, &count, &revenue); err != nil {
			return nil, err
		}
		t := result[id]
		t.Conversions = count
		t.Revenue = revenue
		result[id] = t
	}
	return result, rows.Err()
}

func (s *PostgresAnalyticsStore) DailyCounts(ctx context.Context, bumpID int64, from, to time.Time) (map[string]models.StatTotals, error) {
	result := make(map[string]models.StatTotals)

	impQuery := `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD'), COUNT(*)
		FROM bump_impressions
		WHERE created_at >= $1 AND created_at <= $2`
	convQuery := `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD'), COUNT(*), COALESCE(SUM(revenue), 0)
		FROM bump_conversions
		WHERE created_at >= $1 AND created_at <= $2`
	args := []any{from, to}
	if bumpID != 0 {
		impQuery += ` AND bump_id = $3`
		convQuery += ` AND bump_id = $3`
		args = append(args, bumpID)
	}
	impQuery += ` GROUP BY 1`
	convQuery += ` GROUP BY 1`

	rows, err := s.pool.Query(ctx, impQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group impressions by day: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var day string
		var count int64
		if err := rows.Scan(&day, &count); err != nil {
			return nil, err
		}
		t := result[day]
		t.Impressions = count
		result[day] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, convQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group conversions by day: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var day string
		var count int64
		var revenue float64
		if err := rows.Scan(&day, &count, &revenue); err != nil {
			return nil, err
		}
		t := result[day]
		t.Conversions = count
		t.Revenue = revenue
		result[day] = t
	}
	return result, rows.Err()
}
