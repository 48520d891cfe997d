package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tcche/orderbump/internal/models"
)

const bumpColumns = `id, title, status, bump_product_id, trigger_product_ids, trigger_category_ids,
	discount_type, discount_value, headline, description, placement, design_style, priority,
	created_at, updated_at`

// PostgresBumpRepo implements BumpRepo using PostgreSQL.
type PostgresBumpRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresBumpRepo(pool *pgxpool.Pool) *PostgresBumpRepo {
	return &PostgresBumpRepo{pool: pool}
}

// Setup creates the bumps table if it does not exist.
func (r *PostgresBumpRepo) Setup(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS bumps (
			id                   BIGSERIAL PRIMARY KEY,
			title                TEXT NOT NULL,
			status               TEXT NOT NULL DEFAULT 'draft',
			bump_product_id      BIGINT NOT NULL,
			trigger_product_ids  BIGINT[] NOT NULL DEFAULT '{}',
			trigger_category_ids BIGINT[] NOT NULL DEFAULT '{}',
			discount_type        TEXT NOT NULL DEFAULT 'none',
			discount_value       DOUBLE PRECISION NOT NULL DEFAULT 0,
			headline             TEXT NOT NULL DEFAULT '',
			description          TEXT NOT NULL DEFAULT '',
			placement            TEXT NOT NULL DEFAULT 'after_order_review',
			design_style         TEXT NOT NULL DEFAULT 'classic',
			priority             INT NOT NULL DEFAULT 10,
			created_at           TIMESTAMPTZ NOT NULL,
			updated_at           TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create bumps table: %w", err)
	}
	return nil
}

func (r *PostgresBumpRepo) List(ctx context.Context, status models.BumpStatus) ([]*models.Bump, error) {
	query := `SELECT ` + bumpColumns + ` FROM bumps ORDER BY id`
	args := []any{}
	if status != "" {
		query = `SELECT ` + bumpColumns + ` FROM bumps WHERE status = $1 ORDER BY id`
		args = append(args, status)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bumps: %w", err)
	}
	defer rows.Close()

	var bumps []*models.Bump
	for rows.Next() {
		b, err := scanBump(rows)
		if err != nil {
			return nil, err
		}
		bumps = append(bumps, b)
	}
	return bumps, rows.Err()
}

func (r *PostgresBumpRepo) Get(ctx context.Context, id int64) (*models.Bump, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bumpColumns+` FROM bumps WHERE id = $1`, id)
	b, err := scanBump(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bump: %w", err)
	}
	return b, nil
}

func (r *PostgresBumpRepo) Create(ctx context.Context, b *models.Bump) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO bumps (
			title, status, bump_product_id, trigger_product_ids, trigger_category_ids,
			discount_type, discount_value, headline, description, placement, design_style,
			priority, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`,
		b.Title, b.Status, b.BumpProductID, int64Array(b.TriggerProductIDs), int64Array(b.TriggerCategoryIDs),
		b.DiscountType, b.DiscountValue, b.Headline, b.Description, b.Position, b.DesignStyle,
		b.Priority, b.CreatedAt, b.UpdatedAt,
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("failed to create bump: %w", err)
	}
	return nil
}

func (r *PostgresBumpRepo) Update(ctx context.Context, b *models.Bump) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bumps SET
			title = $2, status = $3, bump_product_id = $4,
			trigger_product_ids = $5, trigger_category_ids = $6,
			discount_type = $7, discount_value = $8,
			headline = $9, description = $10, placement = $11, design_style = $12,
			priority = $13, updated_at = $14
		WHERE id = $1
	`,
		b.ID, b.Title, b.Status, b.BumpProductID,
		int64Array(b.TriggerProductIDs), int64Array(b.TriggerCategoryIDs),
		b.DiscountType, b.DiscountValue,
		b.Headline, b.Description, b.Position, b.DesignStyle,
		b.Priority, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update bump: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PostgresBumpRepo) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM bumps WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete bump: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// int64Array guards against nil slices being encoded as SQL NULL.
func int64Array(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func scanBump(row pgx.Row) (*models.Bump, error) {
	var b models.Bump
	err := row.Scan(
		&b.ID, &b.Title, &b.Status, &b.BumpProductID,
		&b.TriggerProductIDs, &b.TriggerCategoryIDs,
		&b.DiscountType, &b.DiscountValue,
		&b.Headline, &b.Description, &b.Position, &b.DesignStyle,
		&b.Priority, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
