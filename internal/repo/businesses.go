package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CreateBusiness inserts a new tenant.
func (r *PostgresRepository) CreateBusiness(ctx context.Context, name string, description *string) (*Business, error) {
	const q = `
INSERT INTO businesses (name, description)
VALUES ($1, $2)
RETURNING id, name, description, status, created_at, updated_at;
`
	var b Business
	err := r.pool.QueryRow(ctx, q, name, description).
		Scan(&b.ID, &b.Name, &b.Description, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create business: %w", err)
	}
	return &b, nil
}

// ListBusinesses returns all tenants, newest first.
func (r *PostgresRepository) ListBusinesses(ctx context.Context) ([]Business, error) {
	const q = `
SELECT id, name, description, status, created_at, updated_at
FROM businesses
ORDER BY created_at DESC;
`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	defer rows.Close()

	var out []Business
	for rows.Next() {
		var b Business
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan business: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate businesses: %w", err)
	}
	return out, nil
}

// GetBusiness returns a tenant by id.
func (r *PostgresRepository) GetBusiness(ctx context.Context, id string) (*Business, error) {
	const q = `
SELECT id, name, description, status, created_at, updated_at
FROM businesses
WHERE id = $1;
`
	var b Business
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&b.ID, &b.Name, &b.Description, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get business: %w", err)
	}
	return &b, nil
}

// UpdateBusiness updates name, description and lifecycle status.
func (r *PostgresRepository) UpdateBusiness(ctx context.Context, id, name string, description *string, status string) (*Business, error) {
	const q = `
UPDATE businesses
SET name = $2, description = $3, status = $4, updated_at = NOW()
WHERE id = $1
RETURNING id, name, description, status, created_at, updated_at;
`
	var b Business
	err := r.pool.QueryRow(ctx, q, id, name, description, status).
		Scan(&b.ID, &b.Name, &b.Description, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update business: %w", err)
	}
	return &b, nil
}

// DeleteBusiness removes a tenant; dependent rows cascade.
func (r *PostgresRepository) DeleteBusiness(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM businesses WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete business: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
