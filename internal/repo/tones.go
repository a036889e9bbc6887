package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const toneColumns = `id, business_id, name, description, tone_instructions, is_default, created_at, updated_at`

// CreateTone inserts a tone profile. Setting IsDefault clears any previous
// default for the business inside the same transaction.
func (r *PostgresRepository) CreateTone(ctx context.Context, tone Tone) (*Tone, error) {
	var out Tone
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		if tone.IsDefault {
			if _, err := tx.Exec(ctx, `UPDATE business_tones SET is_default = false WHERE business_id = $1;`, tone.BusinessID); err != nil {
				return fmt.Errorf("clear default tone: %w", err)
			}
		}
		const q = `
INSERT INTO business_tones (business_id, name, description, tone_instructions, is_default)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + toneColumns + `;`
		return tx.QueryRow(ctx, q, tone.BusinessID, tone.Name, tone.Description, tone.Instructions, tone.IsDefault).
			Scan(&out.ID, &out.BusinessID, &out.Name, &out.Description, &out.Instructions, &out.IsDefault, &out.CreatedAt, &out.UpdatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("create tone: %w", err)
	}
	return &out, nil
}

// ListTones returns tone profiles for a business, default first.
func (r *PostgresRepository) ListTones(ctx context.Context, businessID string) ([]Tone, error) {
	const q = `
SELECT ` + toneColumns + `
FROM business_tones
WHERE business_id = $1
ORDER BY is_default DESC, created_at DESC;
`
	rows, err := r.pool.Query(ctx, q, businessID)
	if err != nil {
		return nil, fmt.Errorf("list tones: %w", err)
	}
	defer rows.Close()

	var out []Tone
	for rows.Next() {
		var t Tone
		if err := rows.Scan(&t.ID, &t.BusinessID, &t.Name, &t.Description, &t.Instructions, &t.IsDefault, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tone: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tones: %w", err)
	}
	return out, nil
}

// GetDefaultTone returns the default tone for a business, or ErrNotFound when
// none is marked default.
func (r *PostgresRepository) GetDefaultTone(ctx context.Context, businessID string) (*Tone, error) {
	const q = `
SELECT ` + toneColumns + `
FROM business_tones
WHERE business_id = $1 AND is_default;
`
	var t Tone
	err := r.pool.QueryRow(ctx, q, businessID).
		Scan(&t.ID, &t.BusinessID, &t.Name, &t.Description, &t.Instructions, &t.IsDefault, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default tone: %w", err)
	}
	return &t, nil
}

// UpdateTone updates a tone profile, keeping default exclusivity.
func (r *PostgresRepository) UpdateTone(ctx context.Context, tone Tone) (*Tone, error) {
	var out Tone
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		if tone.IsDefault {
			if _, err := tx.Exec(ctx, `UPDATE business_tones SET is_default = false WHERE business_id = $1 AND id <> $2;`, tone.BusinessID, tone.ID); err != nil {
				return fmt.Errorf("clear default tone: %w", err)
			}
		}
		const q = `
UPDATE business_tones
SET name = $2, description = $3, tone_instructions = $4, is_default = $5, updated_at = NOW()
WHERE id = $1
RETURNING ` + toneColumns + `;`
		return tx.QueryRow(ctx, q, tone.ID, tone.Name, tone.Description, tone.Instructions, tone.IsDefault).
			Scan(&out.ID, &out.BusinessID, &out.Name, &out.Description, &out.Instructions, &out.IsDefault, &out.CreatedAt, &out.UpdatedAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update tone: %w", err)
	}
	return &out, nil
}

// DeleteTone removes a tone profile by id.
func (r *PostgresRepository) DeleteTone(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM business_tones WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete tone: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
