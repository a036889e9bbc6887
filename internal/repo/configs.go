package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const channelConfigColumns = `id, business_id, phone_number_id, access_token, verify_token, status, created_at, updated_at`

// CreateChannelConfig stores WhatsApp credentials for a business.
func (r *PostgresRepository) CreateChannelConfig(ctx context.Context, cfg ChannelConfig) (*ChannelConfig, error) {
	const q = `
INSERT INTO whatsapp_configs (business_id, phone_number_id, access_token, verify_token)
VALUES ($1, $2, $3, $4)
RETURNING ` + channelConfigColumns + `;`
	var out ChannelConfig
	err := r.pool.QueryRow(ctx, q, cfg.BusinessID, cfg.PhoneNumberID, cfg.AccessToken, cfg.VerifyToken).
		Scan(&out.ID, &out.BusinessID, &out.PhoneNumberID, &out.AccessToken, &out.VerifyToken, &out.Status, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create channel config: %w", err)
	}
	return &out, nil
}

// UpdateChannelConfig replaces credentials and status for an existing config.
func (r *PostgresRepository) UpdateChannelConfig(ctx context.Context, cfg ChannelConfig) (*ChannelConfig, error) {
	const q = `
UPDATE whatsapp_configs
SET phone_number_id = $2, access_token = $3, verify_token = $4, status = $5, updated_at = NOW()
WHERE id = $1
RETURNING ` + channelConfigColumns + `;`
	var out ChannelConfig
	err := r.pool.QueryRow(ctx, q, cfg.ID, cfg.PhoneNumberID, cfg.AccessToken, cfg.VerifyToken, cfg.Status).
		Scan(&out.ID, &out.BusinessID, &out.PhoneNumberID, &out.AccessToken, &out.VerifyToken, &out.Status, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update channel config: %w", err)
	}
	return &out, nil
}

// GetChannelConfigByPhoneNumberID resolves the active config servicing a
// provider phone-number id. ErrNotFound means the channel is unknown.
func (r *PostgresRepository) GetChannelConfigByPhoneNumberID(ctx context.Context, phoneNumberID string) (*ChannelConfig, error) {
	const q = `
SELECT ` + channelConfigColumns + `
FROM whatsapp_configs
WHERE phone_number_id = $1 AND status = 'active';
`
	var out ChannelConfig
	err := r.pool.QueryRow(ctx, q, phoneNumberID).
		Scan(&out.ID, &out.BusinessID, &out.PhoneNumberID, &out.AccessToken, &out.VerifyToken, &out.Status, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get channel config by phone number: %w", err)
	}
	return &out, nil
}

// GetChannelConfigByVerifyToken finds the active config whose handshake
// secret matches. Used to identify the tenant during webhook verification,
// which carries no channel identifier of its own.
func (r *PostgresRepository) GetChannelConfigByVerifyToken(ctx context.Context, verifyToken string) (*ChannelConfig, error) {
	const q = `
SELECT ` + channelConfigColumns + `
FROM whatsapp_configs
WHERE verify_token = $1 AND verify_token <> '' AND status = 'active';
`
	var out ChannelConfig
	err := r.pool.QueryRow(ctx, q, verifyToken).
		Scan(&out.ID, &out.BusinessID, &out.PhoneNumberID, &out.AccessToken, &out.VerifyToken, &out.Status, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get channel config by verify token: %w", err)
	}
	return &out, nil
}

// GetChannelConfigByBusinessID returns the business's active config.
func (r *PostgresRepository) GetChannelConfigByBusinessID(ctx context.Context, businessID string) (*ChannelConfig, error) {
	const q = `
SELECT ` + channelConfigColumns + `
FROM whatsapp_configs
WHERE business_id = $1 AND status = 'active';
`
	var out ChannelConfig
	err := r.pool.QueryRow(ctx, q, businessID).
		Scan(&out.ID, &out.BusinessID, &out.PhoneNumberID, &out.AccessToken, &out.VerifyToken, &out.Status, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get channel config by business: %w", err)
	}
	return &out, nil
}

// DeleteChannelConfig removes a config by id.
func (r *PostgresRepository) DeleteChannelConfig(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM whatsapp_configs WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete channel config: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
