package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func parseSQLiteTime(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// -- Businesses --

func (r *SQLiteRepository) CreateBusiness(ctx context.Context, name string, description *string) (*Business, error) {
	const q = `
INSERT INTO businesses (id, name, description)
VALUES (?, ?, ?)
RETURNING id, name, description, status, created_at, updated_at;
`
	var b Business
	err := r.db.QueryRowContext(ctx, q, newID(), name, description).
		Scan(&b.ID, &b.Name, &b.Description, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create business: %w", err)
	}
	return &b, nil
}

func (r *SQLiteRepository) ListBusinesses(ctx context.Context) ([]Business, error) {
	const q = `
SELECT id, name, description, status, created_at, updated_at
FROM businesses
ORDER BY created_at DESC;
`
	rows, err := r.db.QueryContext(ctx, q)
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

func (r *SQLiteRepository) GetBusiness(ctx context.Context, id string) (*Business, error) {
	const q = `
SELECT id, name, description, status, created_at, updated_at
FROM businesses
WHERE id = ?;
`
	var b Business
	err := r.db.QueryRowContext(ctx, q, id).
		Scan(&b.ID, &b.Name, &b.Description, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get business: %w", err)
	}
	return &b, nil
}

func (r *SQLiteRepository) UpdateBusiness(ctx context.Context, id, name string, description *string, status string) (*Business, error) {
	const q = `
UPDATE businesses
SET name = ?, description = ?, status = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
RETURNING id, name, description, status, created_at, updated_at;
`
	var b Business
	err := r.db.QueryRowContext(ctx, q, name, description, status, id).
		Scan(&b.ID, &b.Name, &b.Description, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update business: %w", err)
	}
	return &b, nil
}

func (r *SQLiteRepository) DeleteBusiness(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM businesses WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete business: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// -- Channel configs --

const sqliteChannelConfigColumns = `id, business_id, phone_number_id, access_token, verify_token, status, created_at, updated_at`

func (r *SQLiteRepository) CreateChannelConfig(ctx context.Context, cfg ChannelConfig) (*ChannelConfig, error) {
	const q = `
INSERT INTO whatsapp_configs (id, business_id, phone_number_id, access_token, verify_token)
VALUES (?, ?, ?, ?, ?)
RETURNING ` + sqliteChannelConfigColumns + `;`
	var out ChannelConfig
	err := r.db.QueryRowContext(ctx, q, newID(), cfg.BusinessID, cfg.PhoneNumberID, cfg.AccessToken, cfg.VerifyToken).
		Scan(&out.ID, &out.BusinessID, &out.PhoneNumberID, &out.AccessToken, &out.VerifyToken, &out.Status, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create channel config: %w", err)
	}
	return &out, nil
}

func (r *SQLiteRepository) UpdateChannelConfig(ctx context.Context, cfg ChannelConfig) (*ChannelConfig, error) {
	const q = `
UPDATE whatsapp_configs
SET phone_number_id = ?, access_token = ?, verify_token = ?, status = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
RETURNING ` + sqliteChannelConfigColumns + `;`
	var out ChannelConfig
	err := r.db.QueryRowContext(ctx, q, cfg.PhoneNumberID, cfg.AccessToken, cfg.VerifyToken, cfg.Status, cfg.ID).
		Scan(&out.ID, &out.BusinessID, &out.PhoneNumberID, &out.AccessToken, &out.VerifyToken, &out.Status, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update channel config: %w", err)
	}
	return &out, nil
}

func (r *SQLiteRepository) GetChannelConfigByPhoneNumberID(ctx context.Context, phoneNumberID string) (*ChannelConfig, error) {
	const q = `
SELECT ` + sqliteChannelConfigColumns + `
FROM whatsapp_configs
WHERE phone_number_id = ? AND status = 'active';
`
	var out ChannelConfig
	err := r.db.QueryRowContext(ctx, q, phoneNumberID).
		Scan(&out.ID, &out.BusinessID, &out.PhoneNumberID, &out.AccessToken, &out.VerifyToken, &out.Status, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get channel config by phone number: %w", err)
	}
	return &out, nil
}

func (r *SQLiteRepository) GetChannelConfigByVerifyToken(ctx context.Context, verifyToken string) (*ChannelConfig, error) {
	const q = `
SELECT ` + sqliteChannelConfigColumns + `
FROM whatsapp_configs
WHERE verify_token = ? AND verify_token <> '' AND status = 'active';
`
	var out ChannelConfig
	err := r.db.QueryRowContext(ctx, q, verifyToken).
		Scan(&out.ID, &out.BusinessID, &out.PhoneNumberID, &out.AccessToken, &out.VerifyToken, &out.Status, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get channel config by verify token: %w", err)
	}
	return &out, nil
}

func (r *SQLiteRepository) GetChannelConfigByBusinessID(ctx context.Context, businessID string) (*ChannelConfig, error) {
	const q = `
SELECT ` + sqliteChannelConfigColumns + `
FROM whatsapp_configs
WHERE business_id = ? AND status = 'active';
`
	var out ChannelConfig
	err := r.db.QueryRowContext(ctx, q, businessID).
		Scan(&out.ID, &out.BusinessID, &out.PhoneNumberID, &out.AccessToken, &out.VerifyToken, &out.Status, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get channel config by business: %w", err)
	}
	return &out, nil
}

func (r *SQLiteRepository) DeleteChannelConfig(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM whatsapp_configs WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete channel config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// -- Tones --

const sqliteToneColumns = `id, business_id, name, description, tone_instructions, is_default, created_at, updated_at`

func (r *SQLiteRepository) CreateTone(ctx context.Context, tone Tone) (*Tone, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if tone.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE business_tones SET is_default = 0 WHERE business_id = ?;`, tone.BusinessID); err != nil {
			return nil, fmt.Errorf("clear default tone: %w", err)
		}
	}

	const q = `
INSERT INTO business_tones (id, business_id, name, description, tone_instructions, is_default)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING ` + sqliteToneColumns + `;`
	var out Tone
	err = tx.QueryRowContext(ctx, q, newID(), tone.BusinessID, tone.Name, tone.Description, tone.Instructions, tone.IsDefault).
		Scan(&out.ID, &out.BusinessID, &out.Name, &out.Description, &out.Instructions, &out.IsDefault, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create tone: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &out, nil
}

func (r *SQLiteRepository) ListTones(ctx context.Context, businessID string) ([]Tone, error) {
	const q = `
SELECT ` + sqliteToneColumns + `
FROM business_tones
WHERE business_id = ?
ORDER BY is_default DESC, created_at DESC;
`
	rows, err := r.db.QueryContext(ctx, q, businessID)
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

func (r *SQLiteRepository) GetDefaultTone(ctx context.Context, businessID string) (*Tone, error) {
	const q = `
SELECT ` + sqliteToneColumns + `
FROM business_tones
WHERE business_id = ? AND is_default = 1;
`
	var t Tone
	err := r.db.QueryRowContext(ctx, q, businessID).
		Scan(&t.ID, &t.BusinessID, &t.Name, &t.Description, &t.Instructions, &t.IsDefault, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default tone: %w", err)
	}
	return &t, nil
}

func (r *SQLiteRepository) UpdateTone(ctx context.Context, tone Tone) (*Tone, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if tone.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE business_tones SET is_default = 0 WHERE business_id = ? AND id <> ?;`, tone.BusinessID, tone.ID); err != nil {
			return nil, fmt.Errorf("clear default tone: %w", err)
		}
	}

	const q = `
UPDATE business_tones
SET name = ?, description = ?, tone_instructions = ?, is_default = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
RETURNING ` + sqliteToneColumns + `;`
	var out Tone
	err = tx.QueryRowContext(ctx, q, tone.Name, tone.Description, tone.Instructions, tone.IsDefault, tone.ID).
		Scan(&out.ID, &out.BusinessID, &out.Name, &out.Description, &out.Instructions, &out.IsDefault, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update tone: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &out, nil
}

func (r *SQLiteRepository) DeleteTone(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM business_tones WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete tone: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// -- Conversations --

func (r *SQLiteRepository) CreateOrGetConversation(ctx context.Context, businessID, phoneNumber string) (*Conversation, error) {
	const q = `
INSERT INTO conversations (id, business_id, phone_number)
VALUES (?, ?, ?)
ON CONFLICT (business_id, phone_number) DO UPDATE SET updated_at = CURRENT_TIMESTAMP
RETURNING id, business_id, phone_number, status, created_at, updated_at;
`
	var c Conversation
	err := r.db.QueryRowContext(ctx, q, newID(), businessID, phoneNumber).
		Scan(&c.ID, &c.BusinessID, &c.PhoneNumber, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create or get conversation: %w", err)
	}
	return &c, nil
}

func (r *SQLiteRepository) ListConversations(ctx context.Context, businessID string) ([]ConversationSummary, error) {
	const q = `
SELECT c.id, c.business_id, c.phone_number, c.status, c.created_at, c.updated_at,
       COUNT(m.id), MAX(m.created_at)
FROM conversations c
LEFT JOIN messages m ON m.conversation_id = c.id
WHERE c.business_id = ?
GROUP BY c.id
ORDER BY MAX(m.created_at) DESC NULLS LAST, c.created_at DESC;
`
	rows, err := r.db.QueryContext(ctx, q, businessID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var s ConversationSummary
		// MAX() strips the column's declared type, so the driver hands the
		// timestamp back as text.
		var last sql.NullString
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.PhoneNumber, &s.Status, &s.CreatedAt, &s.UpdatedAt, &s.MessageCount, &last); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if last.Valid {
			ts, err := parseSQLiteTime(last.String)
			if err != nil {
				return nil, fmt.Errorf("parse last message time: %w", err)
			}
			s.LastMessageAt = &ts
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

// -- Messages --

func (r *SQLiteRepository) InsertMessage(ctx context.Context, msg Message) (*Message, bool, error) {
	const q = `
INSERT INTO messages (id, business_id, conversation_id, provider_message_id, from_number, to_number,
                      message_type, content, media_url, local_file_path, direction)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (provider_message_id) DO NOTHING
RETURNING id, created_at;
`
	err := r.db.QueryRowContext(ctx, q,
		newID(),
		msg.BusinessID,
		msg.ConversationID,
		msg.ProviderID,
		msg.FromNumber,
		msg.ToNumber,
		msg.Type,
		msg.Content,
		msg.MediaURL,
		msg.LocalFilePath,
		msg.Direction,
	).Scan(&msg.ID, &msg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert message: %w", err)
	}
	return &msg, true, nil
}

func (r *SQLiteRepository) ListConversationMessages(ctx context.Context, conversationID string, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, business_id, conversation_id, provider_message_id, from_number, to_number,
       message_type, content, media_url, local_file_path, direction, created_at
FROM messages
WHERE conversation_id = ?
ORDER BY created_at ASC, rowid ASC
LIMIT ? OFFSET ?;
`
	rows, err := r.db.QueryContext(ctx, q, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list conversation messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.BusinessID, &m.ConversationID, &m.ProviderID, &m.FromNumber, &m.ToNumber,
			&m.Type, &m.Content, &m.MediaURL, &m.LocalFilePath, &m.Direction, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) RecentHistory(ctx context.Context, businessID, phoneNumber, excludeMessageID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
SELECT CASE WHEN m.direction = 'inbound' THEN 'user' ELSE 'assistant' END AS role,
       CASE WHEN m.message_type = 'audio' THEN 'Audio message: ' || COALESCE(m.content, '')
            WHEN m.message_type = 'image' THEN 'Image: ' || COALESCE(m.content, '')
            ELSE COALESCE(m.content, '') END AS content
FROM messages m
JOIN conversations c ON m.conversation_id = c.id
WHERE c.business_id = ? AND c.phone_number = ? AND m.id <> ?
ORDER BY m.created_at DESC, m.rowid DESC
LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, businessID, phoneNumber, excludeMessageID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.Role, &e.Content); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	reverseHistory(entries)
	return entries, nil
}

func (r *SQLiteRepository) SetMessageLocalPath(ctx context.Context, messageID, path string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET local_file_path = ? WHERE id = ?;`, path, messageID)
	if err != nil {
		return fmt.Errorf("set message local path: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	return nil
}

// -- Media files --

func (r *SQLiteRepository) InsertMediaFile(ctx context.Context, file MediaFile) (*MediaFile, error) {
	const q = `
INSERT INTO media_files (id, business_id, message_id, file_type, original_filename, local_file_path, file_size, mime_type)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id, created_at;
`
	err := r.db.QueryRowContext(ctx, q,
		newID(),
		file.BusinessID,
		file.MessageID,
		file.FileType,
		file.OriginalFilename,
		file.LocalPath,
		file.FileSize,
		file.MimeType,
	).Scan(&file.ID, &file.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert media file: %w", err)
	}
	return &file, nil
}
