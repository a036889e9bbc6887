package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository provides typed access to Postgres resources.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres opens a new connection pool to the database.
func NewPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		logger: logger.With("component", "repo"),
	}

	if err := r.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Ping ensures the database is reachable.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations applies schema migrations on the connected database.
func (r *PostgresRepository) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	return ApplyMigrations(ctx, r.pool, filesystem)
}

// WithTx executes fn within a database transaction.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

// CreateOrGetConversation returns the conversation for (business, counterparty),
// creating it on first contact. The upsert serialises concurrent creation on the
// unique (business_id, phone_number) key and refreshes last activity on reuse.
func (r *PostgresRepository) CreateOrGetConversation(ctx context.Context, businessID, phoneNumber string) (*Conversation, error) {
	const q = `
INSERT INTO conversations (business_id, phone_number)
VALUES ($1, $2)
ON CONFLICT (business_id, phone_number) DO UPDATE SET updated_at = NOW()
RETURNING id, business_id, phone_number, status, created_at, updated_at;
`
	var c Conversation
	err := r.pool.QueryRow(ctx, q, businessID, phoneNumber).
		Scan(&c.ID, &c.BusinessID, &c.PhoneNumber, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create or get conversation: %w", err)
	}
	return &c, nil
}

// ListConversations returns conversations for a business with message aggregates.
func (r *PostgresRepository) ListConversations(ctx context.Context, businessID string) ([]ConversationSummary, error) {
	const q = `
SELECT c.id, c.business_id, c.phone_number, c.status, c.created_at, c.updated_at,
       COUNT(m.id), MAX(m.created_at)
FROM conversations c
LEFT JOIN messages m ON m.conversation_id = c.id
WHERE c.business_id = $1
GROUP BY c.id
ORDER BY MAX(m.created_at) DESC NULLS LAST, c.created_at DESC;
`
	rows, err := r.pool.Query(ctx, q, businessID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var s ConversationSummary
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.PhoneNumber, &s.Status, &s.CreatedAt, &s.UpdatedAt, &s.MessageCount, &s.LastMessageAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

// InsertMessage stores a message row. A duplicate provider message id is a
// no-op: the method reports inserted=false and no error.
func (r *PostgresRepository) InsertMessage(ctx context.Context, msg Message) (*Message, bool, error) {
	const q = `
INSERT INTO messages (business_id, conversation_id, provider_message_id, from_number, to_number,
                      message_type, content, media_url, local_file_path, direction)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (provider_message_id) DO NOTHING
RETURNING id, created_at;
`
	err := r.pool.QueryRow(ctx, q,
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
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert message: %w", err)
	}
	return &msg, true, nil
}

// ListConversationMessages returns messages for a conversation oldest-first.
func (r *PostgresRepository) ListConversationMessages(ctx context.Context, conversationID string, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, business_id, conversation_id, provider_message_id, from_number, to_number,
       message_type, content, media_url, local_file_path, direction, created_at
FROM messages
WHERE conversation_id = $1
ORDER BY created_at ASC
LIMIT $2 OFFSET $3;
`
	rows, err := r.pool.Query(ctx, q, conversationID, limit, offset)
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

// RecentHistory returns the last prior turns for (business, counterparty)
// shaped as model roles, oldest first. The row identified by excludeMessageID
// (the inbound message being processed) is left out.
func (r *PostgresRepository) RecentHistory(ctx context.Context, businessID, phoneNumber, excludeMessageID string, limit int) ([]HistoryEntry, error) {
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
WHERE c.business_id = $1 AND c.phone_number = $2 AND m.id <> $3
ORDER BY m.created_at DESC
LIMIT $4;
`
	rows, err := r.pool.Query(ctx, q, businessID, phoneNumber, excludeMessageID, limit)
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

// SetMessageLocalPath records where the downloaded media copy lives.
func (r *PostgresRepository) SetMessageLocalPath(ctx context.Context, messageID, path string) error {
	const q = `UPDATE messages SET local_file_path = $2 WHERE id = $1;`
	ct, err := r.pool.Exec(ctx, q, messageID, path)
	if err != nil {
		return fmt.Errorf("set message local path: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	return nil
}

// InsertMediaFile records a locally persisted media copy.
func (r *PostgresRepository) InsertMediaFile(ctx context.Context, file MediaFile) (*MediaFile, error) {
	const q = `
INSERT INTO media_files (business_id, message_id, file_type, original_filename, local_file_path, file_size, mime_type)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at;
`
	err := r.pool.QueryRow(ctx, q,
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

func reverseHistory(entries []HistoryEntry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
