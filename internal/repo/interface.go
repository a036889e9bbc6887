package repo

import (
	"context"
	"errors"
	"io/fs"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for data persistence. Both the Postgres
// and the SQLite backends implement it.
type Repository interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Businesses
	CreateBusiness(ctx context.Context, name string, description *string) (*Business, error)
	ListBusinesses(ctx context.Context) ([]Business, error)
	GetBusiness(ctx context.Context, id string) (*Business, error)
	UpdateBusiness(ctx context.Context, id, name string, description *string, status string) (*Business, error)
	DeleteBusiness(ctx context.Context, id string) error

	// Channel configs
	CreateChannelConfig(ctx context.Context, cfg ChannelConfig) (*ChannelConfig, error)
	UpdateChannelConfig(ctx context.Context, cfg ChannelConfig) (*ChannelConfig, error)
	GetChannelConfigByPhoneNumberID(ctx context.Context, phoneNumberID string) (*ChannelConfig, error)
	GetChannelConfigByVerifyToken(ctx context.Context, verifyToken string) (*ChannelConfig, error)
	GetChannelConfigByBusinessID(ctx context.Context, businessID string) (*ChannelConfig, error)
	DeleteChannelConfig(ctx context.Context, id string) error

	// Tones
	CreateTone(ctx context.Context, tone Tone) (*Tone, error)
	ListTones(ctx context.Context, businessID string) ([]Tone, error)
	GetDefaultTone(ctx context.Context, businessID string) (*Tone, error)
	UpdateTone(ctx context.Context, tone Tone) (*Tone, error)
	DeleteTone(ctx context.Context, id string) error

	// Conversations
	CreateOrGetConversation(ctx context.Context, businessID, phoneNumber string) (*Conversation, error)
	ListConversations(ctx context.Context, businessID string) ([]ConversationSummary, error)

	// Messages. InsertMessage reports whether a row was actually inserted; a
	// duplicate provider message id is a no-op and returns inserted=false.
	InsertMessage(ctx context.Context, msg Message) (*Message, bool, error)
	ListConversationMessages(ctx context.Context, conversationID string, limit, offset int) ([]Message, error)
	RecentHistory(ctx context.Context, businessID, phoneNumber, excludeMessageID string, limit int) ([]HistoryEntry, error)
	SetMessageLocalPath(ctx context.Context, messageID, path string) error

	// Media files
	InsertMediaFile(ctx context.Context, file MediaFile) (*MediaFile, error)
}
