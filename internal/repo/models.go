package repo

import "time"

// Message direction constants.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Business represents a tenant in the businesses table.
type Business struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ChannelConfig holds a business's WhatsApp Cloud API credentials.
type ChannelConfig struct {
	ID            string    `json:"id"`
	BusinessID    string    `json:"business_id"`
	PhoneNumberID string    `json:"phone_number_id"`
	AccessToken   string    `json:"access_token"`
	VerifyToken   string    `json:"verify_token"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Tone stores business-specific instructions appended to the AI system prompt.
type Tone struct {
	ID           string    `json:"id"`
	BusinessID   string    `json:"business_id"`
	Name         string    `json:"name"`
	Description  *string   `json:"description"`
	Instructions string    `json:"tone_instructions"`
	IsDefault    bool      `json:"is_default"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Conversation is the running thread between a business and one phone number.
type Conversation struct {
	ID          string    `json:"id"`
	BusinessID  string    `json:"business_id"`
	PhoneNumber string    `json:"phone_number"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ConversationSummary augments a conversation with aggregate message info.
type ConversationSummary struct {
	Conversation
	MessageCount  int64      `json:"message_count"`
	LastMessageAt *time.Time `json:"last_message_at"`
}

// Message is one immutable message row. ProviderID carries the WhatsApp
// message id and is unique, which makes duplicate webhook deliveries no-ops.
type Message struct {
	ID             string    `json:"id"`
	BusinessID     string    `json:"business_id"`
	ConversationID string    `json:"conversation_id"`
	ProviderID     string    `json:"provider_message_id"`
	FromNumber     string    `json:"from_number"`
	ToNumber       string    `json:"to_number"`
	Type           string    `json:"message_type"`
	Content        *string   `json:"content"`
	MediaURL       *string   `json:"media_url"`
	LocalFilePath  *string   `json:"local_file_path"`
	Direction      string    `json:"direction"`
	CreatedAt      time.Time `json:"created_at"`
}

// MediaFile records a locally persisted copy of provider-hosted media.
// MessageID references the internal message id, not the provider id.
type MediaFile struct {
	ID               string    `json:"id"`
	BusinessID       string    `json:"business_id"`
	MessageID        string    `json:"message_id"`
	FileType         string    `json:"file_type"`
	OriginalFilename *string   `json:"original_filename"`
	LocalPath        string    `json:"local_path"`
	FileSize         int64     `json:"file_size"`
	MimeType         *string   `json:"mime_type"`
	CreatedAt        time.Time `json:"created_at"`
}

// HistoryEntry is one prior conversation turn shaped for the model.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
