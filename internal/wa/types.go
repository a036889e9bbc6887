package wa

// MessageType is the closed set of inbound message modalities.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeAudio    MessageType = "audio"
	TypeDocument MessageType = "document"
	TypeUnknown  MessageType = "unknown"
)

// Credentials carries one tenant's channel identity for a single call.
// Passed explicitly so concurrent events for different businesses can never
// observe each other's tokens.
type Credentials struct {
	PhoneNumberID string
	AccessToken   string
}

// InboundEvent is the normalized form of one provider message. It is the
// in-memory contract between the adapter and the orchestrator; it is never
// persisted as-is.
type InboundEvent struct {
	From          string
	PhoneNumberID string
	MessageID     string
	Type          MessageType
	Content       string
	MediaID       string
	MediaURL      string
	MimeType      string
	Filename      string
	Timestamp     string
}

// HasMedia reports whether the modality requires a media download.
func (e *InboundEvent) HasMedia() bool {
	return e.Type == TypeImage || e.Type == TypeAudio
}

// SendReceipt is the provider acknowledgement for an outbound message.
type SendReceipt struct {
	MessageID string
}
