package wa

import (
	"encoding/json"
	"fmt"
)

const (
	businessAccountObject = "whatsapp_business_account"
	subscribeMode         = "subscribe"
)

type webhookEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value *struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []webhookMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *webhookMedia `json:"image"`
	Audio    *webhookMedia `json:"audio"`
	Document *webhookMedia `json:"document"`
}

type webhookMedia struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Caption  string `json:"caption"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename"`
}

// VerifyHandshake validates a webhook subscription handshake. It returns the
// challenge to echo back, or ErrVerificationFailed when mode or token do not
// match the expected per-business verify token.
func VerifyHandshake(mode, token, challenge, expectedToken string) (string, error) {
	if mode != subscribeMode || expectedToken == "" || token != expectedToken {
		return "", ErrVerificationFailed
	}
	return challenge, nil
}

// ParseInbound normalizes a webhook body into an InboundEvent. It returns
// (nil, nil) for valid envelopes carrying no messages, e.g. delivery-status
// callbacks; that is a frequent, non-error case. The target phone-number id
// is taken from the envelope metadata because one process services many
// tenants' channels.
func ParseInbound(body []byte) (*InboundEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Object != businessAccountObject {
		return nil, fmt.Errorf("%w: object %q", ErrMalformedPayload, env.Object)
	}
	if len(env.Entry) == 0 {
		return nil, fmt.Errorf("%w: no entry", ErrMalformedPayload)
	}
	if len(env.Entry[0].Changes) == 0 || env.Entry[0].Changes[0].Value == nil {
		return nil, fmt.Errorf("%w: no changes value", ErrMalformedPayload)
	}

	value := env.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 {
		return nil, nil
	}

	msg := value.Messages[0]
	event := &InboundEvent{
		From:          msg.From,
		PhoneNumberID: value.Metadata.PhoneNumberID,
		MessageID:     msg.ID,
		Timestamp:     msg.Timestamp,
	}

	switch {
	case msg.Text != nil:
		event.Type = TypeText
		event.Content = msg.Text.Body
	case msg.Image != nil:
		// Images carry no direct URL; bytes are fetched by media id.
		event.Type = TypeImage
		event.Content = msg.Image.Caption
		event.MediaID = msg.Image.ID
		event.MimeType = msg.Image.MimeType
	case msg.Audio != nil:
		event.Type = TypeAudio
		event.MediaID = msg.Audio.ID
		event.MediaURL = msg.Audio.URL
		event.MimeType = msg.Audio.MimeType
	case msg.Document != nil:
		event.Type = TypeDocument
		event.Content = msg.Document.Caption
		event.MediaID = msg.Document.ID
		event.MediaURL = msg.Document.URL
		event.Filename = msg.Document.Filename
	default:
		event.Type = TypeUnknown
		event.Content = "Unsupported message type"
	}

	return event, nil
}
