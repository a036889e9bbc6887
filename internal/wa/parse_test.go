package wa

import (
	"errors"
	"testing"
)

func TestVerifyHandshake(t *testing.T) {
	echo, err := VerifyHandshake("subscribe", "secret", "12345", "secret")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if echo != "12345" {
		t.Fatalf("expected challenge echoed, got %q", echo)
	}

	if _, err := VerifyHandshake("subscribe", "wrong", "12345", "secret"); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected verification failure for wrong token, got %v", err)
	}
	if _, err := VerifyHandshake("unsubscribe", "secret", "12345", "secret"); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected verification failure for wrong mode, got %v", err)
	}
	if _, err := VerifyHandshake("subscribe", "", "12345", ""); !errors.Is(err, ErrVerificationFailed) {
		t.Fatal("expected verification failure when no token is configured")
	}
}

func TestParseInboundText(t *testing.T) {
	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {
			"metadata": {"phone_number_id": "111222"},
			"messages": [{"from": "628111", "id": "wamid.1", "timestamp": "1700000000", "text": {"body": "hello"}}]
		}}]}]
	}`)

	event, err := ParseInbound(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event == nil {
		t.Fatal("expected event")
	}
	if event.Type != TypeText {
		t.Fatalf("expected text, got %s", event.Type)
	}
	if event.Content != "hello" {
		t.Fatalf("expected body, got %q", event.Content)
	}
	if event.PhoneNumberID != "111222" {
		t.Fatalf("expected phone number id from metadata, got %q", event.PhoneNumberID)
	}
	if event.From != "628111" || event.MessageID != "wamid.1" {
		t.Fatalf("unexpected sender fields: %+v", event)
	}
	if event.HasMedia() {
		t.Fatal("text must not require media download")
	}
}

func TestParseInboundImage(t *testing.T) {
	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {
			"metadata": {"phone_number_id": "111222"},
			"messages": [{"from": "628111", "id": "wamid.2", "image": {"id": "media-9", "caption": "what is this", "mime_type": "image/jpeg"}}]
		}}]}]
	}`)

	event, err := ParseInbound(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Type != TypeImage {
		t.Fatalf("expected image, got %s", event.Type)
	}
	if event.MediaID != "media-9" {
		t.Fatalf("expected media id, got %q", event.MediaID)
	}
	if event.MediaURL != "" {
		t.Fatalf("images carry no direct url, got %q", event.MediaURL)
	}
	if event.Content != "what is this" {
		t.Fatalf("expected caption as content, got %q", event.Content)
	}
	if !event.HasMedia() {
		t.Fatal("image requires media download")
	}
}

func TestParseInboundAudio(t *testing.T) {
	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {
			"metadata": {"phone_number_id": "111222"},
			"messages": [{"from": "628111", "id": "wamid.3", "audio": {"id": "media-7", "url": "https://cdn.example/a.ogg", "mime_type": "audio/ogg"}}]
		}}]}]
	}`)

	event, err := ParseInbound(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Type != TypeAudio {
		t.Fatalf("expected audio, got %s", event.Type)
	}
	if event.MediaID != "media-7" || event.MediaURL != "https://cdn.example/a.ogg" {
		t.Fatalf("unexpected media fields: %+v", event)
	}
}

func TestParseInboundUnknownType(t *testing.T) {
	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {
			"metadata": {"phone_number_id": "111222"},
			"messages": [{"from": "628111", "id": "wamid.4", "sticker": {"id": "s1"}}]
		}}]}]
	}`)

	event, err := ParseInbound(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Type != TypeUnknown {
		t.Fatalf("expected unknown, got %s", event.Type)
	}
	if event.Content != "Unsupported message type" {
		t.Fatalf("unexpected placeholder content: %q", event.Content)
	}
}

func TestParseInboundStatusCallback(t *testing.T) {
	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {
			"metadata": {"phone_number_id": "111222"},
			"statuses": [{"id": "wamid.5", "status": "delivered"}]
		}}]}]
	}`)

	event, err := ParseInbound(body)
	if err != nil {
		t.Fatalf("status callbacks must not error: %v", err)
	}
	if event != nil {
		t.Fatalf("expected nil event for status callback, got %+v", event)
	}
}

func TestParseInboundMalformed(t *testing.T) {
	cases := map[string][]byte{
		"not json":     []byte("{"),
		"wrong object": []byte(`{"object": "page", "entry": [{"changes": [{"value": {}}]}]}`),
		"no entry":     []byte(`{"object": "whatsapp_business_account", "entry": []}`),
		"no value":     []byte(`{"object": "whatsapp_business_account", "entry": [{"changes": []}]}`),
	}
	for name, body := range cases {
		if _, err := ParseInbound(body); !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("%s: expected ErrMalformedPayload, got %v", name, err)
		}
	}
}
