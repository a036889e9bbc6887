package wa

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(baseURL string) *Client {
	return New(Config{BaseURL: baseURL, Timeout: 5 * time.Second}, testLogger(), nil)
}

func TestSendTextDeliversPayload(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{{"id": "wamid.out.1"}},
		})
	}))
	defer srv.Close()

	creds := Credentials{PhoneNumberID: "555", AccessToken: "tok-a"}
	receipt, err := testClient(srv.URL).SendText(context.Background(), creds, "628111", "hi there")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if receipt.MessageID != "wamid.out.1" {
		t.Fatalf("expected provider message id, got %q", receipt.MessageID)
	}
	if gotPath != "/555/messages" {
		t.Fatalf("expected per-channel path, got %q", gotPath)
	}
	if gotAuth != "Bearer tok-a" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotBody["to"] != "628111" || gotBody["type"] != "text" {
		t.Fatalf("unexpected payload: %v", gotBody)
	}
}

func TestSendTextExpiredCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).SendText(context.Background(), Credentials{PhoneNumberID: "555", AccessToken: "stale"}, "628111", "hi")
	if !errors.Is(err, ErrCredentialExpired) {
		t.Fatalf("expected ErrCredentialExpired, got %v", err)
	}
}

func TestSendTextGraphAuthErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "token expired", "type": "OAuthException", "code": 190},
		})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).SendText(context.Background(), Credentials{PhoneNumberID: "555", AccessToken: "stale"}, "628111", "hi")
	if !errors.Is(err, ErrCredentialExpired) {
		t.Fatalf("expected ErrCredentialExpired from graph error body, got %v", err)
	}
}

func TestDownloadMediaTwoStep(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/media-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-a" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"url":       srv.URL + "/cdn/blob",
			"mime_type": "image/jpeg",
			"file_size": 4,
		})
	})
	mux.HandleFunc("/cdn/blob", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-a" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("data"))
	})

	stream, err := testClient(srv.URL).DownloadMedia(context.Background(), Credentials{PhoneNumberID: "555", AccessToken: "tok-a"}, "media-1")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if string(data) != "data" {
		t.Fatalf("expected media bytes, got %q", data)
	}
}

func TestDownloadMediaExpiredCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).DownloadMedia(context.Background(), Credentials{PhoneNumberID: "555", AccessToken: "stale"}, "media-1")
	if !errors.Is(err, ErrCredentialExpired) {
		t.Fatalf("expected ErrCredentialExpired, got %v", err)
	}
}

func TestDownloadMediaLookupWithoutURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"mime_type": "image/jpeg"})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).DownloadMedia(context.Background(), Credentials{PhoneNumberID: "555", AccessToken: "tok-a"}, "media-1")
	if !errors.Is(err, ErrMediaDownloadFailed) {
		t.Fatalf("expected ErrMediaDownloadFailed, got %v", err)
	}
}
