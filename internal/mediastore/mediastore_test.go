package mediastore

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(dir, logger), dir
}

func TestSavePartitionsByKind(t *testing.T) {
	store, dir := testStore(t)

	path, size, err := store.Save("image", "biz_msg_1.jpg", strings.NewReader("jpeg-bytes"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if size != int64(len("jpeg-bytes")) {
		t.Fatalf("expected byte count, got %d", size)
	}
	if path != filepath.Join(dir, "images", "biz_msg_1.jpg") {
		t.Fatalf("unexpected path %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Fatalf("content mismatch: %q", data)
	}

	audioPath, _, err := store.Save("audio", "n.ogg", strings.NewReader("ogg"))
	if err != nil {
		t.Fatalf("save audio: %v", err)
	}
	if audioPath != filepath.Join(dir, "audio", "n.ogg") {
		t.Fatalf("unexpected audio path %q", audioPath)
	}

	otherPath, _, err := store.Save("document", "d.pdf", strings.NewReader("pdf"))
	if err != nil {
		t.Fatalf("save document: %v", err)
	}
	if otherPath != filepath.Join(dir, "files", "d.pdf") {
		t.Fatalf("unexpected fallback path %q", otherPath)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("stream interrupted")
}

func TestSaveRemovesPartialFileOnReadFailure(t *testing.T) {
	store, dir := testStore(t)

	_, _, err := store.Save("image", "broken.jpg", failingReader{})
	if err == nil {
		t.Fatal("expected error from interrupted stream")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "images", "broken.jpg")); !os.IsNotExist(statErr) {
		t.Fatal("partial file must be removed")
	}
}
