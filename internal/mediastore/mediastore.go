package mediastore

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Store persists downloaded media under a modality-partitioned directory
// layout: <base>/images, <base>/audio, <base>/files.
type Store struct {
	baseDir string
	logger  *slog.Logger
}

// New creates a media store rooted at baseDir.
func New(baseDir string, logger *slog.Logger) *Store {
	return &Store{
		baseDir: baseDir,
		logger:  logger.With("component", "mediastore"),
	}
}

// Save streams r into a new file for the given modality and returns the
// stored path and byte size. A partially written file is removed on any
// failure so no truncated media is ever referenced.
func (s *Store) Save(kind, name string, r io.Reader) (string, int64, error) {
	dir := filepath.Join(s.baseDir, subdirFor(kind))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create media dir: %w", err)
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create media file: %w", err)
	}

	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		s.discard(path)
		return "", 0, fmt.Errorf("write media file: %w", err)
	}
	if err := f.Close(); err != nil {
		s.discard(path)
		return "", 0, fmt.Errorf("close media file: %w", err)
	}

	return path, size, nil
}

func (s *Store) discard(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed removing partial media file", "path", path, "error", err)
	}
}

func subdirFor(kind string) string {
	switch kind {
	case "image":
		return "images"
	case "audio":
		return "audio"
	default:
		return "files"
	}
}
