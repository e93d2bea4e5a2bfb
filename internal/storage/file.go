package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ghost-cover/ghostcover-bot/internal/domain"
)

// FileStorage keeps the document in a single JSON file. Saves go through a
// temp file in the same directory followed by a rename, so a crash mid-write
// never corrupts the previous state.
type FileStorage struct {
	path string
	log  *slog.Logger
}

// NewFileStorage creates a file-backed Storage at path.
func NewFileStorage(path string, log *slog.Logger) *FileStorage {
	if log == nil {
		log = slog.Default()
	}

	return &FileStorage{
		path: path,
		log:  log,
	}
}

// Load reads and decodes the document. An unreadable or corrupt file is
// logged and reported as ErrNotFound so the caller falls back to a fresh
// default document instead of crashing.
func (s *FileStorage) Load(ctx context.Context) (*domain.Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		s.log.Error("state file unreadable, starting fresh", "path", s.path, "error", err)
		return nil, ErrNotFound
	}

	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Error("state file corrupt, starting fresh", "path", s.path, "error", err)
		return nil, ErrNotFound
	}

	return &doc, nil
}

// Save writes the document atomically via write-then-rename.
func (s *FileStorage) Save(ctx context.Context, doc *domain.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state document: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}

// Ping verifies that the state directory is accessible.
func (s *FileStorage) Ping(ctx context.Context) error {
	_, err := os.Stat(filepath.Dir(s.path))
	return err
}
