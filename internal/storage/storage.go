// Package storage persists the state document.
package storage

import (
	"context"
	"errors"

	"github.com/ghost-cover/ghostcover-bot/internal/domain"
)

// ErrNotFound indicates that no document has been persisted yet.
var ErrNotFound = errors.New("state document not found")

// Storage defines the persistence contract for the state document. The
// document is always read and written whole; there are no partial updates.
type Storage interface {
	// Load returns the persisted document, or ErrNotFound when absent.
	Load(ctx context.Context) (*domain.Document, error)
	// Save durably replaces the persisted document.
	Save(ctx context.Context, doc *domain.Document) error
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
