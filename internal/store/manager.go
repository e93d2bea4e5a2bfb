// Package store owns the in-memory state document and serializes every
// mutation behind a single writer.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ghost-cover/ghostcover-bot/internal/domain"
	apperrors "github.com/ghost-cover/ghostcover-bot/internal/errors"
	"github.com/ghost-cover/ghostcover-bot/internal/storage"
)

// Manager holds the authoritative document. Update applies a mutation and
// durably saves it before returning; a failed save rolls the in-memory copy
// back so the store never drifts from disk by more than nothing.
type Manager struct {
	mu           sync.Mutex
	storage      storage.Storage
	doc          *domain.Document
	initialOwner int64
	log          *slog.Logger
}

// NewManager loads the persisted document, falling back to a fresh default
// owned by initialOwner when none exists.
func NewManager(ctx context.Context, st storage.Storage, initialOwner int64, log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.Default()
	}

	doc, err := st.Load(ctx)
	switch {
	case err == nil:
		doc.Normalize(initialOwner)
	case errors.Is(err, storage.ErrNotFound):
		log.Info("no persisted state, starting with defaults", slog.Int64("initial_owner", initialOwner))
		doc = domain.NewDocument(initialOwner)
		if err := st.Save(ctx, doc); err != nil {
			return nil, fmt.Errorf("save initial state: %w", err)
		}
	default:
		return nil, fmt.Errorf("load state: %w", err)
	}

	return &Manager{
		storage:      st,
		doc:          doc,
		initialOwner: initialOwner,
		log:          log,
	}, nil
}

// Update runs fn against the document under the writer lock and persists the
// result. If fn returns an error or the save fails, the previous document is
// restored and the operation has no effect.
func (m *Manager) Update(ctx context.Context, fn func(doc *domain.Document) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot, err := cloneDocument(m.doc)
	if err != nil {
		return fmt.Errorf("snapshot state: %w", err)
	}

	if err := fn(m.doc); err != nil {
		m.doc = snapshot
		return err
	}

	if err := m.persist(ctx); err != nil {
		m.doc = snapshot
		m.log.Error("failed to persist state, mutation dropped", slog.Any("error", err))
		return fmt.Errorf("persist state: %w", err)
	}

	return nil
}

// persist saves the document, retrying transient storage failures.
func (m *Manager) persist(ctx context.Context) error {
	return apperrors.WithRetry(ctx, func() error {
		if err := m.storage.Save(ctx, m.doc); err != nil {
			return apperrors.NewStorageError(err)
		}
		return nil
	})
}

// View runs fn against the document under the lock without persisting.
// fn must not retain or mutate the document.
func (m *Manager) View(fn func(doc *domain.Document)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.doc)
}

// Export marshals the current document for backups and owner downloads.
func (m *Manager) Export() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return json.MarshalIndent(m.doc, "", "  ")
}

// Replace swaps the whole document for an imported one.
func (m *Manager) Replace(ctx context.Context, incoming *domain.Document) error {
	return m.Update(ctx, func(doc *domain.Document) error {
		incoming.Normalize(m.initialOwner)
		*doc = *incoming
		return nil
	})
}

// Merge set-unions an imported document into the live one and reports how
// many entries were actually added per category.
func (m *Manager) Merge(ctx context.Context, incoming *domain.Document) (MergeReport, error) {
	var report MergeReport
	err := m.Update(ctx, func(doc *domain.Document) error {
		incoming.Normalize(0)
		report = mergeDocuments(doc, incoming)
		return nil
	})
	return report, err
}

// ResetPreservingOwners clears everything back to defaults except the
// current owner set.
func (m *Manager) ResetPreservingOwners(ctx context.Context) error {
	return m.Update(ctx, func(doc *domain.Document) error {
		owners := append([]int64(nil), doc.Owners...)
		fresh := domain.NewDocument(m.initialOwner)
		fresh.Owners = owners
		*doc = *fresh
		return nil
	})
}

// Ping proxies to the backing storage, for health reporting.
func (m *Manager) Ping(ctx context.Context) error {
	return m.storage.Ping(ctx)
}

// Flush persists the current document, used during shutdown.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.persist(ctx)
}

func cloneDocument(doc *domain.Document) (*domain.Document, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	var clone domain.Document
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, err
	}
	return &clone, nil
}
