// Package backup exports the state document to the owners and restores it.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ghost-cover/ghostcover-bot/internal/domain"
	"github.com/ghost-cover/ghostcover-bot/internal/gateway"
	"github.com/ghost-cover/ghostcover-bot/internal/store"
	"github.com/ghost-cover/ghostcover-bot/pkg/metrics"
)

// maxKeptBackups is how many delivered backup messages are kept per owner
// chat before the oldest is deleted.
const maxKeptBackups = 5

const filenameLayout = "20060102-150405"

// ErrNoBackup is returned by RestoreLast when no backup was taken in this
// process lifetime.
var ErrNoBackup = errors.New("no backup available to restore")

// Manager exports the document, delivers it to every owner and remembers the
// last export so a destructive wipe can be undone.
type Manager struct {
	store *store.Manager
	gw    gateway.Gateway
	now   func() time.Time
	log   *slog.Logger

	mu         sync.Mutex
	delivered  map[int64][]gateway.MessageRef
	lastExport []byte
}

// NewManager constructs a backup Manager.
func NewManager(st *store.Manager, gw gateway.Gateway, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		store:     st,
		gw:        gw,
		now:       time.Now,
		log:       log,
		delivered: make(map[int64][]gateway.MessageRef),
	}
}

// Filename renders the timestamped backup file name.
func (m *Manager) Filename() string {
	return fmt.Sprintf("ghostcover-backup-%s.json", m.now().UTC().Format(filenameLayout))
}

// Deliver exports the current document and sends it to every owner. Old
// backup messages beyond the kept window are deleted from each owner chat.
// Per-owner delivery failures are logged, not fatal; the count of successful
// deliveries is returned.
func (m *Manager) Deliver(ctx context.Context, caption string) (int, error) {
	data, err := m.store.Export()
	if err != nil {
		return 0, fmt.Errorf("export state: %w", err)
	}

	var owners []int64
	m.store.View(func(doc *domain.Document) {
		owners = append(owners, doc.Owners...)
	})

	m.mu.Lock()
	m.lastExport = data
	m.mu.Unlock()

	filename := m.Filename()
	delivered := 0

	for _, owner := range owners {
		ref, err := m.gw.DeliverFile(ctx, owner, data, filename, caption)
		if err != nil {
			m.log.Warn("backup delivery failed", slog.Int64("owner", owner), slog.Any("error", err))
			continue
		}

		delivered++
		m.rotate(ctx, owner, ref)
	}

	metrics.RecordBackup()
	m.log.Info("backup delivered", slog.Int("owners", delivered), slog.String("file", filename))
	return delivered, nil
}

// Clear wipes all data except the owner list. A safety backup is delivered
// first so the wipe is reversible with RestoreLast.
func (m *Manager) Clear(ctx context.Context) error {
	if _, err := m.Deliver(ctx, "Safety backup before clearing all data."); err != nil {
		return err
	}

	return m.store.ResetPreservingOwners(ctx)
}

// RestoreLast replaces the document with the most recent export taken by
// this process.
func (m *Manager) RestoreLast(ctx context.Context) error {
	m.mu.Lock()
	data := m.lastExport
	m.mu.Unlock()

	if data == nil {
		return ErrNoBackup
	}

	doc, err := store.ParseDocument(data)
	if err != nil {
		return fmt.Errorf("parse last backup: %w", err)
	}

	return m.store.Replace(ctx, doc)
}

// rotate appends the new backup message and deletes the oldest ones past the
// kept window. Deletion is best-effort.
func (m *Manager) rotate(ctx context.Context, owner int64, ref gateway.MessageRef) {
	m.mu.Lock()
	refs := append(m.delivered[owner], ref)
	var stale []gateway.MessageRef
	if len(refs) > maxKeptBackups {
		stale = append(stale, refs[:len(refs)-maxKeptBackups]...)
		refs = refs[len(refs)-maxKeptBackups:]
	}
	m.delivered[owner] = refs
	m.mu.Unlock()

	for _, old := range stale {
		if err := m.gw.DeleteMessage(ctx, old); err != nil {
			m.log.Debug("could not delete old backup message",
				slog.Int64("owner", owner),
				slog.Int("message_id", old.MessageID),
				slog.Any("error", err),
			)
		}
	}
}
