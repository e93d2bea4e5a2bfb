package backup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghost-cover/ghostcover-bot/internal/domain"
	"github.com/ghost-cover/ghostcover-bot/internal/gateway"
	"github.com/ghost-cover/ghostcover-bot/internal/storage"
	"github.com/ghost-cover/ghostcover-bot/internal/store"
)

type delivery struct {
	chatID   int64
	filename string
	caption  string
	data     []byte
}

type fakeGateway struct {
	deliveries []delivery
	deleted    []gateway.MessageRef
	failFor    map[int64]bool
	nextID     int
}

func (f *fakeGateway) MembershipStatus(ctx context.Context, handle string, userID int64) (gateway.MemberStatus, error) {
	return gateway.StatusMember, nil
}

func (f *fakeGateway) SendMessage(ctx context.Context, chatID int64, text string) error { return nil }

func (f *fakeGateway) DeliverFile(ctx context.Context, chatID int64, data []byte, filename, caption string) (gateway.MessageRef, error) {
	if f.failFor[chatID] {
		return gateway.MessageRef{}, errors.New("delivery failed")
	}

	f.nextID++
	f.deliveries = append(f.deliveries, delivery{chatID: chatID, filename: filename, caption: caption, data: data})
	return gateway.MessageRef{ChatID: chatID, MessageID: f.nextID}, nil
}

func (f *fakeGateway) DeleteMessage(ctx context.Context, ref gateway.MessageRef) error {
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakeGateway) FetchFile(ctx context.Context, fileID string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newManager(t *testing.T, owners ...int64) (*Manager, *store.Manager, *fakeGateway) {
	t.Helper()

	log := testLogger()
	fs := storage.NewFileStorage(filepath.Join(t.TempDir(), "data.json"), log)
	st, err := store.NewManager(context.Background(), fs, owners[0], log)
	require.NoError(t, err)
	require.NoError(t, st.Update(context.Background(), func(doc *domain.Document) error {
		for _, o := range owners[1:] {
			doc.Owners = append(doc.Owners, o)
		}
		return nil
	}))

	gw := &fakeGateway{failFor: make(map[int64]bool)}
	return NewManager(st, gw, log), st, gw
}

func TestDeliver_SendsToEveryOwner(t *testing.T) {
	m, _, gw := newManager(t, 1, 2)

	delivered, err := m.Deliver(context.Background(), "test backup")
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	require.Len(t, gw.deliveries, 2)
	assert.Contains(t, gw.deliveries[0].filename, "ghostcover-backup-")
	assert.Contains(t, gw.deliveries[0].filename, ".json")
	assert.Equal(t, "test backup", gw.deliveries[0].caption)

	doc, err := store.ParseDocument(gw.deliveries[0].data)
	require.NoError(t, err)
	assert.True(t, doc.IsOwner(1))
}

func TestDeliver_CountsOnlySuccessfulDeliveries(t *testing.T) {
	m, _, gw := newManager(t, 1, 2)
	gw.failFor[2] = true

	delivered, err := m.Deliver(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
}

func TestDeliver_RotatesOldBackupMessages(t *testing.T) {
	m, _, gw := newManager(t, 1)

	for range maxKeptBackups + 2 {
		_, err := m.Deliver(context.Background(), "")
		require.NoError(t, err)
	}

	require.Len(t, gw.deleted, 2)
	assert.Equal(t, 1, gw.deleted[0].MessageID, "oldest message deleted first")
	assert.Equal(t, 2, gw.deleted[1].MessageID)
}

func TestClear_WipesEverythingButOwners(t *testing.T) {
	m, st, gw := newManager(t, 1, 2)
	ctx := context.Background()

	require.NoError(t, st.Update(ctx, func(doc *domain.Document) error {
		doc.AddSubscriber(10)
		doc.User(10).Balance = 500
		return nil
	}))

	require.NoError(t, m.Clear(ctx))

	st.View(func(doc *domain.Document) {
		assert.Empty(t, doc.Subscribers)
		assert.Empty(t, doc.Users)
		assert.Equal(t, []int64{1, 2}, doc.Owners)
	})
	assert.NotEmpty(t, gw.deliveries, "safety backup delivered before the wipe")
}

func TestRestoreLast_UndoesAClear(t *testing.T) {
	m, st, _ := newManager(t, 1)
	ctx := context.Background()

	require.NoError(t, st.Update(ctx, func(doc *domain.Document) error {
		doc.AddSubscriber(10)
		doc.User(10).Balance = 500
		return nil
	}))

	require.NoError(t, m.Clear(ctx))
	require.NoError(t, m.RestoreLast(ctx))

	st.View(func(doc *domain.Document) {
		assert.True(t, doc.IsSubscriber(10))
		assert.Equal(t, int64(500), doc.User(10).Balance)
	})
}

func TestRestoreLast_WithoutBackup(t *testing.T) {
	m, _, _ := newManager(t, 1)

	err := m.RestoreLast(context.Background())
	assert.ErrorIs(t, err, ErrNoBackup)
}
