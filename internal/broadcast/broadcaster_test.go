package broadcast

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghost-cover/ghostcover-bot/internal/domain"
	"github.com/ghost-cover/ghostcover-bot/internal/gateway"
	"github.com/ghost-cover/ghostcover-bot/internal/storage"
	"github.com/ghost-cover/ghostcover-bot/internal/store"
)

type fakeGateway struct {
	sent    []int64
	blocked map[int64]bool
	failing map[int64]bool
}

func (f *fakeGateway) MembershipStatus(ctx context.Context, handle string, userID int64) (gateway.MemberStatus, error) {
	return gateway.StatusMember, nil
}

func (f *fakeGateway) SendMessage(ctx context.Context, chatID int64, text string) error {
	if f.blocked[chatID] {
		return gateway.ErrRecipientUnavailable
	}
	if f.failing[chatID] {
		return errors.New("network error")
	}
	f.sent = append(f.sent, chatID)
	return nil
}

func (f *fakeGateway) DeliverFile(ctx context.Context, chatID int64, data []byte, filename, caption string) (gateway.MessageRef, error) {
	return gateway.MessageRef{}, nil
}

func (f *fakeGateway) DeleteMessage(ctx context.Context, ref gateway.MessageRef) error { return nil }

func (f *fakeGateway) FetchFile(ctx context.Context, fileID string) ([]byte, error) { return nil, nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T, subscribers ...int64) *store.Manager {
	t.Helper()

	fs := storage.NewFileStorage(filepath.Join(t.TempDir(), "data.json"), testLogger())
	m, err := store.NewManager(context.Background(), fs, 1, testLogger())
	require.NoError(t, err)
	require.NoError(t, m.Update(context.Background(), func(doc *domain.Document) error {
		for _, id := range subscribers {
			doc.AddSubscriber(id)
		}
		return nil
	}))
	return m
}

func TestBroadcast_DeliversToAllSubscribers(t *testing.T) {
	st := newStore(t, 10, 20, 30)
	gw := &fakeGateway{}
	b := New(gw, st, time.Millisecond, testLogger())

	summary := b.Broadcast(context.Background(), "hello")
	assert.Equal(t, Summary{Sent: 3}, summary)
	assert.Equal(t, []int64{10, 20, 30}, gw.sent)
}

func TestBroadcast_CountsFailuresAndPrunesBlocked(t *testing.T) {
	st := newStore(t, 10, 20, 30, 40)
	gw := &fakeGateway{
		blocked: map[int64]bool{20: true},
		failing: map[int64]bool{30: true},
	}
	b := New(gw, st, time.Millisecond, testLogger())

	summary := b.Broadcast(context.Background(), "hello")
	assert.Equal(t, 2, summary.Sent)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 1, summary.Removed)

	st.View(func(doc *domain.Document) {
		assert.False(t, doc.IsSubscriber(20), "blocked recipient pruned")
		assert.True(t, doc.IsSubscriber(30), "transient failure keeps the subscriber")
	})
}

func TestBroadcast_StopsOnCancelledContext(t *testing.T) {
	st := newStore(t, 10, 20)
	gw := &fakeGateway{}
	b := New(gw, st, time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := b.Broadcast(ctx, "hello")
	assert.Zero(t, summary.Sent)
}
