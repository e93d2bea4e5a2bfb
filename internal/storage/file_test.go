package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghost-cover/ghostcover-bot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.json")
	fs := NewFileStorage(path, testLogger())

	doc := domain.NewDocument(1)
	doc.AddSubscriber(10)
	doc.User(10).Balance = 150
	doc.Force.Channels = append(doc.Force.Channels, domain.ChannelGateEntry{ChatID: "@updates"})

	require.NoError(t, fs.Save(ctx, doc))

	loaded, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, loaded.Subscribers)
	assert.Equal(t, int64(150), loaded.Users[domain.UserKey(10)].Balance)
	assert.Equal(t, "@updates", loaded.Force.Channels[0].ChatID)
}

func TestFileStorage_LoadMissing(t *testing.T) {
	fs := NewFileStorage(filepath.Join(t.TempDir(), "missing.json"), testLogger())

	_, err := fs.Load(context.Background())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFileStorage_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	fs := NewFileStorage(path, testLogger())
	_, err := fs.Load(context.Background())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFileStorage_SaveKeepsPreviousOnFailure(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	fs := NewFileStorage(path, testLogger())

	require.NoError(t, fs.Save(ctx, domain.NewDocument(1)))

	// A save into a now-unwritable directory must fail without touching the
	// previously written file.
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	err := fs.Save(ctx, domain.NewDocument(2))
	require.Error(t, err)

	_ = os.Chmod(dir, 0o755)
	loaded, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, loaded.Owners)
}
