package flow

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStorage(t *testing.T) *RedisStorage {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStorage(client, testLogger())
}

func TestRedisStorage_RoundTrip(t *testing.T) {
	s := newRedisStorage(t)
	ctx := context.Background()

	session := &Session{UserID: 7, Kind: KindAddChannel, Step: 1}
	session.Payload.TargetUserID = 42
	require.NoError(t, s.Set(ctx, 7, session))

	got, err := s.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, KindAddChannel, got.Kind)
	assert.Equal(t, 1, got.Step)
	assert.Equal(t, int64(42), got.Payload.TargetUserID)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestRedisStorage_GetMissing(t *testing.T) {
	s := newRedisStorage(t)

	_, err := s.Get(context.Background(), 404)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStorage_Clear(t *testing.T) {
	s := newRedisStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, 7, &Session{UserID: 7, Kind: KindBroadcast}))
	require.NoError(t, s.Clear(ctx, 7))

	_, err := s.Get(ctx, 7)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
