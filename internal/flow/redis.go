package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPattern = "flow:session:%d"
	sessionTTL        = time.Hour
)

// RedisStorage persists flow sessions in Redis so in-progress wizards
// survive a bot restart.
type RedisStorage struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisStorage initializes a Redis-backed session store.
func NewRedisStorage(client *redis.Client, log *slog.Logger) *RedisStorage {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStorage{
		client: client,
		log:    log,
	}
}

// Get returns the stored session or ErrSessionNotFound when absent.
func (s *RedisStorage) Get(ctx context.Context, userID int64) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}

		s.log.Error("failed to get flow session from redis", "user_id", userID, "error", err)
		return nil, err
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		s.log.Error("failed to decode flow session", "user_id", userID, "error", err)
		return nil, err
	}

	return &session, nil
}

// Set saves the session with the wizard TTL; abandoned wizards expire on
// their own.
func (s *RedisStorage) Set(ctx context.Context, userID int64, session *Session) error {
	session.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(session)
	if err != nil {
		s.log.Error("failed to encode flow session", "user_id", userID, "error", err)
		return err
	}

	if err := s.client.Set(ctx, sessionKey(userID), data, sessionTTL).Err(); err != nil {
		s.log.Error("failed to save flow session in redis", "user_id", userID, "error", err)
		return err
	}

	return nil
}

// Clear removes the stored session.
func (s *RedisStorage) Clear(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		s.log.Error("failed to clear flow session", "user_id", userID, "error", err)
		return err
	}

	return nil
}

func sessionKey(userID int64) string {
	return fmt.Sprintf(sessionKeyPattern, userID)
}
