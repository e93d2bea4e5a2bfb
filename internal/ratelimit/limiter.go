package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Result captures one flood-control evaluation for a user key.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter throttles per-user update bursts before they reach the handlers.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// ErrLimitExceeded indicates the window is exhausted for the key.
var ErrLimitExceeded = errors.New("rate limit exceeded")
