// Package lifecycle coordinates ordered graceful shutdown.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Shutdown runs registered hooks in reverse registration order, one at a
// time. Order matters here: the bot must stop accepting updates before the
// state store flushes.
type Shutdown struct {
	mu    sync.Mutex
	hooks []Hook
	log   *slog.Logger
}

// NewShutdown constructs a new Shutdown coordinator.
func NewShutdown(log *slog.Logger) *Shutdown {
	if log == nil {
		log = slog.Default()
	}

	return &Shutdown{log: log}
}

// Register adds a named shutdown hook. Hooks registered later run earlier.
func (s *Shutdown) Register(name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.hooks = append(s.hooks, Hook{Name: name, Fn: fn})
}

// Execute runs all registered hooks sequentially in reverse order. A failed
// hook is logged and collected, the remaining hooks still run.
func (s *Shutdown) Execute(ctx context.Context) error {
	s.mu.Lock()
	hooks := append([]Hook(nil), s.hooks...)
	s.mu.Unlock()

	start := time.Now()
	s.log.Info("shutdown sequence started", slog.Int("hook_count", len(hooks)))

	var errs []string
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if h.Fn == nil {
			continue
		}

		s.log.Info("running shutdown hook", slog.String("hook", h.Name))

		if err := h.Fn(ctx); err != nil {
			s.log.Error("shutdown hook failed", slog.String("hook", h.Name), slog.Any("error", err))
			errs = append(errs, fmt.Sprintf("%s: %v", h.Name, err))
			continue
		}

		s.log.Info("shutdown hook completed", slog.String("hook", h.Name))
	}

	s.log.Info("shutdown sequence finished", slog.Duration("elapsed", time.Since(start)))

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}
