package backup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ghost-cover/ghostcover-bot/internal/domain"
	"github.com/ghost-cover/ghostcover-bot/internal/store"
)

// Scheduler drives periodic automatic backups. A cron tick fires every
// minute; whether a backup is actually taken depends on the auto-backup
// configuration inside the document, so owners can change the interval at
// runtime without restarting anything.
type Scheduler struct {
	cron    *cron.Cron
	manager *Manager
	store   *store.Manager
	now     func() time.Time
	log     *slog.Logger

	mu      sync.Mutex
	lastRun time.Time
}

// NewScheduler constructs a stopped Scheduler.
func NewScheduler(manager *Manager, st *store.Manager, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}

	return &Scheduler{
		cron:    cron.New(),
		manager: manager,
		store:   st,
		now:     time.Now,
		log:     log,
	}
}

// Start begins the minute tick.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("@every 1m", s.tick); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("backup scheduler started")
	return nil
}

// Stop halts the tick and waits for a running backup to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) tick() {
	var cfg domain.AutoBackupConfig
	s.store.View(func(doc *domain.Document) {
		cfg = doc.AutoBackup
	})

	if !cfg.Enabled {
		return
	}

	interval := time.Duration(cfg.IntervalMinutes) * time.Minute
	if interval < domain.MinBackupIntervalMinutes*time.Minute {
		interval = domain.MinBackupIntervalMinutes * time.Minute
	}

	s.mu.Lock()
	due := s.lastRun.IsZero() || s.now().Sub(s.lastRun) >= interval
	if due {
		s.lastRun = s.now()
	}
	s.mu.Unlock()

	if !due {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := s.manager.Deliver(ctx, "Automatic backup."); err != nil {
		s.log.Error("automatic backup failed", slog.Any("error", err))
	}
}
