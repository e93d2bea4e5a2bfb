package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	telebot "gopkg.in/telebot.v3"

	_ "github.com/lib/pq"

	"github.com/ghost-cover/ghostcover-bot/internal/backup"
	"github.com/ghost-cover/ghostcover-bot/internal/bot"
	"github.com/ghost-cover/ghostcover-bot/internal/broadcast"
	"github.com/ghost-cover/ghostcover-bot/internal/coupon"
	"github.com/ghost-cover/ghostcover-bot/internal/flow"
	"github.com/ghost-cover/ghostcover-bot/internal/gateway"
	"github.com/ghost-cover/ghostcover-bot/internal/ledger"
	"github.com/ghost-cover/ghostcover-bot/internal/lifecycle"
	"github.com/ghost-cover/ghostcover-bot/internal/membership"
	"github.com/ghost-cover/ghostcover-bot/internal/ratelimit"
	"github.com/ghost-cover/ghostcover-bot/internal/storage"
	"github.com/ghost-cover/ghostcover-bot/internal/store"
	"github.com/ghost-cover/ghostcover-bot/pkg/config"
	"github.com/ghost-cover/ghostcover-bot/pkg/graceful"
	"github.com/ghost-cover/ghostcover-bot/pkg/logger"
	"github.com/ghost-cover/ghostcover-bot/pkg/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Level:         cfg.Log.Level,
		Format:        cfg.Log.Format,
		FileEnabled:   cfg.Log.File.Enabled,
		FilePath:      cfg.Log.File.Path,
		MaxSizeMB:     cfg.Log.File.MaxSizeMB,
		MaxBackups:    cfg.Log.File.MaxBackups,
		MaxAgeDays:    cfg.Log.File.MaxAgeDays,
		SentryEnabled: cfg.Sentry.Enabled,
	})
	slog.SetDefault(log)

	log.Info("starting ghostcover bot", slog.String("env", cfg.AppEnv), slog.String("storage", cfg.Storage.Driver))

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.AppEnv,
		}); err != nil {
			log.Error("failed to init sentry", slog.Any("error", err))
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	}

	config.Watch(v, log, func(next *config.Config) {
		log.Info("runtime config updated, restart to apply transport changes",
			slog.String("log_level", next.Log.Level))
	})

	st, closeStorage, err := buildStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize state store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStorage()

	loc, err := time.LoadLocation(cfg.Bot.Timezone)
	if err != nil {
		log.Error("invalid timezone", slog.String("timezone", cfg.Bot.Timezone), slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.Bot.Mode == "webhook" {
		log.Warn("webhook mode is not served, falling back to long polling")
	}

	tb, err := telebot.NewBot(telebot.Settings{
		Token:  cfg.Bot.Token,
		Poller: &telebot.LongPoller{Timeout: cfg.Bot.PollTimeout},
	})
	if err != nil {
		log.Error("failed to initialize telebot", slog.Any("error", err))
		os.Exit(1)
	}

	gw := gateway.NewTelebotGateway(tb, log)
	lg := ledger.New(loc, log)
	verifier := membership.NewVerifier(gw, log)
	registry := coupon.NewRegistry(lg, log)
	broadcaster := broadcast.New(gw, st, cfg.Broadcast.Pause, log)

	sessions, closeSessions := buildFlowSessions(cfg, log)
	defer closeSessions()

	engine := flow.NewEngine(sessions, st, lg, registry, broadcaster, gw, log)

	backupMgr := backup.NewManager(st, gw, log)
	scheduler := backup.NewScheduler(backupMgr, st, log)
	if err := scheduler.Start(); err != nil {
		log.Error("failed to start backup scheduler", slog.Any("error", err))
		os.Exit(1)
	}

	limiter := ratelimit.NewMemoryLimiter(log)
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup(time.Hour)
			}
		}
	}()

	b := bot.New(tb, cfg, st, lg, verifier, engine, backupMgr, limiter, log)

	collector := metrics.NewStoreCollector(st)
	go collector.Run(ctx)

	httpSrv := observabilityServer(cfg, st)
	srv := graceful.NewServer(log, httpSrv, 10*time.Second)
	go func() {
		if err := srv.ListenAndServe(ctx); err != nil {
			log.Error("observability server stopped", slog.Any("error", err))
		}
	}()

	shutdown := lifecycle.NewShutdown(log)
	shutdown.Register("flush state", st.Flush)
	shutdown.Register("backup scheduler", scheduler.Stop)
	shutdown.Register("telegram bot", func(context.Context) error {
		b.Stop()
		return nil
	})

	go b.Start()
	log.Info("bot is running")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := shutdown.Execute(shutdownCtx); err != nil {
		log.Error("shutdown finished with errors", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("bye")
}

// buildStore selects the persistence backend and loads the document.
func buildStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*store.Manager, func(), error) {
	switch cfg.Storage.Driver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.Storage.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}

		pg, err := storage.NewPostgresStorage(ctx, db, log)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}

		st, err := store.NewManager(ctx, pg, cfg.Bot.OwnerID, log)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}

		return st, func() {
			if err := db.Close(); err != nil {
				log.Error("error closing database", slog.Any("error", err))
			}
		}, nil

	default:
		fs := storage.NewFileStorage(cfg.Storage.Path, log)
		st, err := store.NewManager(ctx, fs, cfg.Bot.OwnerID, log)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	}
}

// buildFlowSessions picks Redis-backed wizard sessions when configured, so
// in-progress wizards survive restarts.
func buildFlowSessions(cfg *config.Config, log *slog.Logger) (flow.Storage, func()) {
	if !cfg.Redis.Enabled {
		return flow.NewMemoryStorage(), func() {}
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	return flow.NewRedisStorage(client, log), func() {
		if err := client.Close(); err != nil {
			log.Error("error closing redis client", slog.Any("error", err))
		}
	}
}

// observabilityServer exposes Prometheus metrics and a liveness probe.
func observabilityServer(cfg *config.Config, st *store.Manager) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
