// Package logger builds the application slog.Logger: console plus an
// optional rotating file sink, error-level fan-out to Sentry, and masking of
// sensitive attributes.
package logger

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the sinks and verbosity of the logger.
type Options struct {
	Level  string
	Format string

	FileEnabled bool
	FilePath    string
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int

	SentryEnabled bool
}

// New builds the logger from the given options.
func New(opts Options) *slog.Logger {
	level := parseLevel(opts.Level)

	handlers := []slog.Handler{newHandler(os.Stdout, opts.Format, level)}

	if opts.FileEnabled {
		rotating := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		handlers = append(handlers, newHandler(rotating, "json", level))
	}

	if opts.SentryEnabled {
		handlers = append(handlers, slogsentry.Option{
			Level: slog.LevelError,
		}.NewSentryHandler())
	}

	var handler slog.Handler
	if len(handlers) == 1 {
		handler = handlers[0]
	} else {
		handler = slogmulti.Fanout(handlers...)
	}

	return slog.New(NewMaskingHandler(handler))
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	hopts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, hopts)
	}
	return slog.NewTextHandler(w, hopts)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
