package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/ghost-cover/ghostcover-bot/internal/bot/handlers"
	"github.com/ghost-cover/ghostcover-bot/internal/bot/keyboard"
	"github.com/ghost-cover/ghostcover-bot/internal/domain"
	apperrors "github.com/ghost-cover/ghostcover-bot/internal/errors"
	"github.com/ghost-cover/ghostcover-bot/internal/membership"
	"github.com/ghost-cover/ghostcover-bot/internal/ratelimit"
	"github.com/ghost-cover/ghostcover-bot/internal/store"
	"github.com/ghost-cover/ghostcover-bot/pkg/logger"
	"github.com/ghost-cover/ghostcover-bot/pkg/metrics"
)

const (
	floodLimit  = 20
	floodWindow = 10 * time.Second
)

// RecoveryMiddleware catches panics, reports them via the centralized
// handler, and notifies the user.
func RecoveryMiddleware(log *slog.Logger, errHandler *apperrors.Handler) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered in handler", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))

					userMsg := "⚠️ Something went wrong. Please try again later."
					if errHandler != nil {
						appErr := apperrors.NewFlowError(fmt.Sprintf("panic recovered: %v", r))
						if msg, _ := errHandler.Handle(context.Background(), appErr); msg != "" {
							userMsg = msg
						}
					}

					if c != nil {
						if sendErr := c.Send(userMsg); sendErr != nil {
							log.Error("failed to notify user about panic", slog.Any("error", sendErr))
						}
					}

					err = nil
				}
			}()

			return next(c)
		}
	}
}

// ErrorHandlingMiddleware centralizes error reporting and user messaging for
// handler failures.
func ErrorHandlingMiddleware(errHandler *apperrors.Handler) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			userMsg := "Something went wrong. Please try again later"
			if errHandler != nil {
				if msg, _ := errHandler.Handle(context.Background(), err); msg != "" {
					userMsg = msg
				}
			}
			metrics.RecordError("handler", string(apperrors.SeverityHigh))

			if c != nil {
				_ = c.Send(userMsg)
			}

			return nil
		}
	}
}

// LoggingMiddleware logs basic telemetry about incoming updates with a
// per-update correlation identifier, and feeds the command metrics.
func LoggingMiddleware(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			start := time.Now()
			_, correlationID := logger.WithCorrelationID(context.Background())

			userID := int64(0)
			if c != nil && c.Sender() != nil {
				userID = c.Sender().ID
			}

			action := ""
			if c != nil {
				if cb := c.Callback(); cb != nil {
					action = cb.Data
				} else {
					action = c.Text()
				}
			}

			err := next(c)
			duration := time.Since(start)

			log.Info("handled update",
				slog.Int64("user_id", userID),
				slog.String("correlation_id", correlationID),
				slog.String("action", commandLabel(action)),
				slog.Duration("duration", duration),
				slog.Any("error", err),
			)

			status := "ok"
			if err != nil {
				status = "error"
			}
			metrics.RecordCommand(commandLabel(action), status, duration)

			return err
		}
	}
}

// FloodControlMiddleware drops updates from users sending too fast.
func FloodControlMiddleware(limiter ratelimit.Limiter, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			if limiter == nil || c == nil || c.Sender() == nil {
				return next(c)
			}

			key := fmt.Sprintf("user:%d", c.Sender().ID)
			res, _ := limiter.Check(context.Background(), key, floodLimit, floodWindow)
			if res != nil && !res.Allowed {
				log.Debug("flood control dropped update", slog.Int64("user_id", c.Sender().ID))
				return nil
			}

			return next(c)
		}
	}
}

// GateMiddleware enforces the force-join gate on every non-owner update.
// Owners bypass the gate so they can never lock themselves out, and the
// verify callback passes through so users can actually verify.
func GateMiddleware(verifier *membership.Verifier, st *store.Manager, kb *keyboard.Builder, log *slog.Logger) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			if c == nil || c.Sender() == nil {
				return next(c)
			}

			if cb := c.Callback(); cb != nil {
				data := strings.TrimPrefix(cb.Data, "\f")
				if data == "check_join" || data == "force_no_invite" {
					return next(c)
				}
			}

			userID := c.Sender().ID

			var enabled bool
			var isOwner bool
			var channels []domain.ChannelGateEntry
			var checkBtnText string
			st.View(func(doc *domain.Document) {
				enabled = doc.Force.Enabled
				isOwner = doc.IsOwner(userID)
				channels = append(channels, doc.Force.Channels...)
				checkBtnText = doc.Force.CheckBtnText
			})

			if !enabled || isOwner {
				return next(c)
			}

			if len(channels) == 0 {
				return c.Send("⚠️ Force-join is enabled but no channels are configured. Ask an owner to fix this.")
			}

			missing, _ := verifier.Missing(context.Background(), userID, channels)
			if len(missing) == 0 {
				return next(c)
			}

			if err := st.Update(context.Background(), func(doc *domain.Document) error {
				doc.RemoveSubscriber(userID)
				return nil
			}); err != nil {
				log.Warn("could not drop unverified subscriber", slog.Int64("user_id", userID), slog.Any("error", err))
			}

			return c.Send("🔒 Join these channels to use the bot:", kb.JoinPrompt(missing, checkBtnText))
		}
	}
}

// commandLabel reduces free text to a bounded metrics label.
func commandLabel(action string) string {
	if strings.HasPrefix(action, "/") {
		if i := strings.IndexAny(action, " @"); i > 0 {
			action = action[:i]
		}
		return action
	}
	if strings.HasPrefix(action, "admin_") || action == "check_join" {
		return action
	}
	return "message"
}
