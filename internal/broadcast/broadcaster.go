// Package broadcast fans a message out to every subscriber.
package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ghost-cover/ghostcover-bot/internal/domain"
	"github.com/ghost-cover/ghostcover-bot/internal/gateway"
	"github.com/ghost-cover/ghostcover-bot/internal/store"
)

// DefaultPause is the cooperative delay between sends so a large fan-out
// does not starve other interactions or trip API flood limits.
const DefaultPause = 50 * time.Millisecond

// Summary aggregates per-recipient outcomes of one broadcast.
type Summary struct {
	Sent    int
	Failed  int
	Removed int
}

var deliveryRecorder = func(sent, failed int) {}

// RegisterDeliveryRecorder lets external packages observe broadcast outcomes.
func RegisterDeliveryRecorder(recorder func(sent, failed int)) {
	if recorder == nil {
		deliveryRecorder = func(int, int) {}
		return
	}

	deliveryRecorder = recorder
}

// Broadcaster delivers owner broadcasts to the subscriber set.
type Broadcaster struct {
	gw    gateway.Gateway
	store *store.Manager
	pause time.Duration
	log   *slog.Logger
}

// New constructs a Broadcaster. A non-positive pause falls back to the
// default.
func New(gw gateway.Gateway, st *store.Manager, pause time.Duration, log *slog.Logger) *Broadcaster {
	if pause <= 0 {
		pause = DefaultPause
	}
	if log == nil {
		log = slog.Default()
	}

	return &Broadcaster{
		gw:    gw,
		store: st,
		pause: pause,
		log:   log,
	}
}

// Broadcast sends text to every subscriber, pausing between sends. Delivery
// failures are counted, never fatal; recipients that blocked the bot are
// pruned from the subscriber set afterwards.
func (b *Broadcaster) Broadcast(ctx context.Context, text string) Summary {
	var recipients []int64
	b.store.View(func(doc *domain.Document) {
		recipients = append(recipients, doc.Subscribers...)
	})

	var summary Summary
	var gone []int64

	for i, id := range recipients {
		if err := ctx.Err(); err != nil {
			b.log.Warn("broadcast aborted", slog.Int("delivered", summary.Sent), slog.Any("error", err))
			break
		}

		if err := b.gw.SendMessage(ctx, id, text); err != nil {
			summary.Failed++
			if errors.Is(err, gateway.ErrRecipientUnavailable) {
				gone = append(gone, id)
			}
			b.log.Warn("broadcast delivery failed", slog.Int64("user_id", id), slog.Any("error", err))
		} else {
			summary.Sent++
		}

		if i < len(recipients)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(b.pause):
			}
		}
	}

	if len(gone) > 0 {
		if err := b.store.Update(ctx, func(doc *domain.Document) error {
			for _, id := range gone {
				if doc.RemoveSubscriber(id) {
					summary.Removed++
				}
			}
			return nil
		}); err != nil {
			b.log.Error("failed to prune unavailable subscribers", slog.Any("error", err))
		}
	}

	deliveryRecorder(summary.Sent, summary.Failed)

	b.log.Info("broadcast finished",
		slog.Int("sent", summary.Sent),
		slog.Int("failed", summary.Failed),
		slog.Int("removed", summary.Removed),
	)

	return summary
}
