// Package membership verifies force-join channel membership.
package membership

import (
	"context"
	"log/slog"

	"github.com/ghost-cover/ghostcover-bot/internal/domain"
	"github.com/ghost-cover/ghostcover-bot/internal/gateway"
)

// Verifier checks a user against the configured gate channels.
type Verifier struct {
	gw  gateway.Gateway
	log *slog.Logger
}

// NewVerifier constructs a Verifier backed by the messaging gateway.
func NewVerifier(gw gateway.Gateway, log *slog.Logger) *Verifier {
	if log == nil {
		log = slog.Default()
	}

	return &Verifier{gw: gw, log: log}
}

// Missing returns the gate channels the user has not joined and whether any
// membership lookup failed during the pass.
//
// Channels without a derivable handle are reported missing unconditionally
// (fail-closed). A lookup error also counts the channel as missing and sets
// checkFailed. Owners never reach this check; the caller bypasses them.
func (v *Verifier) Missing(ctx context.Context, userID int64, channels []domain.ChannelGateEntry) (missing []domain.ChannelGateEntry, checkFailed bool) {
	if len(channels) == 0 {
		return nil, false
	}

	for _, ch := range channels {
		handle, ok := ch.QueryHandle()
		if !ok {
			v.log.Warn("gate channel has no queryable handle, treating as missing", slog.String("channel", ch.Label()))
			missing = append(missing, ch)
			continue
		}

		status, err := v.gw.MembershipStatus(ctx, handle, userID)
		if err != nil {
			v.log.Warn("membership lookup failed, treating as missing",
				slog.String("channel", handle),
				slog.Int64("user_id", userID),
				slog.Any("error", err),
			)
			missing = append(missing, ch)
			checkFailed = true
			continue
		}

		if !status.Joined() {
			missing = append(missing, ch)
		}
	}

	return missing, checkFailed
}
