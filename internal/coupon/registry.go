// Package coupon issues and redeems one-time balance codes.
package coupon

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"time"

	"github.com/ghost-cover/ghostcover-bot/internal/domain"
	"github.com/ghost-cover/ghostcover-bot/internal/ledger"
)

const (
	codePrefix       = "GHOST-"
	codeSuffixLength = 8
	codeAlphabet     = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	maxGenerateTries = 32
)

// ErrCodeSpaceExhausted is returned when code generation keeps colliding;
// practically unreachable with an 8-character suffix.
var ErrCodeSpaceExhausted = errors.New("could not generate a unique coupon code")

// Rejection is a business-rule refusal for coupon operations.
type Rejection int

const (
	Accepted Rejection = iota
	RejectUnknownCode
	RejectAlreadyRedeemed
	RejectInvalidAmount
)

// Registry generates unique codes and enforces single redemption. Like the
// ledger it operates on a locked document snapshot; the caller drives
// persistence.
type Registry struct {
	ledger *ledger.Ledger
	now    func() time.Time
	log    *slog.Logger
}

// NewRegistry constructs a Registry crediting redemptions through the ledger.
func NewRegistry(l *ledger.Ledger, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}

	return &Registry{
		ledger: l,
		now:    time.Now,
		log:    log,
	}
}

// Generate issues a new active coupon worth amount. The code is unique among
// all codes ever issued, redeemed ones included.
func (r *Registry) Generate(doc *domain.Document, amount int64) (string, Rejection, error) {
	if amount <= 0 {
		return "", RejectInvalidAmount, nil
	}

	for range maxGenerateTries {
		code := codePrefix + randomSuffix()
		if _, exists := doc.Coupons[code]; exists {
			continue
		}

		doc.Coupons[code] = &domain.Coupon{
			Code:      code,
			Amount:    amount,
			Status:    domain.CouponActive,
			CreatedAt: r.now().UTC(),
		}

		r.log.Info("coupon generated", slog.String("code", code), slog.Int64("amount", amount))
		return code, Accepted, nil
	}

	return "", Accepted, ErrCodeSpaceExhausted
}

// Redeem marks the coupon redeemed by userID and credits its amount. A code
// can never be redeemed twice.
func (r *Registry) Redeem(doc *domain.Document, code string, userID int64) (int64, Rejection) {
	c, ok := doc.Coupons[code]
	if !ok {
		return 0, RejectUnknownCode
	}
	if c.Status != domain.CouponActive {
		return 0, RejectAlreadyRedeemed
	}

	redeemedAt := r.now().UTC()
	c.Status = domain.CouponRedeemed
	c.RedeemedBy = userID
	c.RedeemedAt = &redeemedAt

	r.ledger.Award(doc.User(userID), c.Amount)

	r.log.Info("coupon redeemed",
		slog.String("code", code),
		slog.Int64("user_id", userID),
		slog.Int64("amount", c.Amount),
	)

	return c.Amount, Accepted
}

func randomSuffix() string {
	buf := make([]byte, codeSuffixLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}

	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}
