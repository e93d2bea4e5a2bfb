// Package flow drives the per-user multi-step wizards. Every user has at
// most one active flow; beginning a new one silently abandons the previous
// session (no stacking of wizards, by the original design).
package flow

import (
	"errors"
	"time"

	"github.com/ghost-cover/ghostcover-bot/internal/domain"
)

// Kind names a wizard.
type Kind string

const (
	KindBroadcast     Kind = "broadcast"
	KindCouponAmount  Kind = "coupon_amount"
	KindRedeemCode    Kind = "redeem_code"
	KindAddOwner      Kind = "add_owner"
	KindAddChannel    Kind = "add_channel"
	KindEditBalance   Kind = "edit_balance"
	KindEditStake     Kind = "edit_stake"
	KindImportReplace Kind = "import_replace"
	KindImportMerge   Kind = "import_merge"
)

var (
	// ErrSessionNotFound indicates that the user has no active flow.
	ErrSessionNotFound = errors.New("flow session not found")
	// ErrUnknownKind indicates a flow kind with no registered steps.
	ErrUnknownKind = errors.New("unknown flow kind")
)

// Payload carries partial data accumulated across steps.
type Payload struct {
	Channel      *domain.ChannelGateEntry `json:"channel,omitempty"`
	TargetUserID int64                    `json:"target_user_id,omitempty"`
}

// Session is the single-slot flow state of one user.
type Session struct {
	UserID    int64     `json:"user_id"`
	Kind      Kind      `json:"kind"`
	Step      int       `json:"step"`
	Payload   Payload   `json:"payload"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input is one inbound message offered to the active flow.
type Input struct {
	Text     string
	FileID   string
	FileName string
}

// Status classifies the outcome of an Advance call.
type Status int

const (
	// StatusPending means the step was accepted and the flow continues.
	StatusPending Status = iota
	// StatusRejected means the input was refused and the step is retried.
	StatusRejected
	// StatusCompleted means the flow finished and its effect was applied.
	StatusCompleted
	// StatusCancelled means the user aborted and partial data was discarded.
	StatusCancelled
)

// Result is what the caller turns into a user-facing reply.
type Result struct {
	Status  Status
	Message string
}

// cancelInputs are the literal texts that abort any flow at any step.
var cancelInputs = []string{"❌ Cancel", "/cancel"}

// IsCancel reports whether text is a literal cancel input.
func IsCancel(text string) bool {
	for _, c := range cancelInputs {
		if text == c {
			return true
		}
	}
	return false
}

var transitionRecorder = func(kind, outcome string) {}

// RegisterTransitionRecorder lets external packages observe flow outcomes.
func RegisterTransitionRecorder(recorder func(kind, outcome string)) {
	if recorder == nil {
		transitionRecorder = func(string, string) {}
		return
	}

	transitionRecorder = recorder
}
