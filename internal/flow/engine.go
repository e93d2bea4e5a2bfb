package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ghost-cover/ghostcover-bot/internal/broadcast"
	"github.com/ghost-cover/ghostcover-bot/internal/coupon"
	"github.com/ghost-cover/ghostcover-bot/internal/domain"
	"github.com/ghost-cover/ghostcover-bot/internal/gateway"
	"github.com/ghost-cover/ghostcover-bot/internal/ledger"
	"github.com/ghost-cover/ghostcover-bot/internal/store"
)

// maxButtonLabelLength caps join-button labels at the limit the messaging
// platform renders without truncation.
const maxButtonLabelLength = 40

// Engine executes the owner and user wizards. It is the only component that
// turns free-form message text into document mutations; everything it applies
// goes through the store's single writer.
type Engine struct {
	sessions    Storage
	store       *store.Manager
	ledger      *ledger.Ledger
	coupons     *coupon.Registry
	broadcaster *broadcast.Broadcaster
	gw          gateway.Gateway
	log         *slog.Logger
}

// NewEngine wires the flow engine.
func NewEngine(
	sessions Storage,
	st *store.Manager,
	lg *ledger.Ledger,
	coupons *coupon.Registry,
	bc *broadcast.Broadcaster,
	gw gateway.Gateway,
	log *slog.Logger,
) *Engine {
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		sessions:    sessions,
		store:       st,
		ledger:      lg,
		coupons:     coupons,
		broadcaster: bc,
		gw:          gw,
		log:         log,
	}
}

// prompts shown when a flow begins.
var beginPrompts = map[Kind]string{
	KindBroadcast:     "Send the message to broadcast to all subscribers.",
	KindCouponAmount:  "Send the coupon amount (a positive number of coins).",
	KindRedeemCode:    "Send your coupon code.",
	KindAddOwner:      "Send the numeric Telegram ID of the new owner.",
	KindAddChannel:    "Send the channel to require: @username, chat ID or invite link.",
	KindEditBalance:   "Send the numeric Telegram ID of the user to adjust.",
	KindEditStake:     "Send the numeric Telegram ID of the user whose stake to edit.",
	KindImportReplace: "Upload the backup file to restore. This replaces all current data.",
	KindImportMerge:   "Upload the backup file to merge into the current data.",
}

// Begin starts (or restarts) a flow for the user, overwriting any session
// already in progress, and returns the first prompt.
func (e *Engine) Begin(ctx context.Context, userID int64, kind Kind) (string, error) {
	prompt, ok := beginPrompts[kind]
	if !ok {
		return "", ErrUnknownKind
	}

	session := &Session{UserID: userID, Kind: kind}
	if err := e.sessions.Set(ctx, userID, session); err != nil {
		return "", err
	}

	transitionRecorder(string(kind), "begin")
	e.log.Debug("flow started", slog.Int64("user_id", userID), slog.String("kind", string(kind)))
	return prompt, nil
}

// Active reports whether the user has a flow in progress.
func (e *Engine) Active(ctx context.Context, userID int64) bool {
	_, err := e.sessions.Get(ctx, userID)
	return err == nil
}

// Cancel aborts the user's flow, if any, discarding partial data.
func (e *Engine) Cancel(ctx context.Context, userID int64) error {
	return e.sessions.Clear(ctx, userID)
}

// Advance feeds one inbound message to the user's active flow. A cancel
// input aborts any flow at any step with no side effects.
func (e *Engine) Advance(ctx context.Context, userID int64, input Input) (Result, error) {
	session, err := e.sessions.Get(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	if IsCancel(input.Text) {
		if err := e.sessions.Clear(ctx, userID); err != nil {
			return Result{}, err
		}
		transitionRecorder(string(session.Kind), "cancelled")
		return Result{Status: StatusCancelled, Message: "Cancelled."}, nil
	}

	res, err := e.step(ctx, session, input)
	if err != nil {
		return Result{}, err
	}

	switch res.Status {
	case StatusPending:
		session.Step++
		if err := e.sessions.Set(ctx, userID, session); err != nil {
			return Result{}, err
		}
		transitionRecorder(string(session.Kind), "pending")
	case StatusRejected:
		transitionRecorder(string(session.Kind), "rejected")
	case StatusCompleted:
		if err := e.sessions.Clear(ctx, userID); err != nil {
			return Result{}, err
		}
		transitionRecorder(string(session.Kind), "completed")
	}

	return res, nil
}

func (e *Engine) step(ctx context.Context, s *Session, input Input) (Result, error) {
	switch s.Kind {
	case KindBroadcast:
		return e.stepBroadcast(ctx, input)
	case KindCouponAmount:
		return e.stepCouponAmount(ctx, input)
	case KindRedeemCode:
		return e.stepRedeemCode(ctx, s.UserID, input)
	case KindAddOwner:
		return e.stepAddOwner(ctx, input)
	case KindAddChannel:
		return e.stepAddChannel(ctx, s, input)
	case KindEditBalance:
		return e.stepEditBalance(ctx, s, input)
	case KindEditStake:
		return e.stepEditStake(ctx, s, input)
	case KindImportReplace:
		return e.stepImport(ctx, input, false)
	case KindImportMerge:
		return e.stepImport(ctx, input, true)
	default:
		return Result{}, ErrUnknownKind
	}
}

func (e *Engine) stepBroadcast(ctx context.Context, input Input) (Result, error) {
	if strings.TrimSpace(input.Text) == "" {
		return reject("Send a text message to broadcast."), nil
	}

	summary := e.broadcaster.Broadcast(ctx, input.Text)
	msg := fmt.Sprintf("Broadcast finished: %d sent, %d failed.", summary.Sent, summary.Failed)
	if summary.Removed > 0 {
		msg += fmt.Sprintf(" Removed %d unreachable subscribers.", summary.Removed)
	}
	return complete(msg), nil
}

func (e *Engine) stepCouponAmount(ctx context.Context, input Input) (Result, error) {
	amount, err := strconv.ParseInt(strings.TrimSpace(input.Text), 10, 64)
	if err != nil || amount <= 0 {
		return reject("Amount must be a positive number. Try again."), nil
	}

	var code string
	err = e.store.Update(ctx, func(doc *domain.Document) error {
		var genErr error
		code, _, genErr = e.coupons.Generate(doc, amount)
		return genErr
	})
	if err != nil {
		return Result{}, err
	}

	return complete(fmt.Sprintf("Coupon created: %s (worth %d coins).", code, amount)), nil
}

func (e *Engine) stepRedeemCode(ctx context.Context, userID int64, input Input) (Result, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Text))
	if code == "" {
		return reject("Send the coupon code."), nil
	}

	var amount int64
	var rejection coupon.Rejection
	var balance int64
	var owners []int64
	err := e.store.Update(ctx, func(doc *domain.Document) error {
		amount, rejection = e.coupons.Redeem(doc, code, userID)
		balance = doc.User(userID).Balance
		owners = append(owners, doc.Owners...)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	switch rejection {
	case coupon.RejectUnknownCode:
		return reject("Unknown code. Check it and try again, or cancel."), nil
	case coupon.RejectAlreadyRedeemed:
		return complete("This coupon has already been redeemed."), nil
	}

	note := fmt.Sprintf("🎟 Coupon %s redeemed by user %d for %d coins.", code, userID, amount)
	for _, owner := range owners {
		if err := e.gw.SendMessage(ctx, owner, note); err != nil {
			e.log.Debug("could not notify owner of redemption", slog.Int64("owner", owner), slog.Any("error", err))
		}
	}

	return complete(fmt.Sprintf("Coupon redeemed! +%d coins. Your balance is now %d.", amount, balance)), nil
}

func (e *Engine) stepAddOwner(ctx context.Context, input Input) (Result, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(input.Text), 10, 64)
	if err != nil || id <= 0 {
		return reject("That is not a valid Telegram ID. Try again."), nil
	}

	already := false
	err = e.store.Update(ctx, func(doc *domain.Document) error {
		if doc.IsOwner(id) {
			already = true
			return nil
		}
		doc.Owners = append(doc.Owners, id)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if already {
		return complete(fmt.Sprintf("User %d is already an owner.", id)), nil
	}
	return complete(fmt.Sprintf("User %d is now an owner.", id)), nil
}

func (e *Engine) stepAddChannel(ctx context.Context, s *Session, input Input) (Result, error) {
	switch s.Step {
	case 0:
		text := strings.TrimSpace(input.Text)
		if text == "" {
			return reject("Send a channel @username, chat ID or invite link."), nil
		}

		entry := domain.NormalizeChannelInput(text)
		if !validChannelEntry(entry) {
			return reject("Use a @username, a numeric chat ID or an invite link. Try again."), nil
		}
		s.Payload.Channel = &entry
		return pending("Now send the join-button label, or '-' for the default."), nil

	case 1:
		if s.Payload.Channel == nil {
			return Result{}, errors.New("add channel flow lost its channel payload")
		}

		label := strings.TrimSpace(input.Text)
		if utf8.RuneCountInString(label) > maxButtonLabelLength {
			return reject(fmt.Sprintf("Label too long, %d characters max. Try again.", maxButtonLabelLength)), nil
		}
		if label != "-" {
			s.Payload.Channel.JoinBtnText = label
		}

		entry := *s.Payload.Channel
		err := e.store.Update(ctx, func(doc *domain.Document) error {
			for _, existing := range doc.Force.Channels {
				if existing.Key() == entry.Key() {
					return nil
				}
			}
			doc.Force.Channels = append(doc.Force.Channels, entry)
			return nil
		})
		if err != nil {
			return Result{}, err
		}

		return complete(fmt.Sprintf("Channel %s added to the join requirement.", entry.Label())), nil
	}

	return Result{}, fmt.Errorf("add channel flow at impossible step %d", s.Step)
}

func (e *Engine) stepEditBalance(ctx context.Context, s *Session, input Input) (Result, error) {
	switch s.Step {
	case 0:
		id, err := strconv.ParseInt(strings.TrimSpace(input.Text), 10, 64)
		if err != nil || id <= 0 {
			return reject("That is not a valid Telegram ID. Try again."), nil
		}
		s.Payload.TargetUserID = id
		return pending("Send the adjustment: +N to add, -N to deduct, =N to set exactly."), nil

	case 1:
		text := strings.TrimSpace(input.Text)
		if len(text) < 2 {
			return reject("Use +N, -N or =N, for example +500."), nil
		}

		op := text[0]
		n, err := strconv.ParseInt(text[1:], 10, 64)
		if err != nil || n < 0 || (op != '+' && op != '-' && op != '=') {
			return reject("Use +N, -N or =N, for example +500."), nil
		}

		var balance int64
		err = e.store.Update(ctx, func(doc *domain.Document) error {
			u := doc.User(s.Payload.TargetUserID)
			delta := n
			switch op {
			case '-':
				delta = -n
			case '=':
				delta = n - u.Balance
			}
			balance = e.ledger.Award(u, delta).NewBalance
			return nil
		})
		if err != nil {
			return Result{}, err
		}

		return complete(fmt.Sprintf("Balance of %d is now %d.", s.Payload.TargetUserID, balance)), nil
	}

	return Result{}, fmt.Errorf("edit balance flow at impossible step %d", s.Step)
}

func (e *Engine) stepEditStake(ctx context.Context, s *Session, input Input) (Result, error) {
	switch s.Step {
	case 0:
		id, err := strconv.ParseInt(strings.TrimSpace(input.Text), 10, 64)
		if err != nil || id <= 0 {
			return reject("That is not a valid Telegram ID. Try again."), nil
		}
		s.Payload.TargetUserID = id
		return pending(fmt.Sprintf("Send the completed stake days, 0 to %d.", ledger.StakeDaysRequired)), nil

	case 1:
		days, err := strconv.Atoi(strings.TrimSpace(input.Text))
		if err != nil || days < 0 || days > ledger.StakeDaysRequired {
			return reject(fmt.Sprintf("Days must be between 0 and %d. Try again.", ledger.StakeDaysRequired)), nil
		}

		err = e.store.Update(ctx, func(doc *domain.Document) error {
			u := doc.User(s.Payload.TargetUserID)
			u.Stake.DaysCompleted = days
			if days >= ledger.StakeDaysRequired {
				u.Stake.Completed = true
				u.Stake.Active = false
			} else {
				u.Stake.Completed = false
				u.Stake.Active = true
			}
			return nil
		})
		if err != nil {
			return Result{}, err
		}

		return complete(fmt.Sprintf("Stake of %d set to %d completed days.", s.Payload.TargetUserID, days)), nil
	}

	return Result{}, fmt.Errorf("edit stake flow at impossible step %d", s.Step)
}

func (e *Engine) stepImport(ctx context.Context, input Input, merge bool) (Result, error) {
	if input.FileID == "" {
		return reject("Upload the backup as a file attachment."), nil
	}

	data, err := e.gw.FetchFile(ctx, input.FileID)
	if err != nil {
		e.log.Error("failed to download import file", slog.Any("error", err))
		return reject("Could not download that file. Try again."), nil
	}

	incoming, err := store.ParseDocument(data)
	if err != nil {
		if errors.Is(err, store.ErrNotStateDocument) {
			return reject("That file is not a valid backup. Upload the right one or cancel."), nil
		}
		return Result{}, err
	}

	if merge {
		report, err := e.store.Merge(ctx, incoming)
		if err != nil {
			return Result{}, err
		}
		return complete(fmt.Sprintf(
			"Merge finished: +%d subscribers, +%d owners, +%d channels, +%d chats.",
			report.Subscribers, report.Owners, report.GateChannels, report.KnownChats,
		)), nil
	}

	if err := e.store.Replace(ctx, incoming); err != nil {
		return Result{}, err
	}
	return complete("Backup restored. All data was replaced."), nil
}

// validChannelEntry accepts @usernames, numeric chat identifiers and invite
// links; free text is not a channel.
func validChannelEntry(entry domain.ChannelGateEntry) bool {
	if entry.Invite != "" {
		return true
	}
	if strings.HasPrefix(entry.ChatID, "@") && len(entry.ChatID) > 1 {
		return true
	}
	_, err := strconv.ParseInt(entry.ChatID, 10, 64)
	return err == nil
}

func pending(msg string) Result  { return Result{Status: StatusPending, Message: msg} }
func reject(msg string) Result   { return Result{Status: StatusRejected, Message: msg} }
func complete(msg string) Result { return Result{Status: StatusCompleted, Message: msg} }
