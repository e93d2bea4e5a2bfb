package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	telebot "gopkg.in/telebot.v3"

	apperrors "github.com/ghost-cover/ghostcover-bot/internal/errors"
)

// TelebotGateway implements Gateway on top of a telebot.Bot instance.
// Membership lookups run through a circuit breaker so an API outage does not
// turn every gated message into a slow failing call.
type TelebotGateway struct {
	bot     *telebot.Bot
	breaker *apperrors.CircuitBreaker
	log     *slog.Logger
}

// NewTelebotGateway wraps the given bot.
func NewTelebotGateway(bot *telebot.Bot, log *slog.Logger) *TelebotGateway {
	if log == nil {
		log = slog.Default()
	}

	return &TelebotGateway{
		bot:     bot,
		breaker: apperrors.NewCircuitBreaker(),
		log:     log,
	}
}

// handleRecipient lets "@username" handles act as telebot recipients; the
// Bot API accepts them directly as chat_id values.
type handleRecipient string

func (h handleRecipient) Recipient() string { return string(h) }

// MembershipStatus resolves the chat member role for the user in handle.
func (g *TelebotGateway) MembershipStatus(ctx context.Context, handle string, userID int64) (MemberStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var member *telebot.ChatMember
	err := g.breaker.Call(func() error {
		var lookupErr error
		member, lookupErr = g.bot.ChatMemberOf(handleRecipient(handle), handleRecipient(strconv.FormatInt(userID, 10)))
		return lookupErr
	})
	if err != nil {
		return "", fmt.Errorf("chat member lookup %s: %w", handle, err)
	}

	return MemberStatus(member.Role), nil
}

// SendMessage delivers plain text, mapping blocked/deactivated recipients to
// ErrRecipientUnavailable so callers can prune them.
func (g *TelebotGateway) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := g.bot.Send(telebot.ChatID(chatID), text); err != nil {
		return g.classify(err)
	}
	return nil
}

// DeliverFile sends data as a document upload.
func (g *TelebotGateway) DeliverFile(ctx context.Context, chatID int64, data []byte, filename, caption string) (MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return MessageRef{}, err
	}

	doc := &telebot.Document{
		File:     telebot.FromReader(bytes.NewReader(data)),
		FileName: filename,
		Caption:  caption,
	}

	msg, err := g.bot.Send(telebot.ChatID(chatID), doc)
	if err != nil {
		return MessageRef{}, g.classify(err)
	}

	return MessageRef{ChatID: chatID, MessageID: msg.ID}, nil
}

// DeleteMessage removes a delivered message.
func (g *TelebotGateway) DeleteMessage(ctx context.Context, ref MessageRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return g.bot.Delete(telebot.StoredMessage{
		MessageID: strconv.Itoa(ref.MessageID),
		ChatID:    ref.ChatID,
	})
}

// FetchFile downloads an uploaded file by its file id.
func (g *TelebotGateway) FetchFile(ctx context.Context, fileID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rc, err := g.bot.File(&telebot.File{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("fetch file %s: %w", fileID, err)
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			g.log.Warn("failed to close file stream", slog.Any("error", cerr))
		}
	}()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", fileID, err)
	}

	return data, nil
}

func (g *TelebotGateway) classify(err error) error {
	if errors.Is(err, telebot.ErrBlockedByUser) || errors.Is(err, telebot.ErrUserIsDeactivated) || errors.Is(err, telebot.ErrNotStartedByUser) {
		return fmt.Errorf("%w: %v", ErrRecipientUnavailable, err)
	}
	return err
}
