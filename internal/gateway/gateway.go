// Package gateway abstracts the messaging transport behind the narrow
// capability surface the core components consume.
package gateway

import (
	"context"
	"errors"
)

// MemberStatus is a user's membership status in a channel.
type MemberStatus string

const (
	StatusCreator       MemberStatus = "creator"
	StatusAdministrator MemberStatus = "administrator"
	StatusMember        MemberStatus = "member"
	StatusRestricted    MemberStatus = "restricted"
	StatusLeft          MemberStatus = "left"
	StatusKicked        MemberStatus = "kicked"
)

// Joined reports whether the status counts as channel membership.
func (s MemberStatus) Joined() bool {
	return s != StatusLeft && s != StatusKicked
}

// ErrRecipientUnavailable indicates the recipient blocked the bot or
// deactivated their account; broadcast prunes such subscribers.
var ErrRecipientUnavailable = errors.New("recipient unavailable")

// MessageRef identifies a delivered message for later deletion.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Gateway is the messaging capability injected into the core.
type Gateway interface {
	// MembershipStatus looks up the user's membership in the channel
	// identified by handle ("@name" or a numeric chat id).
	MembershipStatus(ctx context.Context, handle string, userID int64) (MemberStatus, error)
	// SendMessage delivers plain text to a chat.
	SendMessage(ctx context.Context, chatID int64, text string) error
	// DeliverFile sends a document with an optional caption.
	DeliverFile(ctx context.Context, chatID int64, data []byte, filename, caption string) (MessageRef, error)
	// DeleteMessage removes a previously delivered message, best-effort.
	DeleteMessage(ctx context.Context, ref MessageRef) error
	// FetchFile downloads an uploaded file by its transport identifier.
	FetchFile(ctx context.Context, fileID string) ([]byte, error)
}
