package bot

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	telebot "gopkg.in/telebot.v3"

	"github.com/ghost-cover/ghostcover-bot/internal/bot/keyboard"
	"github.com/ghost-cover/ghostcover-bot/internal/domain"
	"github.com/ghost-cover/ghostcover-bot/internal/gateway"
	"github.com/ghost-cover/ghostcover-bot/internal/membership"
	"github.com/ghost-cover/ghostcover-bot/internal/storage"
	"github.com/ghost-cover/ghostcover-bot/internal/store"
)

// stubContext fakes the slice of telebot.Context the middlewares touch.
type stubContext struct {
	telebot.Context
	sender   *telebot.User
	callback *telebot.Callback
	text     string
	sent     []interface{}
}

func (s *stubContext) Sender() *telebot.User       { return s.sender }
func (s *stubContext) Callback() *telebot.Callback { return s.callback }
func (s *stubContext) Text() string                { return s.text }

func (s *stubContext) Send(what interface{}, opts ...interface{}) error {
	s.sent = append(s.sent, what)
	for _, opt := range opts {
		s.sent = append(s.sent, opt)
	}
	return nil
}

type stubGateway struct {
	status gateway.MemberStatus
}

func (g *stubGateway) MembershipStatus(ctx context.Context, handle string, userID int64) (gateway.MemberStatus, error) {
	return g.status, nil
}

func (g *stubGateway) SendMessage(ctx context.Context, chatID int64, text string) error { return nil }

func (g *stubGateway) DeliverFile(ctx context.Context, chatID int64, data []byte, filename, caption string) (gateway.MessageRef, error) {
	return gateway.MessageRef{}, nil
}

func (g *stubGateway) DeleteMessage(ctx context.Context, ref gateway.MessageRef) error { return nil }

func (g *stubGateway) FetchFile(ctx context.Context, fileID string) ([]byte, error) { return nil, nil }

func newGateStore(t *testing.T) *store.Manager {
	t.Helper()

	fs := storage.NewFileStorage(filepath.Join(t.TempDir(), "data.json"), testLogger())
	st, err := store.NewManager(context.Background(), fs, 1, testLogger())
	require.NoError(t, err)
	return st
}

func TestGateMiddleware_RemovesUnverifiedSubscriber(t *testing.T) {
	st := newGateStore(t)
	ctx := context.Background()

	// A private invite yields no queryable handle, so the channel always
	// counts as missing.
	require.NoError(t, st.Update(ctx, func(doc *domain.Document) error {
		doc.Force.Enabled = true
		doc.Force.Channels = []domain.ChannelGateEntry{{Invite: "https://t.me/+secret"}}
		doc.AddSubscriber(42)
		return nil
	}))

	verifier := membership.NewVerifier(&stubGateway{status: gateway.StatusMember}, testLogger())
	mw := GateMiddleware(verifier, st, keyboard.NewBuilder(testLogger()), testLogger())

	nextCalled := false
	h := mw(func(c telebot.Context) error {
		nextCalled = true
		return nil
	})

	c := &stubContext{sender: &telebot.User{ID: 42}, text: "hello"}
	require.NoError(t, h(c))

	assert.False(t, nextCalled, "gated users never reach the handler")
	st.View(func(doc *domain.Document) {
		assert.False(t, doc.IsSubscriber(42), "unverified users are dropped from subscribers")
	})

	require.NotEmpty(t, c.sent)
	assert.Equal(t, "🔒 Join these channels to use the bot:", c.sent[0])

	var markup *telebot.ReplyMarkup
	for _, item := range c.sent {
		if m, ok := item.(*telebot.ReplyMarkup); ok {
			markup = m
		}
	}
	require.NotNil(t, markup, "the join prompt carries the keyboard")
	last := markup.InlineKeyboard[len(markup.InlineKeyboard)-1]
	assert.Equal(t, "check_join", last[0].Data)
}

func TestGateMiddleware_OwnerBypasses(t *testing.T) {
	st := newGateStore(t)
	ctx := context.Background()

	require.NoError(t, st.Update(ctx, func(doc *domain.Document) error {
		doc.Force.Enabled = true
		doc.Force.Channels = []domain.ChannelGateEntry{{Invite: "https://t.me/+secret"}}
		return nil
	}))

	verifier := membership.NewVerifier(&stubGateway{status: gateway.StatusLeft}, testLogger())
	mw := GateMiddleware(verifier, st, keyboard.NewBuilder(testLogger()), testLogger())

	nextCalled := false
	h := mw(func(c telebot.Context) error {
		nextCalled = true
		return nil
	})

	require.NoError(t, h(&stubContext{sender: &telebot.User{ID: 1}, text: "/owner"}))
	assert.True(t, nextCalled, "owners can never lock themselves out")
}

func TestGateMiddleware_WarnsOnZeroChannels(t *testing.T) {
	st := newGateStore(t)
	ctx := context.Background()

	require.NoError(t, st.Update(ctx, func(doc *domain.Document) error {
		doc.Force.Enabled = true
		return nil
	}))

	verifier := membership.NewVerifier(&stubGateway{status: gateway.StatusMember}, testLogger())
	mw := GateMiddleware(verifier, st, keyboard.NewBuilder(testLogger()), testLogger())

	nextCalled := false
	h := mw(func(c telebot.Context) error {
		nextCalled = true
		return nil
	})

	c := &stubContext{sender: &telebot.User{ID: 42}, text: "hello"}
	require.NoError(t, h(c))

	assert.False(t, nextCalled)
	require.NotEmpty(t, c.sent)
	assert.Contains(t, c.sent[0], "no channels are configured")
}

func TestGateMiddleware_VerifyCallbackPassesThrough(t *testing.T) {
	st := newGateStore(t)
	ctx := context.Background()

	require.NoError(t, st.Update(ctx, func(doc *domain.Document) error {
		doc.Force.Enabled = true
		doc.Force.Channels = []domain.ChannelGateEntry{{Invite: "https://t.me/+secret"}}
		return nil
	}))

	verifier := membership.NewVerifier(&stubGateway{status: gateway.StatusMember}, testLogger())
	mw := GateMiddleware(verifier, st, keyboard.NewBuilder(testLogger()), testLogger())

	nextCalled := false
	h := mw(func(c telebot.Context) error {
		nextCalled = true
		return nil
	})

	c := &stubContext{
		sender:   &telebot.User{ID: 42},
		callback: &telebot.Callback{Data: "\fcheck_join"},
	}
	require.NoError(t, h(c))
	assert.True(t, nextCalled, "the verify button must work for gated users")
}
