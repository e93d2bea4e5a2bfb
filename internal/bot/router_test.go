package bot

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	telebot "gopkg.in/telebot.v3"

	"github.com/ghost-cover/ghostcover-bot/internal/bot/handlers"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFindCallbackHandler_LongestPrefixWins(t *testing.T) {
	r := NewRouter(nil, testLogger())

	var hit string
	r.RegisterCallback("admin_clear", func(c telebot.Context) error {
		hit = "admin_clear"
		return nil
	})
	r.RegisterCallback("admin_clear_confirm", func(c telebot.Context) error {
		hit = "admin_clear_confirm"
		return nil
	})

	h := r.findCallbackHandler("admin_clear_confirm")
	if assert.NotNil(t, h) {
		_ = h(nil)
		assert.Equal(t, "admin_clear_confirm", hit)
	}

	h = r.findCallbackHandler("admin_clear")
	if assert.NotNil(t, h) {
		_ = h(nil)
		assert.Equal(t, "admin_clear", hit)
	}

	assert.Nil(t, r.findCallbackHandler("unknown"))
}

func TestApplyMiddlewares_Order(t *testing.T) {
	r := NewRouter(nil, testLogger())

	var order []string
	mw := func(name string) handlers.Middleware {
		return func(next handlers.Handler) handlers.Handler {
			return func(c telebot.Context) error {
				order = append(order, name)
				return next(c)
			}
		}
	}

	r.Use(mw("outer"))
	r.Use(mw("inner"))

	h := r.applyMiddlewares(func(c telebot.Context) error {
		order = append(order, "handler")
		return nil
	})
	_ = h(nil)

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestCommandLabel(t *testing.T) {
	cases := map[string]string{
		"/start":          "/start",
		"/start 12345":    "/start",
		"/daily@ghostbot": "/daily",
		"admin_broadcast": "admin_broadcast",
		"check_join":      "check_join",
		"hello there":     "message",
		"":                "message",
	}

	for input, want := range cases {
		assert.Equal(t, want, commandLabel(input), "input %q", input)
	}
}
