package handlers

import (
	"log/slog"

	telebot "gopkg.in/telebot.v3"
)

// NewGhostHandler is the default handler: it reposts the user's message as
// the bot, stripping any forwarding trace. Messages that cannot be copied
// (service messages, expired media) are dropped without a reply, the user
// simply gets no echo.
func NewGhostHandler(log *slog.Logger) Handler {
	return func(c telebot.Context) error {
		msg := c.Message()
		if msg == nil || c.Chat() == nil {
			return nil
		}

		if _, err := c.Bot().Copy(c.Chat(), msg); err != nil {
			log.Debug("ghost copy failed",
				slog.Int64("chat_id", c.Chat().ID),
				slog.Int("message_id", msg.ID),
				slog.Any("error", err),
			)
		}

		return nil
	}
}
