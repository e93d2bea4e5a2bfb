package handlers

import (
	"context"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/ghost-cover/ghostcover-bot/internal/flow"
)

// NewCancelHandler aborts the user's active wizard, if any.
func NewCancelHandler(engine *flow.Engine, log *slog.Logger) Handler {
	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}

		ctx := context.Background()
		if !engine.Active(ctx, sender.ID) {
			return c.Send("Nothing to cancel.")
		}

		if err := engine.Cancel(ctx, sender.ID); err != nil {
			return err
		}

		return c.Send("Cancelled.", &telebot.ReplyMarkup{RemoveKeyboard: true})
	}
}

// NewHelpHandler lists the available commands.
func NewHelpHandler() Handler {
	return func(c telebot.Context) error {
		return c.Send("👻 Ghost Cover\n\n" +
			"Send any message and I repost it as the bot.\n\n" +
			"/daily — claim your daily bonus\n" +
			"/balance — coins, streak and stake progress\n" +
			"/redeem — redeem a coupon code\n" +
			"/withdraw — request a withdrawal\n" +
			"/cancel — abort the current action")
	}
}
