package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	telebot "gopkg.in/telebot.v3"

	"github.com/ghost-cover/ghostcover-bot/internal/domain"
	"github.com/ghost-cover/ghostcover-bot/internal/ledger"
	"github.com/ghost-cover/ghostcover-bot/internal/store"
)

// NewStartHandler registers the user, processes a referral payload and sends
// the welcome message with the user's own referral link.
func NewStartHandler(st *store.Manager, lg *ledger.Ledger, botUsername string, log *slog.Logger) Handler {
	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}

		ctx := context.Background()
		userID := sender.ID

		var referrerID int64
		if msg := c.Message(); msg != nil && msg.Payload != "" {
			if id, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
				referrerID = id
			}
		}

		var outcome ledger.ReferralOutcome
		firstContact := false
		err := st.Update(ctx, func(doc *domain.Document) error {
			_, known := doc.FindUser(userID)
			firstContact = !known

			u := doc.User(userID)
			u.Username = sender.Username
			doc.AddSubscriber(userID)

			if referrerID != 0 && firstContact {
				outcome = lg.ProcessReferral(doc, userID, referrerID)
			}
			return nil
		})
		if err != nil {
			return err
		}

		if outcome.Rejection == ledger.Accepted && outcome.Reward > 0 {
			notifyReferrer(c, referrerID, outcome, log)
		}

		link := fmt.Sprintf("https://t.me/%s?start=%d", botUsername, userID)
		welcome := "👻 Welcome to Ghost Cover!\n\n" +
			"Send me any message and I will repost it as the bot, with no trace of you.\n\n" +
			"Earn coins by inviting friends with your personal link:\n" + link +
			"\n\nCommands: /daily for your bonus, /balance for your stats, /redeem for coupons."
		return c.Send(welcome)
	}
}

func notifyReferrer(c telebot.Context, referrerID int64, outcome ledger.ReferralOutcome, log *slog.Logger) {
	text := fmt.Sprintf("🎉 Someone joined with your link! +%d coins.", outcome.Reward)
	switch {
	case outcome.Stake.Counted:
		text += fmt.Sprintf(" Stake day %d of %d done, +%d more.",
			outcome.Stake.DaysCompleted, ledger.StakeDaysRequired, outcome.Stake.Awarded)
	case outcome.Stake.Missed:
		text += fmt.Sprintf(" You missed a stake day: -%d coins and the streak starts over.",
			outcome.Stake.Penalty)
	}
	if outcome.Stake.Completed {
		text += " Your 20-day stake is complete, withdrawal is now possible!"
	}

	if _, err := c.Bot().Send(telebot.ChatID(referrerID), text); err != nil {
		log.Debug("could not notify referrer", slog.Int64("referrer", referrerID), slog.Any("error", err))
	}
}
