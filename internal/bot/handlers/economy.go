package handlers

import (
	"context"
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/ghost-cover/ghostcover-bot/internal/bot/keyboard"
	"github.com/ghost-cover/ghostcover-bot/internal/domain"
	"github.com/ghost-cover/ghostcover-bot/internal/flow"
	"github.com/ghost-cover/ghostcover-bot/internal/ledger"
	"github.com/ghost-cover/ghostcover-bot/internal/store"
)

// NewDailyHandler processes the daily bonus claim.
func NewDailyHandler(st *store.Manager, lg *ledger.Ledger, log *slog.Logger) Handler {
	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}

		var out ledger.DailyOutcome
		err := st.Update(context.Background(), func(doc *domain.Document) error {
			out = lg.ClaimDaily(doc.User(sender.ID))
			return nil
		})
		if err != nil {
			return err
		}

		if out.Rejection == ledger.RejectAlreadyClaimed {
			return c.Send("⏳ You already claimed today's bonus. Come back tomorrow!")
		}

		text := fmt.Sprintf("🎁 Daily bonus claimed: +%d coins.", out.Awarded)
		if out.Halved {
			text = fmt.Sprintf("💔 You broke your streak, your balance was halved.\n🎁 Bonus claimed anyway: +%d coins.", out.Awarded)
		}
		if out.StreakBonus {
			text += fmt.Sprintf("\n🔥 %d-day streak complete, bonus included!", ledger.StreakBonusLength)
		} else {
			text += fmt.Sprintf("\nStreak: %d of %d days.", out.Streak, ledger.StreakBonusLength)
		}
		text += fmt.Sprintf("\nBalance: %d coins.", out.NewBalance)

		return c.Send(text)
	}
}

// NewBalanceHandler shows the user's economy snapshot.
func NewBalanceHandler(st *store.Manager, botUsername string, log *slog.Logger) Handler {
	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}

		var u domain.UserRecord
		st.View(func(doc *domain.Document) {
			u = *doc.User(sender.ID)
		})

		text := fmt.Sprintf("💰 Balance: %d coins\n👥 Invited: %d friends", u.Balance, len(u.Referrals))

		switch {
		case u.Stake.Completed:
			text += "\n✅ Stake complete, you can /withdraw once you hold " +
				fmt.Sprintf("%d coins.", ledger.WithdrawalThreshold)
		case u.Stake.Active:
			text += fmt.Sprintf("\n⏳ Stake: day %d of %d. Invite someone today to keep it alive!",
				u.Stake.DaysCompleted, ledger.StakeDaysRequired)
		default:
			text += fmt.Sprintf("\n🔒 Reach %d coins to unlock withdrawals.", ledger.WithdrawalThreshold)
		}

		if u.PendingWithdrawal != nil {
			text += fmt.Sprintf("\n📨 Withdrawal of %d coins is being processed.", u.PendingWithdrawal.Amount)
		}

		text += fmt.Sprintf("\n\nYour invite link:\nhttps://t.me/%s?start=%d", botUsername, sender.ID)
		return c.Send(text)
	}
}

// NewWithdrawHandler places a withdrawal request.
func NewWithdrawHandler(st *store.Manager, lg *ledger.Ledger, log *slog.Logger) Handler {
	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}

		var out ledger.WithdrawalOutcome
		var owners []int64
		err := st.Update(context.Background(), func(doc *domain.Document) error {
			out = lg.RequestWithdrawal(doc.User(sender.ID))
			owners = append(owners, doc.Owners...)
			return nil
		})
		if err != nil {
			return err
		}

		switch out.Rejection {
		case ledger.RejectInsufficientBalance:
			return c.Send(fmt.Sprintf("You need at least %d coins to withdraw.", ledger.WithdrawalThreshold))
		case ledger.RejectStakeIncomplete:
			return c.Send(fmt.Sprintf("Finish the %d-day invite stake first. Check /balance for your progress.", ledger.StakeDaysRequired))
		case ledger.RejectWithdrawalPending:
			return c.Send("You already have a withdrawal being processed.")
		}

		for _, owner := range owners {
			note := fmt.Sprintf("💸 Withdrawal request: user %d (@%s) for %d coins.", sender.ID, sender.Username, out.Amount)
			if _, err := c.Bot().Send(telebot.ChatID(owner), note); err != nil {
				log.Warn("could not notify owner of withdrawal", slog.Int64("owner", owner), slog.Any("error", err))
			}
		}

		return c.Send(fmt.Sprintf("✅ Withdrawal of %d coins requested! An admin will process it soon.", out.Amount))
	}
}

// NewRedeemHandler starts the coupon redemption flow.
func NewRedeemHandler(engine *flow.Engine, kb *keyboard.Builder, log *slog.Logger) Handler {
	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}

		prompt, err := engine.Begin(context.Background(), sender.ID, flow.KindRedeemCode)
		if err != nil {
			return err
		}

		return c.Send(prompt, kb.CancelButton())
	}
}
