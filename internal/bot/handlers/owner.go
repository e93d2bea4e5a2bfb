package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/ghost-cover/ghostcover-bot/internal/backup"
	"github.com/ghost-cover/ghostcover-bot/internal/bot/keyboard"
	"github.com/ghost-cover/ghostcover-bot/internal/domain"
	"github.com/ghost-cover/ghostcover-bot/internal/flow"
	"github.com/ghost-cover/ghostcover-bot/internal/ledger"
	"github.com/ghost-cover/ghostcover-bot/internal/store"
)

// OwnerOnly guards a handler so only listed owners can trigger it.
func OwnerOnly(st *store.Manager, next Handler) Handler {
	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}

		allowed := false
		st.View(func(doc *domain.Document) {
			allowed = doc.IsOwner(sender.ID)
		})
		if !allowed {
			return nil
		}

		return next(c)
	}
}

// NewPanelHandler shows the owner control panel.
func NewPanelHandler(kb *keyboard.Builder, log *slog.Logger) Handler {
	return func(c telebot.Context) error {
		return c.Send("🛠 Owner panel", kb.OwnerPanel())
	}
}

// NewAdminFlowCallback begins the given wizard from a panel button.
func NewAdminFlowCallback(engine *flow.Engine, kb *keyboard.Builder, kind flow.Kind) CallbackHandler {
	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}

		prompt, err := engine.Begin(context.Background(), sender.ID, kind)
		if err != nil {
			return err
		}

		_ = c.Respond(&telebot.CallbackResponse{})
		return c.Send(prompt, kb.CancelButton())
	}
}

// HandleChannels lists the force-join channels with remove buttons.
func HandleChannels(st *store.Manager, kb *keyboard.Builder) CallbackHandler {
	return func(c telebot.Context) error {
		var channels []domain.ChannelGateEntry
		var enabled bool
		st.View(func(doc *domain.Document) {
			channels = append(channels, doc.Force.Channels...)
			enabled = doc.Force.Enabled
		})

		status := "disabled"
		if enabled {
			status = "enabled"
		}

		text := fmt.Sprintf("📡 Force-join is %s, %d channel(s) required.", status, len(channels))
		return c.Send(text, kb.ChannelList(channels))
	}
}

// HandleRemoveChannel deletes the channel at the index encoded in the
// callback data.
func HandleRemoveChannel(st *store.Manager, kb *keyboard.Builder, log *slog.Logger) CallbackHandler {
	return func(c telebot.Context) error {
		data := strings.TrimPrefix(strings.TrimPrefix(c.Callback().Data, "\f"), "admin_rmchan_")
		idx, err := strconv.Atoi(data)
		if err != nil {
			log.Warn("malformed remove-channel callback", slog.String("data", c.Callback().Data))
			return nil
		}

		var removed string
		err = st.Update(context.Background(), func(doc *domain.Document) error {
			if idx < 0 || idx >= len(doc.Force.Channels) {
				return nil
			}
			removed = doc.Force.Channels[idx].Label()
			doc.Force.Channels = append(doc.Force.Channels[:idx], doc.Force.Channels[idx+1:]...)
			return nil
		})
		if err != nil {
			return err
		}

		if removed == "" {
			return c.Respond(&telebot.CallbackResponse{Text: "Channel list changed, reopen it."})
		}
		return c.Send(fmt.Sprintf("Channel %s removed.", removed))
	}
}

// HandleToggleForce flips the force-join gate.
func HandleToggleForce(st *store.Manager) CallbackHandler {
	return func(c telebot.Context) error {
		var enabled bool
		err := st.Update(context.Background(), func(doc *domain.Document) error {
			doc.Force.Enabled = !doc.Force.Enabled
			enabled = doc.Force.Enabled
			return nil
		})
		if err != nil {
			return err
		}

		if enabled {
			return c.Send("🔐 Force-join is now ON.")
		}
		return c.Send("🔓 Force-join is now OFF.")
	}
}

// HandleToggleBackup flips the automatic backup delivery.
func HandleToggleBackup(st *store.Manager) CallbackHandler {
	return func(c telebot.Context) error {
		var cfg domain.AutoBackupConfig
		err := st.Update(context.Background(), func(doc *domain.Document) error {
			doc.AutoBackup.Enabled = !doc.AutoBackup.Enabled
			cfg = doc.AutoBackup
			return nil
		})
		if err != nil {
			return err
		}

		if cfg.Enabled {
			return c.Send(fmt.Sprintf("⏰ Auto-backup is ON, every %d minute(s).", cfg.IntervalMinutes))
		}
		return c.Send("⏰ Auto-backup is OFF.")
	}
}

// HandleBackupNow delivers an immediate backup to every owner.
func HandleBackupNow(mgr *backup.Manager) CallbackHandler {
	return func(c telebot.Context) error {
		delivered, err := mgr.Deliver(context.Background(), "Manual backup.")
		if err != nil {
			return err
		}

		return c.Send(fmt.Sprintf("📤 Backup sent to %d owner(s).", delivered))
	}
}

// HandleStats shows document-level counters.
func HandleStats(st *store.Manager) CallbackHandler {
	return func(c telebot.Context) error {
		var text string
		st.View(func(doc *domain.Document) {
			active, redeemed := 0, 0
			for _, cp := range doc.Coupons {
				if cp.Status == domain.CouponRedeemed {
					redeemed++
				} else {
					active++
				}
			}

			pending := 0
			for _, u := range doc.Users {
				if u.PendingWithdrawal != nil {
					pending++
				}
			}

			text = fmt.Sprintf(
				"📊 Stats\nSubscribers: %d\nUsers: %d\nOwners: %d\nGate channels: %d\nCoupons: %d active, %d redeemed\nPending withdrawals: %d",
				len(doc.Subscribers), len(doc.Users), len(doc.Owners),
				len(doc.Force.Channels), active, redeemed, pending,
			)
		})

		return c.Send(text)
	}
}

// HandleClear asks for confirmation before wiping all data.
func HandleClear(kb *keyboard.Builder) CallbackHandler {
	return func(c telebot.Context) error {
		return c.Send("⚠️ This wipes everything except the owner list. A safety backup is sent first.", kb.ConfirmClear())
	}
}

// HandleClearConfirm performs the wipe.
func HandleClearConfirm(mgr *backup.Manager) CallbackHandler {
	return func(c telebot.Context) error {
		if err := mgr.Clear(context.Background()); err != nil {
			return err
		}

		return c.Send("🧹 All data cleared. Use ♻️ Restore last backup to undo.")
	}
}

// HandleClearCancel dismisses the confirmation.
func HandleClearCancel() CallbackHandler {
	return func(c telebot.Context) error {
		return c.Send("Clear cancelled, nothing was changed.")
	}
}

// HandleOwners lists the owners with remove buttons. The last remaining
// owner gets no remove button, so the owner set can never empty out.
func HandleOwners(st *store.Manager, kb *keyboard.Builder) CallbackHandler {
	return func(c telebot.Context) error {
		var owners []int64
		st.View(func(doc *domain.Document) {
			owners = append(owners, doc.Owners...)
		})

		return c.Send(fmt.Sprintf("👑 %d owner(s).", len(owners)), kb.OwnerList(owners))
	}
}

// HandleRemoveOwner removes the owner encoded in the callback data.
// Removing the last remaining owner is rejected outright.
func HandleRemoveOwner(st *store.Manager, log *slog.Logger) CallbackHandler {
	return func(c telebot.Context) error {
		data := strings.TrimPrefix(strings.TrimPrefix(c.Callback().Data, "\f"), "admin_rmowner_")
		target, err := strconv.ParseInt(data, 10, 64)
		if err != nil {
			log.Warn("malformed remove-owner callback", slog.String("data", c.Callback().Data))
			return nil
		}

		removed := false
		lastOwner := false
		err = st.Update(context.Background(), func(doc *domain.Document) error {
			if len(doc.Owners) <= 1 {
				lastOwner = true
				return nil
			}
			for i, id := range doc.Owners {
				if id == target {
					doc.Owners = append(doc.Owners[:i], doc.Owners[i+1:]...)
					removed = true
					return nil
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		if lastOwner {
			return c.Respond(&telebot.CallbackResponse{Text: "Cannot remove the last owner.", ShowAlert: true})
		}
		if !removed {
			return c.Respond(&telebot.CallbackResponse{Text: "That user is not an owner anymore."})
		}
		return c.Send(fmt.Sprintf("Owner %d removed.", target))
	}
}

// HandleWithdrawals lists users with an outstanding withdrawal.
func HandleWithdrawals(st *store.Manager, kb *keyboard.Builder) CallbackHandler {
	return func(c telebot.Context) error {
		pending := make(map[int64]int64)
		var order []int64
		st.View(func(doc *domain.Document) {
			for key, u := range doc.Users {
				if u.PendingWithdrawal == nil {
					continue
				}
				id, err := strconv.ParseInt(key, 10, 64)
				if err != nil {
					continue
				}
				pending[id] = u.PendingWithdrawal.Amount
				order = append(order, id)
			}
		})

		if len(order) == 0 {
			return c.Send("💸 No pending withdrawals.")
		}

		sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
		return c.Send(fmt.Sprintf("💸 %d pending withdrawal(s).", len(order)), kb.WithdrawalList(pending, order))
	}
}

// HandlePayout marks the target's pending withdrawal as processed and tells
// the user, best-effort.
func HandlePayout(st *store.Manager, lg *ledger.Ledger, log *slog.Logger) CallbackHandler {
	return func(c telebot.Context) error {
		data := strings.TrimPrefix(strings.TrimPrefix(c.Callback().Data, "\f"), "admin_payout_")
		target, err := strconv.ParseInt(data, 10, 64)
		if err != nil {
			log.Warn("malformed payout callback", slog.String("data", c.Callback().Data))
			return nil
		}

		var amount int64
		rejection := ledger.Accepted
		err = st.Update(context.Background(), func(doc *domain.Document) error {
			u := doc.User(target)
			if u.PendingWithdrawal != nil {
				amount = u.PendingWithdrawal.Amount
			}
			rejection = lg.ProcessWithdrawal(u)
			return nil
		})
		if err != nil {
			return err
		}

		if rejection == ledger.RejectNoPendingWithdrawal {
			return c.Respond(&telebot.CallbackResponse{Text: "No pending withdrawal for that user."})
		}

		note := fmt.Sprintf("✅ Your withdrawal of %d coins has been processed!", amount)
		if _, err := c.Bot().Send(telebot.ChatID(target), note); err != nil {
			log.Debug("could not notify user of payout", slog.Int64("user_id", target), slog.Any("error", err))
		}

		return c.Send(fmt.Sprintf("Withdrawal of %d coins for user %d processed.", amount, target))
	}
}

// HandleClose removes the panel message.
func HandleClose() CallbackHandler {
	return func(c telebot.Context) error {
		_ = c.Respond(&telebot.CallbackResponse{})
		return c.Delete()
	}
}

// HandleRestore re-imports the most recent backup taken this run.
func HandleRestore(mgr *backup.Manager) CallbackHandler {
	return func(c telebot.Context) error {
		if err := mgr.RestoreLast(context.Background()); err != nil {
			if errors.Is(err, backup.ErrNoBackup) {
				return c.Send("No backup from this session to restore.")
			}
			return err
		}

		return c.Send("♻️ Last backup restored.")
	}
}
