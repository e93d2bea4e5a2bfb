// Package keyboard renders the inline keyboards of the bot.
package keyboard

import (
	"log/slog"
	"strconv"

	telebot "gopkg.in/telebot.v3"

	"github.com/ghost-cover/ghostcover-bot/internal/domain"
)

// Builder creates inline keyboards.
type Builder struct {
	log *slog.Logger
}

// NewBuilder returns a new Builder instance.
func NewBuilder(log *slog.Logger) *Builder {
	return &Builder{log: log}
}

// JoinPrompt lays the join buttons out two per row, with the verify button
// on its own final row.
func (b *Builder) JoinPrompt(channels []domain.ChannelGateEntry, checkBtnText string) *telebot.ReplyMarkup {
	if checkBtnText == "" {
		checkBtnText = domain.DefaultCheckButtonText
	}

	markup := &telebot.ReplyMarkup{}
	var row []telebot.InlineButton

	for _, ch := range channels {
		text := ch.JoinBtnText
		if text == "" {
			text = "🔗 Join Channel"
		}

		btn := telebot.InlineButton{Text: text}
		if url, ok := ch.JoinURL(); ok {
			btn.URL = url
		} else {
			// No link can be derived, the button only explains itself.
			btn.Data = "force_no_invite"
		}

		row = append(row, btn)
		if len(row) == 2 {
			markup.InlineKeyboard = append(markup.InlineKeyboard, row)
			row = nil
		}
	}
	if len(row) > 0 {
		markup.InlineKeyboard = append(markup.InlineKeyboard, row)
	}

	markup.InlineKeyboard = append(markup.InlineKeyboard, []telebot.InlineButton{
		{Text: checkBtnText, Data: "check_join"},
	})

	return markup
}

// OwnerPanel builds the owner control panel.
func (b *Builder) OwnerPanel() *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	markup.InlineKeyboard = [][]telebot.InlineButton{
		{
			{Text: "📣 Broadcast", Data: "admin_broadcast"},
			{Text: "🎟 New coupon", Data: "admin_coupon"},
		},
		{
			{Text: "📡 Channels", Data: "admin_channels"},
			{Text: "👑 Owners", Data: "admin_owners"},
		},
		{
			{Text: "💰 Edit balance", Data: "admin_edit_balance"},
			{Text: "📆 Edit stake", Data: "admin_edit_stake"},
		},
		{
			{Text: "📤 Backup now", Data: "admin_backup"},
			{Text: "📊 Stats", Data: "admin_stats"},
		},
		{
			{Text: "💸 Withdrawals", Data: "admin_withdrawals"},
		},
		{
			{Text: "📥 Import (replace)", Data: "admin_import_replace"},
			{Text: "📥 Import (merge)", Data: "admin_import_merge"},
		},
		{
			{Text: "🔐 Toggle force-join", Data: "admin_toggle_force"},
			{Text: "⏰ Toggle auto-backup", Data: "admin_toggle_backup"},
		},
		{
			{Text: "🧹 Clear all data", Data: "admin_clear"},
			{Text: "♻️ Restore last backup", Data: "admin_restore"},
		},
		{
			{Text: "✖️ Close", Data: "admin_close"},
		},
	}
	return markup
}

// OwnerList renders one remove button per owner plus an add button. The
// remove buttons are omitted for the last remaining owner.
func (b *Builder) OwnerList(owners []int64) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	if len(owners) > 1 {
		for _, id := range owners {
			markup.InlineKeyboard = append(markup.InlineKeyboard, []telebot.InlineButton{
				{Text: "❌ " + strconv.FormatInt(id, 10), Data: "admin_rmowner_" + strconv.FormatInt(id, 10)},
			})
		}
	}
	markup.InlineKeyboard = append(markup.InlineKeyboard, []telebot.InlineButton{
		{Text: "➕ Add owner", Data: "admin_add_owner"},
	})
	return markup
}

// WithdrawalList renders one payout button per pending withdrawal.
func (b *Builder) WithdrawalList(pending map[int64]int64, order []int64) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	for _, id := range order {
		label := "✅ Pay " + strconv.FormatInt(pending[id], 10) + " to " + strconv.FormatInt(id, 10)
		markup.InlineKeyboard = append(markup.InlineKeyboard, []telebot.InlineButton{
			{Text: label, Data: "admin_payout_" + strconv.FormatInt(id, 10)},
		})
	}
	return markup
}

// ChannelList renders one remove button per configured channel.
func (b *Builder) ChannelList(channels []domain.ChannelGateEntry) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	for i, ch := range channels {
		markup.InlineKeyboard = append(markup.InlineKeyboard, []telebot.InlineButton{
			{Text: "❌ " + ch.Label(), Data: "admin_rmchan_" + strconv.Itoa(i)},
		})
	}
	markup.InlineKeyboard = append(markup.InlineKeyboard, []telebot.InlineButton{
		{Text: "📡 Add channel", Data: "admin_add_channel"},
	})
	return markup
}

// ConfirmClear asks for explicit confirmation before wiping data.
func (b *Builder) ConfirmClear() *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	markup.InlineKeyboard = [][]telebot.InlineButton{
		{
			{Text: "Yes, clear everything", Data: "admin_clear_confirm"},
			{Text: "Cancel ❌", Data: "admin_clear_cancel"},
		},
	}
	return markup
}

// CancelButton builds a single cancel button for flows.
func (b *Builder) CancelButton() *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	markup.ReplyKeyboard = [][]telebot.ReplyButton{
		{{Text: "❌ Cancel"}},
	}
	markup.ResizeKeyboard = true
	markup.OneTimeKeyboard = true
	return markup
}
