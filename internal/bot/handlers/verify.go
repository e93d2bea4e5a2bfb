package handlers

import (
	"context"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/ghost-cover/ghostcover-bot/internal/bot/keyboard"
	"github.com/ghost-cover/ghostcover-bot/internal/domain"
	"github.com/ghost-cover/ghostcover-bot/internal/membership"
	"github.com/ghost-cover/ghostcover-bot/internal/store"
)

// HandleCheckJoin re-verifies channel membership when the user presses the
// verify button under a join prompt.
func HandleCheckJoin(verifier *membership.Verifier, st *store.Manager, kb *keyboard.Builder, log *slog.Logger) CallbackHandler {
	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}

		ctx := context.Background()

		var channels []domain.ChannelGateEntry
		var checkBtnText string
		st.View(func(doc *domain.Document) {
			channels = append(channels, doc.Force.Channels...)
			checkBtnText = doc.Force.CheckBtnText
		})

		missing, checkFailed := verifier.Missing(ctx, sender.ID, channels)
		if len(missing) > 0 {
			text := "🚫 You have not joined all channels yet."
			if checkFailed {
				text = "⚠️ Could not verify some channels. Join them and try again."
			}

			if err := c.Respond(&telebot.CallbackResponse{Text: text, ShowAlert: true}); err != nil {
				log.Debug("callback respond failed", slog.Any("error", err))
			}
			return c.Send("Join the remaining channels, then press the button again.", kb.JoinPrompt(missing, checkBtnText))
		}

		if err := st.Update(ctx, func(doc *domain.Document) error {
			doc.AddSubscriber(sender.ID)
			doc.User(sender.ID).Username = sender.Username
			return nil
		}); err != nil {
			return err
		}

		if err := c.Respond(&telebot.CallbackResponse{Text: "✅ Verified!"}); err != nil {
			log.Debug("callback respond failed", slog.Any("error", err))
		}

		return c.Send("✅ You're in! Send me any message and I'll repost it anonymously. Try /daily too.")
	}
}

// HandleNoInvite explains a join button with no derivable link.
func HandleNoInvite() CallbackHandler {
	return func(c telebot.Context) error {
		return c.Respond(&telebot.CallbackResponse{
			Text:      "This channel has no public link. Ask an admin for the invite.",
			ShowAlert: true,
		})
	}
}
