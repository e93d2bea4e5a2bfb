package bot

import (
	"context"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/ghost-cover/ghostcover-bot/internal/backup"
	"github.com/ghost-cover/ghostcover-bot/internal/bot/handlers"
	"github.com/ghost-cover/ghostcover-bot/internal/bot/keyboard"
	"github.com/ghost-cover/ghostcover-bot/internal/domain"
	apperrors "github.com/ghost-cover/ghostcover-bot/internal/errors"
	"github.com/ghost-cover/ghostcover-bot/internal/flow"
	"github.com/ghost-cover/ghostcover-bot/internal/ledger"
	"github.com/ghost-cover/ghostcover-bot/internal/membership"
	"github.com/ghost-cover/ghostcover-bot/internal/ratelimit"
	"github.com/ghost-cover/ghostcover-bot/internal/store"
	"github.com/ghost-cover/ghostcover-bot/pkg/config"
)

// Commands.
const (
	CommandStart    = "/start"
	CommandDaily    = "/daily"
	CommandBalance  = "/balance"
	CommandRedeem   = "/redeem"
	CommandWithdraw = "/withdraw"
	CommandCancel   = "/cancel"
	CommandHelp     = "/help"
	CommandOwner    = "/owner"
)

// Bot wraps telebot.Bot with the application routing.
type Bot struct {
	telebot    *telebot.Bot
	cfg        *config.Config
	store      *store.Manager
	router     *Router
	keyboard   *keyboard.Builder
	errHandler *apperrors.Handler
	log        *slog.Logger
}

// New wires the router, middlewares and handlers around an already
// connected telebot instance.
func New(
	tb *telebot.Bot,
	cfg *config.Config,
	st *store.Manager,
	lg *ledger.Ledger,
	verifier *membership.Verifier,
	engine *flow.Engine,
	backupMgr *backup.Manager,
	limiter ratelimit.Limiter,
	log *slog.Logger,
) *Bot {
	if log == nil {
		log = slog.Default()
	}

	kb := keyboard.NewBuilder(log)
	router := NewRouter(engine, log)
	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled)

	b := &Bot{
		telebot:    tb,
		cfg:        cfg,
		store:      st,
		router:     router,
		keyboard:   kb,
		errHandler: errHandler,
		log:        log,
	}

	b.setupRouter(lg, verifier, engine, backupMgr, limiter)
	b.registerTelebotHandlers()

	return b
}

// Start runs the telegram bot event loop.
func (b *Bot) Start() {
	if b.telebot != nil {
		b.telebot.Start()
	}
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	if b.telebot == nil {
		return
	}

	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

// Telebot exposes the underlying telebot.Bot instance.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

func (b *Bot) setupRouter(
	lg *ledger.Ledger,
	verifier *membership.Verifier,
	engine *flow.Engine,
	backupMgr *backup.Manager,
	limiter ratelimit.Limiter,
) {
	b.router.Use(RecoveryMiddleware(b.log, b.errHandler))
	b.router.Use(ErrorHandlingMiddleware(b.errHandler))
	b.router.Use(LoggingMiddleware(b.log))
	b.router.Use(FloodControlMiddleware(limiter, b.log))
	b.router.Use(GateMiddleware(verifier, b.store, b.keyboard, b.log))

	botUsername := ""
	if b.telebot != nil && b.telebot.Me != nil {
		botUsername = b.telebot.Me.Username
	}

	b.router.RegisterCommand(CommandStart, handlers.NewStartHandler(b.store, lg, botUsername, b.log))
	b.router.RegisterCommand(CommandDaily, handlers.NewDailyHandler(b.store, lg, b.log))
	b.router.RegisterCommand(CommandBalance, handlers.NewBalanceHandler(b.store, botUsername, b.log))
	b.router.RegisterCommand(CommandRedeem, handlers.NewRedeemHandler(engine, b.keyboard, b.log))
	b.router.RegisterCommand(CommandWithdraw, handlers.NewWithdrawHandler(b.store, lg, b.log))
	b.router.RegisterCommand(CommandCancel, handlers.NewCancelHandler(engine, b.log))
	b.router.RegisterCommand(CommandHelp, handlers.NewHelpHandler())
	b.router.RegisterCommand(CommandOwner, handlers.OwnerOnly(b.store, handlers.NewPanelHandler(b.keyboard, b.log)))

	b.router.RegisterCallback("check_join", handlers.HandleCheckJoin(verifier, b.store, b.keyboard, b.log))
	b.router.RegisterCallback("force_no_invite", handlers.HandleNoInvite())

	ownerCb := func(h handlers.CallbackHandler) handlers.CallbackHandler {
		return handlers.CallbackHandler(handlers.OwnerOnly(b.store, handlers.Handler(h)))
	}

	adminFlows := map[string]flow.Kind{
		"admin_broadcast":      flow.KindBroadcast,
		"admin_coupon":         flow.KindCouponAmount,
		"admin_add_owner":      flow.KindAddOwner,
		"admin_add_channel":    flow.KindAddChannel,
		"admin_edit_balance":   flow.KindEditBalance,
		"admin_edit_stake":     flow.KindEditStake,
		"admin_import_replace": flow.KindImportReplace,
		"admin_import_merge":   flow.KindImportMerge,
	}
	for prefix, kind := range adminFlows {
		b.router.RegisterCallback(prefix, ownerCb(handlers.NewAdminFlowCallback(engine, b.keyboard, kind)))
	}

	b.router.RegisterCallback("admin_channels", ownerCb(handlers.HandleChannels(b.store, b.keyboard)))
	b.router.RegisterCallback("admin_rmchan_", ownerCb(handlers.HandleRemoveChannel(b.store, b.keyboard, b.log)))
	b.router.RegisterCallback("admin_owners", ownerCb(handlers.HandleOwners(b.store, b.keyboard)))
	b.router.RegisterCallback("admin_rmowner_", ownerCb(handlers.HandleRemoveOwner(b.store, b.log)))
	b.router.RegisterCallback("admin_withdrawals", ownerCb(handlers.HandleWithdrawals(b.store, b.keyboard)))
	b.router.RegisterCallback("admin_payout_", ownerCb(handlers.HandlePayout(b.store, lg, b.log)))
	b.router.RegisterCallback("admin_close", ownerCb(handlers.HandleClose()))
	b.router.RegisterCallback("admin_toggle_force", ownerCb(handlers.HandleToggleForce(b.store)))
	b.router.RegisterCallback("admin_toggle_backup", ownerCb(handlers.HandleToggleBackup(b.store)))
	b.router.RegisterCallback("admin_backup", ownerCb(handlers.HandleBackupNow(backupMgr)))
	b.router.RegisterCallback("admin_stats", ownerCb(handlers.HandleStats(b.store)))
	b.router.RegisterCallback("admin_clear_confirm", ownerCb(handlers.HandleClearConfirm(backupMgr)))
	b.router.RegisterCallback("admin_clear_cancel", ownerCb(handlers.HandleClearCancel()))
	b.router.RegisterCallback("admin_clear", ownerCb(handlers.HandleClear(b.keyboard)))
	b.router.RegisterCallback("admin_restore", ownerCb(handlers.HandleRestore(backupMgr)))

	b.router.SetDefault(handlers.NewGhostHandler(b.log))
}

func (b *Bot) registerTelebotHandlers() {
	if b.telebot == nil {
		return
	}

	route := func(c telebot.Context) error {
		b.recordKnownChat(c)
		return b.router.Route(c)
	}

	b.telebot.Handle(telebot.OnText, route)
	b.telebot.Handle(telebot.OnCallback, route)
	b.telebot.Handle(telebot.OnDocument, route)
	b.telebot.Handle(telebot.OnPhoto, route)
	b.telebot.Handle(telebot.OnVideo, route)
	b.telebot.Handle(telebot.OnVoice, route)
	b.telebot.Handle(telebot.OnSticker, route)
	b.telebot.Handle(telebot.OnAnimation, route)
}

// recordKnownChat remembers every group or channel the bot sees, so exports
// carry a list of chats the bot was ever added to.
func (b *Bot) recordKnownChat(c telebot.Context) {
	chat := c.Chat()
	if chat == nil || chat.Type == telebot.ChatPrivate {
		return
	}

	known := false
	b.store.View(func(doc *domain.Document) {
		for _, id := range doc.KnownChats {
			if id == chat.ID {
				known = true
				return
			}
		}
	})
	if known {
		return
	}

	if err := b.store.Update(context.Background(), func(doc *domain.Document) error {
		doc.AddKnownChat(chat.ID)
		return nil
	}); err != nil {
		b.log.Warn("could not record known chat", slog.Int64("chat_id", chat.ID), slog.Any("error", err))
	}
}
