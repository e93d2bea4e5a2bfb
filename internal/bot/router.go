// Package bot wires the Telegram surface: routing, middlewares and startup.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/ghost-cover/ghostcover-bot/internal/bot/handlers"
	"github.com/ghost-cover/ghostcover-bot/internal/flow"
)

// Router dispatches commands, callbacks and flow-aware updates. Commands win
// over an active flow, so a user stuck in a wizard can always run /cancel or
// /start.
type Router struct {
	mu             sync.RWMutex
	commands       map[string]handlers.Handler
	callbacks      map[string]handlers.CallbackHandler
	engine         *flow.Engine
	defaultHandler handlers.Handler
	middlewares    []handlers.Middleware
	log            *slog.Logger
}

// NewRouter builds a Router with empty registries.
func NewRouter(engine *flow.Engine, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		commands:  make(map[string]handlers.Handler),
		callbacks: make(map[string]handlers.CallbackHandler),
		engine:    engine,
		log:       log,
	}
}

// RegisterCommand registers a handler for a bot command.
func (r *Router) RegisterCommand(cmd string, h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd] = h
}

// RegisterCallback registers a handler for callback data prefixes.
func (r *Router) RegisterCallback(prefix string, h handlers.CallbackHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[prefix] = h
}

// Use appends a middleware to the chain.
func (r *Router) Use(mw handlers.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// SetDefault sets the fallback handler for unmatched updates.
func (r *Router) SetDefault(h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultHandler = h
}

// Route directs the incoming update to the appropriate handler.
func (r *Router) Route(c telebot.Context) error {
	if c == nil {
		return nil
	}

	if callback := c.Callback(); callback != nil {
		return r.handleCallback(c, callback.Data)
	}

	return r.handleMessage(c)
}

func (r *Router) handleCallback(c telebot.Context, data string) error {
	data = strings.TrimPrefix(data, "\f")

	handler := r.findCallbackHandler(data)
	if handler == nil {
		r.log.Info("no callback handler found", "data", data)
		return nil
	}

	return r.executeHandler(handlers.Handler(handler), c)
}

func (r *Router) handleMessage(c telebot.Context) error {
	text := c.Text()

	if strings.HasPrefix(text, "/") {
		cmd := text
		if i := strings.IndexAny(cmd, " @"); i > 0 {
			cmd = cmd[:i]
		}
		if handler := r.getCommandHandler(cmd); handler != nil {
			return r.executeHandler(handler, c)
		}
	}

	if r.engine != nil && c.Sender() != nil && r.engine.Active(context.Background(), c.Sender().ID) {
		return r.executeHandler(r.advanceFlow, c)
	}

	if handler := r.getDefaultHandler(); handler != nil {
		return r.executeHandler(handler, c)
	}

	return nil
}

// advanceFlow feeds the message to the user's wizard and replies with the
// step's outcome.
func (r *Router) advanceFlow(c telebot.Context) error {
	input := flow.Input{Text: c.Text()}
	if msg := c.Message(); msg != nil && msg.Document != nil {
		input.FileID = msg.Document.FileID
		input.FileName = msg.Document.FileName
	}

	res, err := r.engine.Advance(context.Background(), c.Sender().ID, input)
	if err != nil {
		return err
	}

	if res.Message == "" {
		return nil
	}

	switch res.Status {
	case flow.StatusCompleted, flow.StatusCancelled:
		return c.Send(res.Message, &telebot.ReplyMarkup{RemoveKeyboard: true})
	default:
		return c.Send(res.Message)
	}
}

func (r *Router) executeHandler(h handlers.Handler, c telebot.Context) error {
	wrapped := r.applyMiddlewares(h)
	if wrapped == nil {
		return nil
	}
	return wrapped(c)
}

func (r *Router) findCallbackHandler(data string) handlers.CallbackHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Longest prefix wins so "admin_clear_confirm" is not shadowed by
	// "admin_clear".
	var best handlers.CallbackHandler
	bestLen := -1
	for prefix, handler := range r.callbacks {
		if strings.HasPrefix(data, prefix) && len(prefix) > bestLen {
			best = handler
			bestLen = len(prefix)
		}
	}

	return best
}

func (r *Router) getCommandHandler(cmd string) handlers.Handler {
	r.mu.RLock()
	handler := r.commands[cmd]
	r.mu.RUnlock()
	return handler
}

func (r *Router) getDefaultHandler() handlers.Handler {
	r.mu.RLock()
	handler := r.defaultHandler
	r.mu.RUnlock()
	return handler
}

// applyMiddlewares wraps the handler with all registered middlewares.
func (r *Router) applyMiddlewares(h handlers.Handler) handlers.Handler {
	if h == nil {
		return nil
	}

	middlewares := r.middlewaresSnapshot()
	wrapped := h
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}

	return wrapped
}

func (r *Router) middlewaresSnapshot() []handlers.Middleware {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.middlewares) == 0 {
		return nil
	}

	snapshot := make([]handlers.Middleware, len(r.middlewares))
	copy(snapshot, r.middlewares)
	return snapshot
}
