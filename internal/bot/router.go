package bot

import (
	"context"
	"log/slog"
	"maps"
	"strings"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/bot/handlers"
	"github.com/Proton-105/alina-bot/internal/bot/keyboard"
)

// Router dispatches commands, callbacks, and state-aware updates.
type Router struct {
	mu              sync.RWMutex
	commands        map[string]handlers.Handler
	callbacks       handlers.CallbackHandler
	unknownCallback handlers.Handler
	dispatcher      *Dispatcher
	defaultHandler  handlers.Handler
	middlewares     []handlers.Middleware
	log             *slog.Logger
}

// NewRouter builds a Router with empty registries.
func NewRouter(dispatcher *Dispatcher, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		commands:    make(map[string]handlers.Handler),
		dispatcher:  dispatcher,
		middlewares: make([]handlers.Middleware, 0),
		log:         log,
	}
}

// RegisterCommand registers a handler for a bot command such as "/start".
func (r *Router) RegisterCommand(cmd string, h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[strings.ToLower(cmd)] = h
}

// RegisterCallbacks sets the handler for decoded callbacks and the one for data that does
// not decode.
func (r *Router) RegisterCallbacks(h handlers.CallbackHandler, unknown handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = h
	r.unknownCallback = unknown
}

// Use appends a middleware to the chain.
func (r *Router) Use(mw handlers.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// SetDefault sets the fallback handler for text that is neither a command nor awaited input.
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

// Wrap applies the middleware chain to a handler registered outside the router.
func (r *Router) Wrap(h handlers.Handler) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		return r.executeHandler(h, c)
	}
}

func (r *Router) handleCallback(c telebot.Context, data string) error {
	rt := r.snapshot()

	cb, err := keyboard.ParseCallback(data)
	if err != nil {
		r.log.Info("unknown callback data", slog.String("data", data))
		return rt.run(rt.unknownCallback, c)
	}
	if rt.callbacks == nil {
		return nil
	}

	return rt.run(func(ctx telebot.Context) error {
		return rt.callbacks(ctx, cb)
	}, c)
}

// handleMessage tries a command, then the handler for an awaited input, then the default.
func (r *Router) handleMessage(c telebot.Context) error {
	rt := r.snapshot()

	if cmd, ok := commandName(strings.TrimSpace(c.Text())); ok {
		if h := rt.commands[cmd]; h != nil {
			return rt.run(h, c)
		}
	}

	if c.Sender() != nil && r.dispatcher != nil {
		h, err := r.dispatcher.Resolve(context.Background(), c.Sender().ID)
		if err != nil {
			return err
		}
		if h != nil {
			return rt.run(h, c)
		}
	}

	return rt.run(rt.fallback, c)
}

// commandName extracts "/cmd" from "/cmd@bot args".
func commandName(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	cmd, _, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "\n")
	cmd, _, _ = strings.Cut(cmd, "@")
	if len(cmd) < 2 {
		return "", false
	}
	return strings.ToLower(cmd), true
}

func (r *Router) executeHandler(h handlers.Handler, c telebot.Context) error {
	return r.snapshot().run(h, c)
}

// routes is a consistent view of the registries taken under one read lock.
type routes struct {
	commands        map[string]handlers.Handler
	callbacks       handlers.CallbackHandler
	unknownCallback handlers.Handler
	fallback        handlers.Handler
	chain           []handlers.Middleware
}

func (r *Router) snapshot() routes {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return routes{
		commands:        maps.Clone(r.commands),
		callbacks:       r.callbacks,
		unknownCallback: r.unknownCallback,
		fallback:        r.defaultHandler,
		chain:           append([]handlers.Middleware(nil), r.middlewares...),
	}
}

// run wraps h in the middleware chain, first registered outermost. A nil h is a no-op.
func (rt routes) run(h handlers.Handler, c telebot.Context) error {
	if h == nil {
		return nil
	}
	for i := len(rt.chain) - 1; i >= 0; i-- {
		h = rt.chain[i](h)
	}
	return h(c)
}
