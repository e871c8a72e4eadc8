package bot

import (
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/bot/handlers"
	errors "github.com/Proton-105/alina-bot/internal/errors"
	"github.com/Proton-105/alina-bot/internal/idempotency"
	"github.com/Proton-105/alina-bot/internal/middleware"
	"github.com/Proton-105/alina-bot/internal/state"
	"github.com/Proton-105/alina-bot/pkg/config"
)

// Users is what the update middlewares need from the profile store.
type Users interface {
	ProfileLoader
	ActivityRecorder
}

// Deps are the collaborators of the update pipeline.
type Deps struct {
	Handlers    handlers.Deps
	Users       Users
	Idempotency idempotency.Manager
	RateLimit   *middleware.RateLimitMiddleware
	Errors      *errors.Handler
}

// Bot wraps telebot.Bot with application dependencies required for handling updates.
type Bot struct {
	telebot    *telebot.Bot
	log        *slog.Logger
	router     *Router
	dispatcher *Dispatcher
	deps       Deps
}

// NewTelebot creates the long-polling Telegram client.
func NewTelebot(cfg config.TelegramConfig) (*telebot.Bot, error) {
	tb, err := telebot.NewBot(telebot.Settings{
		Token:  cfg.Token,
		Poller: &telebot.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}
	return tb, nil
}

// New registers the update pipeline on tb.
func New(tb *telebot.Bot, deps Deps, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}
	if deps.Handlers.Log == nil {
		deps.Handlers.Log = log
	}

	dispatcher := NewDispatcher(deps.Handlers.FSM, log)
	b := &Bot{
		telebot:    tb,
		log:        log,
		router:     NewRouter(dispatcher, log),
		dispatcher: dispatcher,
		deps:       deps,
	}

	b.setupRouter()
	b.registerTelebotHandlers()

	return b
}

// Start runs the telegram bot event loop. It blocks until Stop is called.
func (b *Bot) Start() {
	if b.telebot != nil {
		b.log.Info("telegram bot polling started")
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

// Telebot exposes the underlying telebot.Bot instance for integrations such as health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

func (b *Bot) setupRouter() {
	d := b.deps.Handlers

	b.router.Use(RecoveryMiddleware(b.log, b.deps.Errors.WithFallback(d.Texts.T("common.error"))))
	b.router.Use(middleware.Idempotency(b.deps.Idempotency, b.log))
	b.router.Use(ErrorHandlingMiddleware(b.deps.Errors, d.Texts.T("common.error")))
	b.router.Use(LoggingMiddleware(b.log))
	if b.deps.Users != nil {
		b.router.Use(AuthMiddleware(b.deps.Users, b.log))
		b.router.Use(LastActiveMiddleware(b.deps.Users, b.log))
	}
	b.router.Use(middleware.Metrics)

	b.router.RegisterCommand(CommandStart, handlers.NewStartHandler(d))
	b.router.RegisterCommand(CommandHelp, handlers.NewHelpHandler(d))
	b.router.RegisterCommand(CommandProfile, handlers.NewProfileHandler(d))
	b.router.RegisterCommand(CommandMood, handlers.NewMoodHandler(d))
	b.router.RegisterCommand(CommandReminders, handlers.NewRemindersHandler(d))
	b.router.RegisterCommand(CommandTimezone, handlers.NewTimezoneHandler(d))
	b.router.RegisterCommand(CommandSubscribe, handlers.NewSubscribeHandler(d))
	b.router.RegisterCommand(CommandStatus, handlers.NewStatusHandler(d))
	b.router.RegisterCommand(CommandCancel, handlers.NewCancelHandler(d))
	b.router.RegisterCommand(CommandPingMe, handlers.NewPingMeHandler(d))
	b.router.RegisterCommand(CommandJobs, handlers.NewJobsHandler(d))

	b.router.RegisterCallbacks(handlers.NewCallbackHandler(d), handlers.NewUnknownCallbackHandler(d))

	chat := handlers.NewChatHandler(d)
	if b.deps.RateLimit != nil {
		chat = b.deps.RateLimit.Wrap(chat)
	}
	b.router.SetDefault(chat)

	b.dispatcher.RegisterStateHandler(state.StateAwaitingTimezone, handlers.NewTimezoneInputHandler(d))
	b.dispatcher.RegisterStateHandler(state.StateAwaitingReminderTime, handlers.NewReminderTimeInputHandler(d))
	b.dispatcher.RegisterStateHandler(state.StateError, handlers.NewResetHandler(d, chat))
}

func (b *Bot) registerTelebotHandlers() {
	if b.telebot == nil {
		return
	}

	b.telebot.Handle(telebot.OnText, b.router.Route)
	b.telebot.Handle(telebot.OnCallback, b.router.Route)
	b.telebot.Handle(telebot.OnCheckout, b.router.Wrap(handlers.NewCheckoutHandler(b.deps.Handlers)))
	b.telebot.Handle(telebot.OnPayment, b.router.Wrap(handlers.NewPaymentHandler(b.deps.Handlers)))
}
