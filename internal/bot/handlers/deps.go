package handlers

import (
	"context"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/bot/keyboard"
	"github.com/Proton-105/alina-bot/internal/chat"
	"github.com/Proton-105/alina-bot/internal/domain"
	"github.com/Proton-105/alina-bot/internal/i18n"
	"github.com/Proton-105/alina-bot/internal/payment"
	"github.com/Proton-105/alina-bot/internal/persona"
	"github.com/Proton-105/alina-bot/internal/scheduler"
	"github.com/Proton-105/alina-bot/internal/state"
	"github.com/Proton-105/alina-bot/pkg/config"
)

// UserKey is the context key under which the auth middleware stores the *domain.User.
const UserKey = "user"

// Users is the profile store used by the handlers.
type Users interface {
	GetOrCreate(ctx context.Context, telegramUser *telebot.User) (*domain.User, error)
	SetTimezone(ctx context.Context, userID int64, tz string) error
}

// Conversation produces replies to free text and mood buttons.
type Conversation interface {
	Reply(ctx context.Context, in chat.Inbound) (*chat.Outcome, error)
	ApplyProfilePhrase(ctx context.Context, userID int64, text string) (chat.ProfilePhrase, error)
	MoodExchange(ctx context.Context, userID int64, label string) (string, bool, error)
}

// Reminders manages a user's reminder timers.
type Reminders interface {
	Add(ctx context.Context, userID int64, tz string, rtype domain.ReminderType, timeLocal string) (*domain.Reminder, error)
	Toggle(ctx context.Context, userID int64, tz string, reminderID int64) (*domain.Reminder, error)
	Delete(ctx context.Context, userID, reminderID int64) error
	Entries(ctx context.Context, userID int64) ([]scheduler.Entry, error)
	RescheduleUser(ctx context.Context, userID int64, tz string) error
	Once(userID int64, at time.Time, text string) error
}

// StarsPayments issues and settles Telegram Stars invoices.
type StarsPayments interface {
	Invoice(ctx context.Context, userID int64, planID payment.PlanID) (*telebot.Invoice, error)
	PreCheckout(ctx context.Context, userID int64, payload, currency string, total int) error
	Complete(ctx context.Context, userID int64, payload, chargeID string) (*payment.Activation, error)
}

// CardPayments starts a card checkout on the external gateway.
type CardPayments interface {
	Enabled() bool
	StartURL(ctx context.Context, userID int64) (string, error)
}

// Deps carries the collaborators shared by the handlers.
type Deps struct {
	Users     Users
	Chat      Conversation
	Reminders Reminders
	Stars     StarsPayments
	Card      CardPayments
	Plans     payment.Plans
	FSM       state.StateMachine
	Keyboards *keyboard.Builder
	Texts     i18n.Translator
	Typing    config.TypingConfig
	Debug     config.DebugConfig
	Rand      persona.Rand
	Now       func() time.Time
	Log       *slog.Logger
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) log() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

// currentUser returns the profile loaded by the auth middleware, loading it when absent.
func (d Deps) currentUser(ctx context.Context, c telebot.Context) (*domain.User, error) {
	if u, ok := c.Get(UserKey).(*domain.User); ok && u != nil {
		return u, nil
	}
	return d.Users.GetOrCreate(ctx, c.Sender())
}

// simulateTyping shows the typing action and waits roughly as long as a person would type text.
func (d Deps) simulateTyping(c telebot.Context, text string) {
	if !d.Typing.Enabled {
		return
	}
	if err := c.Notify(telebot.Typing); err != nil {
		d.log().Debug("typing action failed", slog.Any("error", err))
	}
	rnd := d.Rand
	if rnd == nil {
		rnd = chat.NewRand(time.Now().UnixNano())
	}
	time.Sleep(chat.TypingDelay(text, rnd, d.Typing.MaxDelay))
}

func userTZ(u *domain.User) string {
	if u == nil || u.TZ == "" {
		return domain.DefaultTimezone
	}
	return u.TZ
}
