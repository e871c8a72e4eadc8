package bot

import (
	"context"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/bot/handlers"
	"github.com/Proton-105/alina-bot/internal/bot/keyboard"
	"github.com/Proton-105/alina-bot/internal/i18n"
	"github.com/Proton-105/alina-bot/internal/payment"
)

// MessageSender is the part of *telebot.Bot the notifier needs.
type MessageSender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Notifier sends messages the user did not ask for: reminders, renewal nudges and card
// payment confirmations.
type Notifier struct {
	api       MessageSender
	texts     i18n.Translator
	keyboards *keyboard.Builder
	plans     payment.Plans
	log       *slog.Logger
}

// NewNotifier returns a Notifier sending through api.
func NewNotifier(api MessageSender, texts i18n.Translator, keyboards *keyboard.Builder, plans payment.Plans, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		api:       api,
		texts:     texts,
		keyboards: keyboards,
		plans:     plans,
		log:       log.With(slog.String("component", "notifier")),
	}
}

// SendText delivers a plain message.
func (n *Notifier) SendText(_ context.Context, userID int64, text string) error {
	_, err := n.api.Send(telebot.ChatID(userID), text)
	return err
}

// SendRenewalNudge offers the plans shortly before a subscription ends.
func (n *Notifier) SendRenewalNudge(_ context.Context, userID int64, until time.Time) error {
	markup, err := n.keyboards.Renewal(n.plans.Ordered())
	if err != nil {
		return err
	}

	n.log.Info("sending renewal nudge", slog.Int64("user_id", userID), slog.Time("until", until))
	_, err = n.api.Send(telebot.ChatID(userID), n.texts.T("renewal.nudge"), markup)
	return err
}

// NotifyPaid confirms a card payment settled by the gateway webhook.
func (n *Notifier) NotifyPaid(_ context.Context, act *payment.Activation) error {
	if act == nil || act.Duplicate {
		return nil
	}
	text := n.texts.Tf("payment.thanks", i18n.Vars{"until": handlers.FormatDate(n.texts, act.Until)})
	_, err := n.api.Send(telebot.ChatID(act.UserID), text)
	return err
}
