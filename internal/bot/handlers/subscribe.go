package handlers

import (
	"context"
	"errors"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/bot/keyboard"
	apperrors "github.com/Proton-105/alina-bot/internal/errors"
	"github.com/Proton-105/alina-bot/internal/i18n"
	"github.com/Proton-105/alina-bot/internal/payment"
)

// NewSubscribeHandler offers the Stars plans and, when configured, card payment.
func NewSubscribeHandler(d Deps) Handler {
	return func(c telebot.Context) error {
		markup, err := d.Keyboards.Plans(d.Plans.Ordered(), d.cardEnabled())
		if err != nil {
			return err
		}
		return c.Send(d.Texts.T("subscribe.prompt"), markup)
	}
}

func (d Deps) cardEnabled() bool {
	return d.Card != nil && d.Card.Enabled()
}

func handlePayStars(d Deps, c telebot.Context, cb keyboard.PayStars) error {
	userID := c.Sender().ID

	invoice, err := d.Stars.Invoice(context.Background(), userID, cb.Plan)
	if err != nil {
		if errors.Is(err, payment.ErrUnknownPlan) {
			return respondUnknown(d, c)
		}
		d.log().Error("stars invoice failed", slog.Int64("user_id", userID), slog.String("plan", string(cb.Plan)), slog.Any("error", err))
		_ = c.Respond()
		return c.Send(d.Texts.T("payment.invoice_failed"))
	}

	if err := c.Respond(); err != nil {
		d.log().Debug("answer callback failed", slog.Any("error", err))
	}
	return c.Send(invoice)
}

func handlePayCard(d Deps, c telebot.Context, cb keyboard.PayCard) error {
	userID := c.Sender().ID
	if err := c.Respond(); err != nil {
		d.log().Debug("answer callback failed", slog.Any("error", err))
	}

	if !d.cardEnabled() {
		return c.Send(d.Texts.T("subscribe.card_unavailable"))
	}

	url, err := d.Card.StartURL(context.Background(), userID)
	if err != nil {
		d.log().Error("card checkout link failed", slog.Int64("user_id", userID), slog.String("plan", string(cb.Plan)), slog.Any("error", err))
		return c.Send(d.Texts.T("subscribe.card_unavailable"))
	}

	markup, err := d.Keyboards.CardLink(url)
	if err != nil {
		return err
	}
	return c.Send(d.Texts.T("subscribe.card_link"), markup)
}

// NewCheckoutHandler answers the pre-checkout query of a Stars invoice.
func NewCheckoutHandler(d Deps) Handler {
	return func(c telebot.Context) error {
		q := c.PreCheckoutQuery()
		if q == nil || q.Sender == nil {
			return nil
		}

		err := d.Stars.PreCheckout(context.Background(), q.Sender.ID, q.Payload, q.Currency, q.Total)
		if err != nil {
			d.log().Warn("pre-checkout rejected",
				slog.Int64("user_id", q.Sender.ID),
				slog.String("payload", q.Payload),
				slog.Any("error", err),
			)
			return c.Accept(d.Texts.T("payment.precheckout_failed"))
		}
		return c.Accept()
	}
}

// NewPaymentHandler settles a successful Stars payment and thanks the user.
func NewPaymentHandler(d Deps) Handler {
	return func(c telebot.Context) error {
		msg := c.Message()
		if msg == nil || msg.Payment == nil || c.Sender() == nil {
			return nil
		}
		p := msg.Payment

		act, err := d.Stars.Complete(context.Background(), c.Sender().ID, p.Payload, p.TelegramChargeID)
		if err != nil {
			var appErr *apperrors.AppError
			if !errors.As(err, &appErr) {
				err = apperrors.NewPaymentError("stars", err)
			}
			return err
		}
		if act.Duplicate {
			return nil
		}

		return c.Send(d.Texts.Tf("payment.thanks", i18n.Vars{"until": FormatDate(d.Texts, act.Until)}))
	}
}
