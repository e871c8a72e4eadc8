package handlers

import (
	"context"
	"log/slog"

	telebot "gopkg.in/telebot.v3"
)

// NewStartHandler greets the user with their subscription state and re-registers their
// reminder timers.
func NewStartHandler(d Deps) Handler {
	return func(c telebot.Context) error {
		if c.Sender() == nil {
			d.log().Warn("start handler invoked without sender")
			return nil
		}

		ctx := context.Background()
		u, err := d.currentUser(ctx, c)
		if err != nil {
			return err
		}

		if d.Reminders != nil {
			if err := d.Reminders.RescheduleUser(ctx, u.ID, userTZ(u)); err != nil {
				d.log().Error("reschedule reminders on start failed", slog.Int64("user_id", u.ID), slog.Any("error", err))
			}
		}

		return c.Send(subscriptionText(d.Texts, "start", u, d.now()))
	}
}

// NewHelpHandler lists the available commands.
func NewHelpHandler(d Deps) Handler {
	return func(c telebot.Context) error {
		return c.Send(d.Texts.T("help"))
	}
}

// NewStatusHandler reports the subscription end and the time left, or the free allowance.
func NewStatusHandler(d Deps) Handler {
	return func(c telebot.Context) error {
		if c.Sender() == nil {
			return nil
		}

		u, err := d.currentUser(context.Background(), c)
		if err != nil {
			return err
		}
		return c.Send(subscriptionText(d.Texts, "status", u, d.now()))
	}
}
