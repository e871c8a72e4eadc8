package handlers

import (
	"context"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/state"
)

// NewCancelHandler closes any open input prompt.
func NewCancelHandler(d Deps) Handler {
	return func(c telebot.Context) error {
		if c.Sender() == nil {
			d.log().Warn("cancel handler invoked without sender context")
			return nil
		}

		ctx := context.Background()
		userID := c.Sender().ID

		current, err := d.FSM.Current(ctx, userID)
		if err != nil {
			return err
		}
		if current == state.StateIdle {
			return c.Send(d.Texts.T("cancel.idle"))
		}

		if err := d.FSM.ClearState(ctx, userID); err != nil {
			d.log().Error("failed to clear user state", slog.Int64("user_id", userID), slog.Any("error", err))
			return err
		}
		return c.Send(d.Texts.T("cancel.done"))
	}
}

// NewResetHandler clears a broken input flow and lets next handle the message.
func NewResetHandler(d Deps, next Handler) Handler {
	return func(c telebot.Context) error {
		if c.Sender() != nil {
			if err := d.FSM.ClearState(context.Background(), c.Sender().ID); err != nil {
				return err
			}
		}
		return next(c)
	}
}
