package handlers

import (
	"context"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/bot/keyboard"
	"github.com/Proton-105/alina-bot/internal/i18n"
)

// NewMoodHandler sends the mood keyboard.
func NewMoodHandler(d Deps) Handler {
	return func(c telebot.Context) error {
		markup, err := d.Keyboards.Mood()
		if err != nil {
			return err
		}
		return c.Send(d.Texts.T("mood.prompt"), markup)
	}
}

func handleMood(d Deps, c telebot.Context, cb keyboard.Mood) error {
	sender := c.Sender()
	answer, ok, err := d.Chat.MoodExchange(context.Background(), sender.ID, cb.Label)
	if err != nil {
		return err
	}
	if !ok {
		return respondUnknown(d, c)
	}

	if err := c.Respond(); err != nil {
		d.log().Debug("answer callback failed", slog.Any("error", err))
	}
	chosen := d.Texts.Tf("mood.chosen", i18n.Vars{"label": d.Texts.T("mood.labels." + cb.Label)})
	if err := c.Edit(chosen); err != nil {
		d.log().Warn("edit mood message failed", slog.Int64("user_id", sender.ID), slog.Any("error", err))
	}

	d.simulateTyping(c, answer)
	return c.Send(answer)
}
