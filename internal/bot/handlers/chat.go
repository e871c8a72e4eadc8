package handlers

import (
	"context"
	"log/slog"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/chat"
)

// NewChatHandler answers free text. Profile shortcuts are applied without calling the model.
func NewChatHandler(d Deps) Handler {
	return func(c telebot.Context) error {
		sender := c.Sender()
		text := strings.TrimSpace(c.Text())
		if sender == nil || text == "" {
			return nil
		}

		ctx := context.Background()

		phrase, err := d.Chat.ApplyProfilePhrase(ctx, sender.ID, text)
		if err != nil {
			return err
		}
		if !phrase.Empty() {
			return c.Send(profileDone(d.Texts, phrase))
		}

		out, err := d.Chat.Reply(ctx, chat.Inbound{Sender: sender, Text: text})
		if err != nil {
			return err
		}

		if out.Kind == chat.OutcomeNoAccess {
			return c.Send(d.Texts.T("chat.no_access"))
		}

		d.log().Debug("reply ready",
			slog.Int64("user_id", sender.ID),
			slog.String("kind", out.Kind.String()),
			slog.Int("length", len(out.Text)),
		)
		d.simulateTyping(c, out.Text)
		return c.Send(out.Text)
	}
}
