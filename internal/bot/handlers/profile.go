package handlers

import (
	"context"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/chat"
	"github.com/Proton-105/alina-bot/internal/domain"
	"github.com/Proton-105/alina-bot/internal/i18n"
)

// NewProfileHandler shows the current style and reply length and how to change them.
func NewProfileHandler(d Deps) Handler {
	return func(c telebot.Context) error {
		if c.Sender() == nil {
			return nil
		}

		u, err := d.currentUser(context.Background(), c)
		if err != nil {
			return err
		}

		style := u.Style
		if style == "" {
			style = domain.StyleGentle
		}
		verbosity := u.Verbosity
		if verbosity == "" {
			verbosity = domain.VerbosityNormal
		}

		return c.Send(d.Texts.Tf("profile.text", i18n.Vars{
			"style":     d.Texts.T("profile.style." + string(style)),
			"verbosity": d.Texts.T("profile.verbosity." + string(verbosity)),
		}))
	}
}

// profileDone confirms the preferences taken from a shortcut phrase.
func profileDone(t i18n.Translator, p chat.ProfilePhrase) string {
	notes := make([]string, 0, 3)
	if p.Name != "" {
		notes = append(notes, t.Tf("profile.note_name", i18n.Vars{"name": p.Name}))
	}
	if p.Style != "" {
		notes = append(notes, t.T("profile.note_style"))
	}
	if p.Verbosity != "" {
		notes = append(notes, t.T("profile.note_verbosity"))
	}
	return t.Tf("profile.done", i18n.Vars{"notes": strings.Join(notes, ", ")})
}
