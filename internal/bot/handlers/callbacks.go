package handlers

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/bot/keyboard"
)

// NewCallbackHandler dispatches a decoded callback to its handler.
func NewCallbackHandler(d Deps) CallbackHandler {
	return func(c telebot.Context, cb keyboard.Callback) error {
		if c.Sender() == nil {
			return nil
		}

		switch cb := cb.(type) {
		case keyboard.Mood:
			return handleMood(d, c, cb)
		case keyboard.ReminderToggle:
			return handleReminderToggle(d, c, cb)
		case keyboard.ReminderDelete:
			return handleReminderDelete(d, c, cb)
		case keyboard.ReminderAdd:
			return handleReminderAdd(d, c, cb)
		case keyboard.ReminderCustom:
			return handleReminderCustom(d, c)
		case keyboard.PayStars:
			return handlePayStars(d, c, cb)
		case keyboard.PayCard:
			return handlePayCard(d, c, cb)
		default:
			return respondUnknown(d, c)
		}
	}
}

// NewUnknownCallbackHandler answers callback data that does not decode.
func NewUnknownCallbackHandler(d Deps) Handler {
	return func(c telebot.Context) error {
		return respondUnknown(d, c)
	}
}

func respondUnknown(d Deps, c telebot.Context) error {
	return c.Respond(&telebot.CallbackResponse{Text: d.Texts.T("common.unknown_callback")})
}
