package handlers

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/bot/keyboard"
)

// Handler processes bot commands.
type Handler func(c telebot.Context) error

// CallbackHandler processes a decoded inline callback.
type CallbackHandler func(c telebot.Context, cb keyboard.Callback) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler
