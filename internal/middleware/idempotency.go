package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/bot/handlers"
	"github.com/Proton-105/alina-bot/internal/idempotency"
)

// DedupeTTL is how long a handled update is remembered.
const DedupeTTL = 24 * time.Hour

// Idempotency ensures handlers execute at most once per Telegram update key.
func Idempotency(manager idempotency.Manager, log *slog.Logger) handlers.Middleware {
	if manager == nil {
		return func(next handlers.Handler) handlers.Handler {
			return next
		}
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			key := UpdateKey(c)
			if key == "" {
				return next(c)
			}

			err := manager.Execute(context.Background(), key, DedupeTTL, func(context.Context) error {
				return next(c)
			})
			switch {
			case errors.Is(err, idempotency.ErrDuplicate), errors.Is(err, idempotency.ErrInProgress):
				log.Debug("duplicate update skipped", slog.String("key", key), slog.Any("reason", err))
				if c.Callback() != nil {
					return c.Respond()
				}
				return nil
			default:
				return err
			}
		}
	}
}

// UpdateKey derives the dedupe key of an update, or "" when it has none.
func UpdateKey(c telebot.Context) string {
	if c == nil {
		return ""
	}

	if cb := c.Callback(); cb != nil {
		if cb.ID != "" {
			return idempotency.CallbackKey(cb.ID)
		}
		return ""
	}

	if msg := c.Message(); msg != nil && msg.ID != 0 {
		if msg.Payment != nil && msg.Payment.TelegramChargeID != "" {
			return idempotency.PaymentKey(msg.Payment.TelegramChargeID)
		}

		chatID := int64(0)
		if msg.Chat != nil {
			chatID = msg.Chat.ID
		}
		return idempotency.MessageKey(chatID, msg.ID)
	}

	return ""
}
