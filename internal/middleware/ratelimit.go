package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/bot/handlers"
	"github.com/Proton-105/alina-bot/internal/ratelimit"
)

// RateLimitMiddleware drops free-text messages that arrive faster than the configured
// allowance. The user gets a short notice and the message is not queued.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	rules   *ratelimit.Rules
	notice  string
	log     *slog.Logger
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, notice string, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &RateLimitMiddleware{
		limiter: limiter,
		rules:   rules,
		notice:  notice,
		log:     log.With(slog.String("component", "ratelimit")),
	}
}

// Wrap returns a handler middleware that enforces the per-user and global limits.
func (m *RateLimitMiddleware) Wrap(next handlers.Handler) handlers.Handler {
	return func(c telebot.Context) error {
		if m.limiter == nil || m.rules == nil {
			return next(c)
		}

		sender := c.Sender()
		if sender == nil || m.rules.IsWhitelisted(sender.ID) {
			return next(c)
		}

		ctx := context.Background()

		limit, window := m.rules.MessageLimit()
		if !m.allow(ctx, ratelimit.UserKey(sender.ID), limit, window) {
			m.log.Debug("message dropped", slog.Int64("user_id", sender.ID))
			return c.Send(m.notice)
		}

		limit, window = m.rules.GlobalLimit()
		if !m.allow(ctx, ratelimit.GlobalKey, limit, window) {
			m.log.Warn("global message limit reached", slog.Int64("user_id", sender.ID))
			return c.Send(m.notice)
		}

		return next(c)
	}
}

// allow fails open: a limiter error lets the message through.
func (m *RateLimitMiddleware) allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	result, err := m.limiter.Check(ctx, key, limit, window)
	switch {
	case errors.Is(err, ratelimit.ErrLimitExceeded):
		return false
	case err != nil:
		m.log.Warn("rate limiter error", slog.String("key", key), slog.Any("error", err))
		return true
	default:
		return result == nil || result.Allowed
	}
}
