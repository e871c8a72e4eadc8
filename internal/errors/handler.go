package errors

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/alina-bot/pkg/logger"
	"github.com/Proton-105/alina-bot/pkg/metrics"
)

const defaultUserMessage = "Ой, что-то пошло не так. Попробуй чуть позже 🌿"

type userKey struct{}

// WithUser tags ctx with the Telegram user an error happened for.
func WithUser(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFromContext returns the user set by WithUser.
func UserFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(userKey{}).(int64)
	return id, ok
}

// Handler logs errors, reports severe ones to Sentry and picks the text shown to the user.
type Handler struct {
	log           *slog.Logger
	sentryEnabled bool
	fallback      string
}

func NewHandler(log *slog.Logger, sentryEnabled bool) *Handler {
	return &Handler{
		log:           log,
		sentryEnabled: sentryEnabled,
	}
}

// WithFallback returns a copy of h that answers msg for errors without their own user message.
func (h *Handler) WithFallback(msg string) *Handler {
	if h == nil {
		return nil
	}
	cp := *h
	cp.fallback = msg
	return &cp
}

// Handle returns the in-character message for err and whether retrying may help.
// Plain errors count as high severity.
func (h *Handler) Handle(ctx context.Context, err error) (string, bool) {
	if err == nil {
		return "", false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	log := h.log
	if log == nil {
		log = slog.Default()
	}

	desc := describe(err)
	if desc.userMessage == "" {
		desc.userMessage = defaultUserMessage
		if h.fallback != "" {
			desc.userMessage = h.fallback
		}
	}

	attrs := []any{
		slog.String("code", desc.code),
		slog.String("message", err.Error()),
		slog.String("severity", string(desc.severity)),
		slog.Bool("retryable", desc.retryable),
	}
	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}
	userID, hasUser := UserFromContext(ctx)
	if hasUser {
		attrs = append(attrs, slog.Int64("user_id", userID))
	}

	if desc.known {
		log.ErrorContext(ctx, "application error", attrs...)
	} else {
		log.ErrorContext(ctx, "unknown error", attrs...)
	}
	metrics.RecordError(desc.code, string(desc.severity))

	if h.sentryEnabled && (desc.severity == SeverityCritical || desc.severity == SeverityHigh) {
		h.sendToSentry(err, desc, userID, hasUser)
	}

	return desc.userMessage, desc.retryable
}

type description struct {
	known       bool
	code        string
	severity    Severity
	retryable   bool
	userMessage string
}

func describe(err error) description {
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr == nil {
		return description{code: "unknown", severity: SeverityHigh}
	}

	return description{
		known:       true,
		code:        appErr.Code,
		severity:    appErr.Severity,
		retryable:   appErr.Retryable,
		userMessage: appErr.UserMessage,
	}
}

func (h *Handler) sendToSentry(err error, desc description, userID int64, hasUser bool) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("code", desc.code)
		if desc.severity != "" {
			scope.SetTag("severity", string(desc.severity))
		}
		if hasUser {
			scope.SetUser(sentry.User{ID: strconv.FormatInt(userID, 10)})
		}

		sentry.CaptureException(err)
	})
}
