package logger

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

const mask = "***"

// sensitiveKeys are compared case-insensitively.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"secret":        {},
	"api_key":       {},
	"authorization": {},
	"signature":     {},
	"ds_signature":  {},
	"merchant_key":  {},
	"dsn":           {},
}

// botTokenPattern matches Telegram bot tokens, which leak into transport errors via the API URL.
var botTokenPattern = regexp.MustCompile(`\d{6,}:[A-Za-z0-9_-]{30,}`)

// MaskingHandler hides secrets in attributes, including ones bound with Logger.With.
type MaskingHandler struct {
	next slog.Handler
}

func NewMaskingHandler(next slog.Handler) *MaskingHandler {
	return &MaskingHandler{next: next}
}

func (h *MaskingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *MaskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = maskAttr(a)
	}
	return &MaskingHandler{next: h.next.WithAttrs(masked)}
}

func (h *MaskingHandler) WithGroup(name string) slog.Handler {
	return &MaskingHandler{next: h.next.WithGroup(name)}
}

func (h *MaskingHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, botTokenPattern.ReplaceAllString(record.Message, mask), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(maskAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func maskAttr(a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, mask)
	}

	switch v := a.Value.Resolve(); v.Kind() {
	case slog.KindGroup:
		members := v.Group()
		masked := make([]any, len(members))
		for i, m := range members {
			masked[i] = maskAttr(m)
		}
		return slog.Group(a.Key, masked...)
	case slog.KindString:
		if s := v.String(); botTokenPattern.MatchString(s) {
			return slog.String(a.Key, botTokenPattern.ReplaceAllString(s, mask))
		}
	case slog.KindAny:
		if err, ok := v.Any().(error); ok && botTokenPattern.MatchString(err.Error()) {
			return slog.String(a.Key, botTokenPattern.ReplaceAllString(err.Error(), mask))
		}
	}
	return a
}
