package middleware

import (
	"fmt"
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/bot/handlers"
	"github.com/Proton-105/alina-bot/internal/bot/keyboard"
	"github.com/Proton-105/alina-bot/pkg/metrics"
)

// Metrics measures execution time and status for bot handlers, reporting them to Prometheus.
func Metrics(next handlers.Handler) handlers.Handler {
	if next == nil {
		return nil
	}

	return func(c telebot.Context) error {
		start := time.Now()
		err := next(c)

		status := "ok"
		if err != nil {
			status = "error"
		}

		metrics.RecordCommand(ActionName(c), status, time.Since(start))

		return err
	}
}

// ActionName is a low-cardinality label for an update: the command, the callback kind,
// or "text".
func ActionName(c telebot.Context) string {
	if c == nil {
		return "unknown"
	}

	if cb := c.Callback(); cb != nil {
		parsed, err := keyboard.ParseCallback(cb.Data)
		if err != nil {
			return "callback:unknown"
		}
		name := fmt.Sprintf("%T", parsed)
		return "callback:" + strings.ToLower(strings.TrimPrefix(name, "keyboard."))
	}

	if c.PreCheckoutQuery() != nil {
		return "checkout"
	}
	if msg := c.Message(); msg != nil && msg.Payment != nil {
		return "payment"
	}

	text := c.Text()
	switch {
	case strings.HasPrefix(text, "/"):
		command, _, _ := strings.Cut(text, " ")
		command, _, _ = strings.Cut(command, "@")
		return command
	case text != "":
		return "text"
	}

	return "unknown"
}
