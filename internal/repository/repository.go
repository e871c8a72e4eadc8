// Package repository implements sqlx-backed persistence for users, messages, payments and reminders.
package repository

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func componentLogger(log *slog.Logger, component string) *slog.Logger {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return log.With(slog.String("component", component))
}
