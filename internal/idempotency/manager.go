// Package idempotency makes sure a Telegram update is handled at most once, even when
// the platform redelivers it or a user taps the same button twice.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrDuplicate means the key already completed successfully.
	ErrDuplicate = errors.New("update already handled")
	// ErrInProgress means another worker holds the key right now.
	ErrInProgress = errors.New("update is being handled")
)

const defaultLockTTL = 2 * time.Minute

type Operation func(ctx context.Context) error

type Manager interface {
	// Execute runs fn unless key was already completed or is running. A failed fn leaves
	// no record, so a retry of the same update runs again.
	Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) error
}

type manager struct {
	store   Store
	lockTTL time.Duration
	now     func() time.Time
	log     *slog.Logger
}

func NewManager(store Store, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		store:   store,
		lockTTL: defaultLockTTL,
		now:     time.Now,
		log:     log.With(slog.String("component", "idempotency")),
	}
}

func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) error {
	if fn == nil {
		return errors.New("operation fn cannot be nil")
	}

	locked, err := m.store.Lock(ctx, key, m.lockTTL)
	if err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}

	if !locked {
		record, err := m.store.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}
		if record != nil && record.Status == StatusCompleted {
			return ErrDuplicate
		}
		return ErrInProgress
	}
	defer func() {
		if err := m.store.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
			m.log.Warn("lock release failed", slog.String("key", key), slog.Any("error", err))
		}
	}()

	if record, err := m.store.Get(ctx, key); err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	} else if record != nil && record.Status == StatusCompleted {
		return ErrDuplicate
	}

	if err := fn(ctx); err != nil {
		return err
	}

	record := &Record{Status: StatusCompleted, CompletedAt: m.now().UTC()}
	if err := m.store.Set(ctx, key, record, ttl); err != nil {
		m.log.Error("failed to store completion", slog.String("key", key), slog.Any("error", err))
	}
	return nil
}
