package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"

	keyPrefix = "alina:idempotency:"
)

// Record marks a key as handled.
type Record struct {
	Status      string
	CompletedAt time.Time
}

// Store keeps per-update locks and completion records.
type Store interface {
	Lock(ctx context.Context, key string, lockTTL time.Duration) (bool, error)
	Get(ctx context.Context, key string) (*Record, error)
	Set(ctx context.Context, key string, record *Record, ttl time.Duration) error
	ReleaseLock(ctx context.Context, key string) error
}

type RedisStore struct {
	client *redis.Client
	log    *slog.Logger
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStore{client: client, log: log.With(slog.String("component", "idempotency_store"))}
}

// Lock claims key for lockTTL. It reports false when another handler holds it.
func (s *RedisStore) Lock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	acquired, err := s.client.SetNX(ctx, lockKey(key), StatusProcessing, lockTTL).Result()
	if err != nil {
		s.log.Error("failed to acquire idempotency lock", slog.String("key", key), slog.Any("error", err))
		return false, err
	}
	return acquired, nil
}

// storedRecord is the hash layout of a Record.
type storedRecord struct {
	Status      string `redis:"status"`
	CompletedAt int64  `redis:"completed_at_ms"`
}

// Get returns nil without error when key was never completed.
func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	cmd := s.client.HGetAll(ctx, recordKey(key))
	if err := cmd.Err(); err != nil {
		s.log.Error("failed to fetch idempotency record", slog.String("key", key), slog.Any("error", err))
		return nil, err
	}
	if len(cmd.Val()) == 0 {
		return nil, nil
	}

	var stored storedRecord
	if err := cmd.Scan(&stored); err != nil {
		return nil, err
	}
	return &Record{Status: stored.Status, CompletedAt: time.UnixMilli(stored.CompletedAt).UTC()}, nil
}

// Set writes the record and its TTL in one transaction.
func (s *RedisStore) Set(ctx context.Context, key string, record *Record, ttl time.Duration) error {
	if record == nil {
		return nil
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, recordKey(key), storedRecord{Status: record.Status, CompletedAt: record.CompletedAt.UnixMilli()})
		pipe.Expire(ctx, recordKey(key), ttl)
		return nil
	})
	if err != nil {
		s.log.Error("failed to store idempotency record", slog.String("key", key), slog.Any("error", err))
	}
	return err
}

func (s *RedisStore) ReleaseLock(ctx context.Context, key string) error {
	return s.client.Del(ctx, lockKey(key)).Err()
}

func recordKey(key string) string { return keyPrefix + key }

func lockKey(key string) string { return keyPrefix + key + ":lock" }
