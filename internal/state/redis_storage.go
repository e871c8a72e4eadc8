package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	userStateKeyPattern  = "alina:fsm:%d"
	userStateScanPattern = "alina:fsm:[0-9]*"
	scanBatch            = 100

	// DefaultStateTTL bounds how long an unanswered prompt keeps waiting for input.
	DefaultStateTTL = 15 * time.Minute
)

// RedisStorage persists awaiting-input states in Redis with a TTL.
type RedisStorage struct {
	client *redis.Client
	log    *slog.Logger
	ttl    time.Duration
}

// NewRedisStorage initializes a Redis-backed Storage implementation.
func NewRedisStorage(client *redis.Client, log *slog.Logger, ttl time.Duration) Storage {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}

	return &RedisStorage{
		client: client,
		log:    log.With(slog.String("component", "fsm_storage")),
		ttl:    ttl,
	}
}

// GetState returns the stored prompt or ErrStateNotFound. A record that no longer decodes
// is deleted and reported as not found, so the user falls back to idle.
func (s *RedisStorage) GetState(ctx context.Context, userID int64) (*UserState, error) {
	key := redisUserStateKey(userID)

	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		s.log.Error("failed to get state from redis", slog.Int64("user_id", userID), slog.Any("error", err))
		return nil, fmt.Errorf("get state %d: %w", userID, err)
	}

	st, err := decodeState(data)
	if err != nil {
		s.log.Warn("dropping undecodable user state", slog.Int64("user_id", userID), slog.Any("error", err))
		if delErr := s.client.Del(ctx, key).Err(); delErr != nil {
			s.log.Error("failed to drop user state", slog.Int64("user_id", userID), slog.Any("error", delErr))
		}
		return nil, ErrStateNotFound
	}

	return st, nil
}

// SetState saves the provided user state; it expires after the storage TTL.
func (s *RedisStorage) SetState(ctx context.Context, userID int64, state *UserState) error {
	state.UserID = userID
	state.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state %d: %w", userID, err)
	}

	if err := s.client.Set(ctx, redisUserStateKey(userID), data, s.ttl).Err(); err != nil {
		s.log.Error("failed to save state in redis",
			slog.Int64("user_id", userID),
			slog.String("state", string(state.CurrentState)),
			slog.Any("error", err),
		)
		return fmt.Errorf("save state %d: %w", userID, err)
	}

	return nil
}

// ClearState removes the stored state for the given user.
func (s *RedisStorage) ClearState(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, redisUserStateKey(userID)).Err(); err != nil {
		s.log.Error("failed to clear user state", slog.Int64("user_id", userID), slog.Any("error", err))
		return fmt.Errorf("clear state %d: %w", userID, err)
	}

	return nil
}

// GetAllStates returns every open prompt. Keys that expire or fail to decode mid-scan are skipped.
func (s *RedisStorage) GetAllStates(ctx context.Context) ([]*UserState, error) {
	var (
		cursor uint64
		result []*UserState
	)

	for {
		keys, next, err := s.client.Scan(ctx, cursor, userStateScanPattern, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("scan states: %w", err)
		}

		if len(keys) > 0 {
			values, err := s.client.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, fmt.Errorf("load states: %w", err)
			}
			for i, v := range values {
				raw, ok := v.(string)
				if !ok {
					continue
				}
				st, err := decodeState([]byte(raw))
				if err != nil {
					s.log.Debug("skipping undecodable user state", slog.String("key", keys[i]), slog.Any("error", err))
					continue
				}
				result = append(result, st)
			}
		}

		cursor = next
		if cursor == 0 {
			return result, nil
		}
	}
}

func decodeState(data []byte) (*UserState, error) {
	var st UserState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func redisUserStateKey(userID int64) string {
	return fmt.Sprintf(userStateKeyPattern, userID)
}
