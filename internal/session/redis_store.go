package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Proton-105/alina-bot/pkg/redis"
)

// RedisStore keeps windows as JSON values with a TTL so state survives restarts.
// Concurrent updates for one user are last-write-wins.
type RedisStore struct {
	kv  redis.KV
	ttl time.Duration
	now func() time.Time
}

func NewRedisStore(kv redis.KV, ttl time.Duration) *RedisStore {
	return &RedisStore{kv: kv, ttl: ttl, now: time.Now}
}

func (s *RedisStore) Observe(ctx context.Context, userID int64, text, topic string) (Observation, error) {
	w, err := s.load(ctx, userID)
	if err != nil {
		return Observation{}, err
	}

	obs := w.observe(text, topic, s.now())
	if err := s.save(ctx, userID, w); err != nil {
		return Observation{}, err
	}
	return obs, nil
}

func (s *RedisStore) MarkReply(ctx context.Context, userID int64, hadEmoji bool) error {
	w, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	w.LastReplyHadEmoji = hadEmoji
	w.UpdatedAt = s.now()
	return s.save(ctx, userID, w)
}

func (s *RedisStore) Get(ctx context.Context, userID int64) (Window, error) {
	w, err := s.load(ctx, userID)
	if err != nil {
		return Window{}, err
	}
	return *w, nil
}

func (s *RedisStore) load(ctx context.Context, userID int64) (*Window, error) {
	raw, err := s.kv.Get(ctx, windowKey(userID))
	if err != nil {
		if redis.IsNil(err) {
			return newWindow(), nil
		}
		return nil, fmt.Errorf("load session window: %w", err)
	}

	w := newWindow()
	if err := json.Unmarshal([]byte(raw), w); err != nil {
		return nil, fmt.Errorf("decode session window: %w", err)
	}
	if len(w.Recent) > WindowSize {
		w.Recent = w.Recent[len(w.Recent)-WindowSize:]
	}
	return w, nil
}

func (s *RedisStore) save(ctx context.Context, userID int64, w *Window) error {
	payload, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode session window: %w", err)
	}
	if err := s.kv.Set(ctx, windowKey(userID), payload, s.ttl); err != nil {
		return fmt.Errorf("save session window: %w", err)
	}
	return nil
}

func windowKey(userID int64) string {
	return fmt.Sprintf("session:%d", userID)
}
