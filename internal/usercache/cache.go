// Package usercache keeps short-lived JSON copies of user profiles in Redis.
package usercache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Proton-105/alina-bot/internal/domain"
	"github.com/Proton-105/alina-bot/pkg/redis"
)

// DefaultTTL is how long a cached profile stays valid.
const DefaultTTL = 5 * time.Minute

// Cache provides Redis-backed caching for user profiles.
type Cache struct {
	kv  redis.KV
	ttl time.Duration
}

// NewCache constructs a user cache; a nil kv disables caching.
func NewCache(kv redis.KV, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{kv: kv, ttl: ttl}
}

// Get fetches a cached user profile; a miss returns nil without error.
func (c *Cache) Get(ctx context.Context, userID int64) (*domain.User, error) {
	if c == nil || c.kv == nil {
		return nil, nil
	}

	data, err := c.kv.Get(ctx, cacheKey(userID))
	if err != nil {
		if redis.IsNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached user: %w", err)
	}

	var user domain.User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil, fmt.Errorf("decode cached user: %w", err)
	}

	return &user, nil
}

// Set stores the user profile for the cache TTL.
func (c *Cache) Set(ctx context.Context, user *domain.User) error {
	if c == nil || c.kv == nil || user == nil {
		return nil
	}

	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user for cache: %w", err)
	}

	if err := c.kv.Set(ctx, cacheKey(user.ID), payload, c.ttl); err != nil {
		return fmt.Errorf("set cached user: %w", err)
	}

	return nil
}

// Invalidate removes the cached profile entry if it exists.
func (c *Cache) Invalidate(ctx context.Context, userID int64) error {
	if c == nil || c.kv == nil {
		return nil
	}

	if err := c.kv.Delete(ctx, cacheKey(userID)); err != nil {
		return fmt.Errorf("delete cached user: %w", err)
	}

	return nil
}

func cacheKey(userID int64) string {
	return fmt.Sprintf("alina:user:%d", userID)
}
