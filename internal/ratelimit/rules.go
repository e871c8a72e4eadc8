package ratelimit

import (
	"time"

	"github.com/Proton-105/alina-bot/pkg/config"
)

// GlobalKey is the limiter key shared by every user.
const GlobalKey = "global"

// Rules encapsulates configured rate limits and helper methods.
type Rules struct {
	config    config.RateLimitConfig
	whitelist map[int64]struct{}
}

// NewRules builds rules from configuration. Whitelisted users are never limited.
func NewRules(cfg config.RateLimitConfig, whitelist []int64) *Rules {
	ids := make(map[int64]struct{}, len(whitelist))
	for _, id := range whitelist {
		ids[id] = struct{}{}
	}
	return &Rules{config: cfg, whitelist: ids}
}

// IsWhitelisted returns true if the userID bypasses rate limits.
func (r *Rules) IsWhitelisted(userID int64) bool {
	_, ok := r.whitelist[userID]
	return ok
}

// MessageLimit is the per-user allowance for free-text messages.
func (r *Rules) MessageLimit() (int, time.Duration) {
	return r.config.MessageLimit, r.config.MessageWindow
}

// GlobalLimit is the allowance shared by all users together.
func (r *Rules) GlobalLimit() (int, time.Duration) {
	return r.config.GlobalLimit, r.config.GlobalWindow
}

// UserKey is the limiter key of one user.
func UserKey(userID int64) string {
	return "user:" + itoa(userID)
}
