package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// Result captures the outcome of a rate-limit evaluation.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter describes a rate-limiting strategy interface.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// Sweeper drops state for keys idle longer than maxAge and reports how many went.
type Sweeper interface {
	Cleanup(maxAge time.Duration) int
}

// ErrLimitExceeded indicates the rate limit has been reached for the key.
var ErrLimitExceeded = errors.New("rate limit exceeded")

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
