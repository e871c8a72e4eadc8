package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	limiterChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alina",
		Subsystem: "ratelimit",
		Name:      "checks_total",
		Help:      "Rate limit decisions by backend (redis, memory) and result.",
	}, []string{"backend", "result"})

	limiterBackendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "alina",
		Subsystem: "ratelimit",
		Name:      "redis_errors_total",
		Help:      "Redis failures that sent a check to the in-memory fallback.",
	})

	limiterDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "alina",
		Subsystem: "ratelimit",
		Name:      "degraded",
		Help:      "1 while the limiter runs on the in-memory fallback.",
	})
)

// AdaptiveLimiter delegates to a primary (Redis) limiter and falls back to
// a stricter in-memory limiter when the primary fails. Rejections come back as
// ErrLimitExceeded together with the result.
type AdaptiveLimiter struct {
	primary  Limiter
	fallback Limiter
	degraded atomic.Bool
	log      *slog.Logger
}

// NewAdaptiveLimiter creates a limiter that adapts between Redis and in-memory backends.
func NewAdaptiveLimiter(primary, fallback Limiter, log *slog.Logger) *AdaptiveLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &AdaptiveLimiter{
		primary:  primary,
		fallback: fallback,
		log:      log.With(slog.String("component", "ratelimit")),
	}
}

// Degraded reports whether the last check ran on the in-memory fallback.
func (a *AdaptiveLimiter) Degraded() bool {
	return a.degraded.Load()
}

// Check evaluates the limit on Redis. While Redis fails, the in-memory limiter answers
// with half the limit.
func (a *AdaptiveLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if a.primary != nil {
		result, err := a.primary.Check(ctx, key, limit, window)
		if err == nil {
			a.setDegraded(false, key, nil)
			return decide("redis", result)
		}
		limiterBackendErrors.Inc()
		a.setDegraded(true, key, err)
	}

	result, err := a.fallback.Check(ctx, key, max(limit/2, 1), window)
	if err != nil && !errors.Is(err, ErrLimitExceeded) {
		return result, err
	}
	return decide("memory", result)
}

func (a *AdaptiveLimiter) setDegraded(on bool, key string, cause error) {
	if a.degraded.Swap(on) == on {
		return
	}
	if on {
		limiterDegraded.Set(1)
		a.log.Warn("redis limiter failed, falling back to in-memory", slog.String("key", key), slog.Any("error", cause))
		return
	}
	limiterDegraded.Set(0)
	a.log.Info("redis limiter recovered")
}

func decide(backend string, result *Result) (*Result, error) {
	if !result.Allowed {
		limiterChecks.WithLabelValues(backend, "rejected").Inc()
		return result, ErrLimitExceeded
	}
	limiterChecks.WithLabelValues(backend, "allowed").Inc()
	return result, nil
}
