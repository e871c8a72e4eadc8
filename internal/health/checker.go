// Package health aggregates readiness checks for the database, Redis and Telegram.
package health

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gopkg.in/telebot.v3"
)

const (
	defaultCheckTimeout = 3 * time.Second
	statusOK            = "OK"
)

// Checkable represents a component that can report its health status.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a function to Checkable.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// Checker runs named readiness checks in parallel, each under its own timeout.
type Checker struct {
	log     *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	checks map[string]Checkable
}

func NewChecker(log *slog.Logger) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		log:     log.With(slog.String("component", "health")),
		timeout: defaultCheckTimeout,
		checks:  make(map[string]Checkable),
	}
}

// AddCheck registers check under name, replacing an earlier one. Empty names and nil
// checks are ignored.
func (c *Checker) AddCheck(name string, check Checkable) {
	if name == "" || check == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Names lists registered components in order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check returns "OK" or the error text per component, and whether all of them passed.
func (c *Checker) Check(ctx context.Context) (map[string]string, bool) {
	names := c.Names()
	statuses := make([]string, len(names))

	c.mu.RLock()
	checks := make([]Checkable, len(names))
	for i, name := range names {
		checks[i] = c.checks[name]
	}
	c.mu.RUnlock()

	var g errgroup.Group
	for i := range checks {
		g.Go(func() error {
			statuses[i] = c.run(ctx, names[i], checks[i])
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[string]string, len(names))
	healthy := true
	for i, name := range names {
		results[name] = statuses[i]
		healthy = healthy && statuses[i] == statusOK
	}
	return results, healthy
}

func (c *Checker) run(ctx context.Context, name string, check Checkable) string {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	if err := check.HealthCheck(ctx); err != nil {
		c.log.Error("health check failed",
			slog.String("check", name),
			slog.Duration("took", time.Since(start)),
			slog.Any("error", err),
		)
		return err.Error()
	}
	return statusOK
}

// Database pings db.
func Database(db *sql.DB) CheckFunc {
	return func(ctx context.Context) error {
		if db == nil {
			return sql.ErrConnDone
		}
		return db.PingContext(ctx)
	}
}

// Pinger is the part of redis.Client used for health checks.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// Redis issues PING.
func Redis(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if p == nil {
			return redis.ErrClosed
		}
		return p.Ping(ctx).Err()
	}
}

// Telegram passes once the bot finished its getMe handshake.
func Telegram(bot *telebot.Bot) CheckFunc {
	return func(context.Context) error {
		if bot == nil || bot.Me == nil || bot.Me.ID == 0 {
			return errors.New("telegram bot is not initialized")
		}
		return nil
	}
}
