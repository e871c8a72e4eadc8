package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// Readiness is satisfied by health.Checker.
type Readiness interface {
	Check(ctx context.Context) (map[string]string, bool)
}

// Probes answers liveness and readiness. Once draining starts readiness fails so that
// traffic moves away before the process exits.
type Probes struct {
	checks   Readiness
	draining atomic.Bool
}

func NewProbes(checks Readiness) *Probes {
	return &Probes{checks: checks}
}

// Liveness reports that the process is serving.
func (p *Probes) Liveness(context.Context) error {
	return nil
}

// Readiness runs the dependency checks and lists the failing ones in the error.
func (p *Probes) Readiness(ctx context.Context) (map[string]string, error) {
	if p.draining.Load() {
		return map[string]string{"process": "shutting down"}, fmt.Errorf("shutting down")
	}
	if p.checks == nil {
		return map[string]string{}, nil
	}

	results, ok := p.checks.Check(ctx)
	if ok {
		return results, nil
	}

	failed := make([]string, 0, len(results))
	for name, status := range results {
		if status != "OK" {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	return results, fmt.Errorf("not ready: %s", strings.Join(failed, ", "))
}

// Drain marks the process as going away.
func (p *Probes) Drain() {
	p.draining.Store(true)
}
