package metrics

import (
	"context"
	"time"

	"github.com/Proton-105/alina-bot/internal/state"
)

// StateCollector refreshes the open-prompt gauge from the FSM storage.
type StateCollector struct {
	fsm      state.StateMachine
	interval time.Duration
}

func NewStateCollector(fsm state.StateMachine, interval time.Duration) *StateCollector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &StateCollector{fsm: fsm, interval: interval}
}

// Run refreshes the gauge immediately and then every interval until ctx is done.
func (c *StateCollector) Run(ctx context.Context) {
	if c == nil || c.fsm == nil {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if counts, err := c.count(ctx); err == nil {
			publish(counts)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *StateCollector) count(ctx context.Context) (map[string]int, error) {
	states, err := c.fsm.GetAllStates(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(state.AllStates))
	for _, tracked := range state.AllStates {
		counts[string(tracked)] = 0
	}
	for _, st := range states {
		if st == nil {
			continue
		}
		counts[label(string(st.CurrentState))]++
	}
	return counts, nil
}

func publish(counts map[string]int) {
	promptsOpen.Reset()
	for name, n := range counts {
		promptsOpen.WithLabelValues(name).Set(float64(n))
	}
}
