package bot

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Proton-105/alina-bot/internal/bot/handlers"
	"github.com/Proton-105/alina-bot/internal/state"
)

// Dispatcher routes incoming updates to state-specific handlers.
type Dispatcher struct {
	fsm           state.StateMachine
	stateHandlers map[state.State]handlers.Handler
	log           *slog.Logger
	mu            sync.RWMutex
}

// NewDispatcher creates a Dispatcher with an empty handlers registry.
func NewDispatcher(fsm state.StateMachine, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		fsm:           fsm,
		stateHandlers: make(map[state.State]handlers.Handler),
		log:           log,
	}
}

// RegisterStateHandler registers a handler for the provided state.
func (d *Dispatcher) RegisterStateHandler(s state.State, h handlers.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stateHandlers[s] = h
}

// Resolve returns the handler for the user's current state, or nil when the user is idle
// or the state has no handler.
func (d *Dispatcher) Resolve(ctx context.Context, userID int64) (handlers.Handler, error) {
	if d.fsm == nil {
		return nil, nil
	}

	current, err := d.fsm.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == state.StateIdle {
		return nil, nil
	}

	handler := d.getHandler(current)
	if handler == nil {
		d.log.Info("no handler registered for state", slog.String("state", string(current)), slog.Int64("user_id", userID))
	}
	return handler, nil
}

func (d *Dispatcher) getHandler(s state.State) handlers.Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stateHandlers[s]
}
