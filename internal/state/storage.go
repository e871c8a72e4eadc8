// Package state keeps the per-user awaiting-input state machine.
package state

import "context"

// Storage defines the persistence contract for user FSM state.
type Storage interface {
	GetState(ctx context.Context, userID int64) (*UserState, error)
	SetState(ctx context.Context, userID int64, state *UserState) error
	ClearState(ctx context.Context, userID int64) error
	GetAllStates(ctx context.Context) ([]*UserState, error)
}
