package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	userLockKeyPattern = "alina:fsm:lock:%d"
	lockTTL            = 5 * time.Second
	lockWait           = 300 * time.Millisecond
	lockPoll           = 25 * time.Millisecond
)

var (
	// ErrInvalidTransition indicates that a prompt cannot be opened from the current state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrStateNotFound indicates that a user state record does not exist.
	ErrStateNotFound = errors.New("user state not found")
	// ErrStateLocked indicates that another update for the same user still holds the lock.
	ErrStateLocked = errors.New("state is locked, try again later")
)

// releaseScript deletes the lock only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var transitionRecorder = func(from, to string) {}

// RegisterTransitionRecorder allows external packages to observe FSM transitions.
func RegisterTransitionRecorder(recorder func(from, to string)) {
	if recorder == nil {
		transitionRecorder = func(string, string) {}
		return
	}

	transitionRecorder = recorder
}

// StateMachine tracks which input prompt, if any, a user is answering.
type StateMachine interface {
	GetState(ctx context.Context, userID int64) (*UserState, error)
	// Current returns the user's state, treating a missing record as idle.
	Current(ctx context.Context, userID int64) (State, error)
	// Await opens an input prompt. Awaiting StateIdle clears the prompt.
	Await(ctx context.Context, userID int64, next State) error
	ClearState(ctx context.Context, userID int64) error
	GetAllStates(ctx context.Context) ([]*UserState, error)
}

type machine struct {
	storage     Storage
	log         *slog.Logger
	redisClient *redis.Client
}

// NewStateMachine creates the FSM on storage. redisClient guards concurrent updates for one
// user and may be nil in tests.
func NewStateMachine(storage Storage, log *slog.Logger, redisClient *redis.Client) StateMachine {
	if log == nil {
		log = slog.Default()
	}

	return &machine{
		storage:     storage,
		log:         log.With(slog.String("component", "fsm")),
		redisClient: redisClient,
	}
}

func (m *machine) GetState(ctx context.Context, userID int64) (*UserState, error) {
	return m.storage.GetState(ctx, userID)
}

func (m *machine) Current(ctx context.Context, userID int64) (State, error) {
	stored, err := m.storage.GetState(ctx, userID)
	switch {
	case errors.Is(err, ErrStateNotFound):
		return StateIdle, nil
	case err != nil:
		return StateIdle, err
	case stored == nil || stored.CurrentState == "":
		return StateIdle, nil
	default:
		return stored.CurrentState, nil
	}
}

func (m *machine) GetAllStates(ctx context.Context) ([]*UserState, error) {
	return m.storage.GetAllStates(ctx)
}

func (m *machine) Await(ctx context.Context, userID int64, next State) error {
	return m.withLock(ctx, userID, func() error {
		current, err := m.Current(ctx, userID)
		if err != nil {
			return err
		}

		if !IsTransitionAllowed(current, next) {
			m.log.Warn("invalid state transition",
				slog.Int64("user_id", userID),
				slog.String("from", string(current)),
				slog.String("to", string(next)),
			)
			return ErrInvalidTransition
		}

		if next == StateIdle {
			if err := m.storage.ClearState(ctx, userID); err != nil {
				return err
			}
		} else if err := m.storage.SetState(ctx, userID, &UserState{UserID: userID, CurrentState: next}); err != nil {
			return err
		}

		if current != next {
			transitionRecorder(string(current), string(next))
		}
		return nil
	})
}

// ClearState drops the stored state, which returns the user to idle.
func (m *machine) ClearState(ctx context.Context, userID int64) error {
	return m.withLock(ctx, userID, func() error {
		current, err := m.Current(ctx, userID)
		if err != nil {
			return err
		}
		if err := m.storage.ClearState(ctx, userID); err != nil {
			return err
		}
		if current != StateIdle {
			transitionRecorder(string(current), string(StateIdle))
		}
		return nil
	})
}

// withLock runs fn while holding the user's lock. A busy lock is polled for up to lockWait,
// which covers a double-tapped button.
func (m *machine) withLock(ctx context.Context, userID int64, fn func() error) error {
	if m.redisClient == nil {
		return fn()
	}

	key := fmt.Sprintf(userLockKeyPattern, userID)
	token := uuid.NewString()
	deadline := time.Now().Add(lockWait)

	for {
		acquired, err := m.redisClient.SetNX(ctx, key, token, lockTTL).Result()
		if err != nil {
			m.log.Error("failed to acquire user state lock", slog.Int64("user_id", userID), slog.Any("error", err))
			return fmt.Errorf("lock state %d: %w", userID, err)
		}
		if acquired {
			break
		}
		if time.Now().After(deadline) {
			m.log.Warn("user state lock still held", slog.Int64("user_id", userID))
			return ErrStateLocked
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPoll):
		}
	}

	defer func() {
		if err := releaseScript.Run(context.WithoutCancel(ctx), m.redisClient, []string{key}, token).Err(); err != nil {
			m.log.Error("failed to release user state lock", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}()

	return fn()
}
