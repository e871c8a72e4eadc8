package state

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errStorageFailure = errors.New("storage error")

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) GetState(ctx context.Context, userID int64) (*UserState, error) {
	args := m.Called(ctx, userID)
	st, _ := args.Get(0).(*UserState)
	return st, args.Error(1)
}

func (m *mockStorage) SetState(ctx context.Context, userID int64, st *UserState) error {
	return m.Called(ctx, userID, st).Error(0)
}

func (m *mockStorage) ClearState(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockStorage) GetAllStates(ctx context.Context) ([]*UserState, error) {
	args := m.Called(ctx)
	states, _ := args.Get(0).([]*UserState)
	return states, args.Error(1)
}

func awaiting(s State) interface{} {
	return mock.MatchedBy(func(st *UserState) bool { return st.CurrentState == s })
}

func recordTransitions(t *testing.T) *[]string {
	t.Helper()
	var got []string
	RegisterTransitionRecorder(func(from, to string) { got = append(got, from+"->"+to) })
	t.Cleanup(func() { RegisterTransitionRecorder(nil) })
	return &got
}

func TestStateMachine_Await(t *testing.T) {
	const userID = int64(42)

	tests := []struct {
		name        string
		next        State
		setup       func(ms *mockStorage)
		wantErr     error
		transitions []string
	}{
		{
			name: "idle opens timezone prompt",
			next: StateAwaitingTimezone,
			setup: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, userID).Return((*UserState)(nil), ErrStateNotFound).Once()
				ms.On("SetState", mock.Anything, userID, awaiting(StateAwaitingTimezone)).Return(nil).Once()
			},
			transitions: []string{"idle->awaiting_timezone"},
		},
		{
			name: "reopening a prompt records nothing",
			next: StateAwaitingReminderTime,
			setup: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, userID).
					Return(&UserState{CurrentState: StateAwaitingReminderTime}, nil).Once()
				ms.On("SetState", mock.Anything, userID, awaiting(StateAwaitingReminderTime)).Return(nil).Once()
			},
		},
		{
			name: "awaiting idle clears",
			next: StateIdle,
			setup: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, userID).
					Return(&UserState{CurrentState: StateAwaitingTimezone}, nil).Once()
				ms.On("ClearState", mock.Anything, userID).Return(nil).Once()
			},
			transitions: []string{"awaiting_timezone->idle"},
		},
		{
			name: "unknown prompt rejected",
			next: State("awaiting_payment"),
			setup: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, userID).Return((*UserState)(nil), ErrStateNotFound).Once()
			},
			wantErr: ErrInvalidTransition,
		},
		{
			name: "storage failure surfaces",
			next: StateAwaitingTimezone,
			setup: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, userID).Return((*UserState)(nil), ErrStateNotFound).Once()
				ms.On("SetState", mock.Anything, userID, mock.Anything).Return(errStorageFailure).Once()
			},
			wantErr: errStorageFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := recordTransitions(t)
			ms := &mockStorage{}
			tt.setup(ms)

			err := NewStateMachine(ms, testLogger(), nil).Await(context.Background(), userID, tt.next)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.transitions, *got)
			ms.AssertExpectations(t)
		})
	}
}

func TestStateMachine_Current(t *testing.T) {
	const userID = int64(21)

	tests := []struct {
		name    string
		stored  *UserState
		err     error
		want    State
		wantErr error
	}{
		{name: "missing state is idle", err: ErrStateNotFound, want: StateIdle},
		{name: "stored prompt", stored: &UserState{CurrentState: StateAwaitingTimezone}, want: StateAwaitingTimezone},
		{name: "empty record is idle", stored: &UserState{}, want: StateIdle},
		{name: "storage failure", err: errStorageFailure, want: StateIdle, wantErr: errStorageFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := &mockStorage{}
			ms.On("GetState", mock.Anything, userID).Return(tt.stored, tt.err).Once()

			current, err := NewStateMachine(ms, testLogger(), nil).Current(context.Background(), userID)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.want, current)
			ms.AssertExpectations(t)
		})
	}
}

func TestStateMachine_ClearState(t *testing.T) {
	t.Run("records leaving a prompt", func(t *testing.T) {
		got := recordTransitions(t)
		ms := &mockStorage{}
		ms.On("GetState", mock.Anything, int64(13)).Return(&UserState{CurrentState: StateAwaitingReminderTime}, nil).Once()
		ms.On("ClearState", mock.Anything, int64(13)).Return(nil).Once()

		require.NoError(t, NewStateMachine(ms, testLogger(), nil).ClearState(context.Background(), 13))
		assert.Equal(t, []string{"awaiting_reminder_time->idle"}, *got)
		ms.AssertExpectations(t)
	})

	t.Run("storage failure", func(t *testing.T) {
		ms := &mockStorage{}
		ms.On("GetState", mock.Anything, int64(13)).Return((*UserState)(nil), ErrStateNotFound).Once()
		ms.On("ClearState", mock.Anything, int64(13)).Return(errStorageFailure).Once()

		err := NewStateMachine(ms, testLogger(), nil).ClearState(context.Background(), 13)
		assert.ErrorIs(t, err, errStorageFailure)
	})
}

func TestStateMachine_ConcurrentPromptsSerialize(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	storage := newInMemoryStorage(20 * time.Millisecond)
	fsm := NewStateMachine(storage, testLogger(), client)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, next := range []State{StateAwaitingTimezone, StateAwaitingReminderTime} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- fsm.Await(ctx, 77, next)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	current, err := fsm.Current(ctx, 77)
	require.NoError(t, err)
	assert.NotEqual(t, StateIdle, current)
	assert.Equal(t, 1, storage.maxConcurrent())
}

func TestStateMachine_LockHeldElsewhere(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, fmt.Sprintf(userLockKeyPattern, 5), "other", time.Minute).Err())

	fsm := NewStateMachine(newInMemoryStorage(0), testLogger(), client)
	assert.ErrorIs(t, fsm.Await(ctx, 5, StateAwaitingTimezone), ErrStateLocked)

	owner, err := client.Get(ctx, fmt.Sprintf(userLockKeyPattern, 5)).Result()
	require.NoError(t, err)
	assert.Equal(t, "other", owner)
}

func TestStateMachine_ReleasesLock(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	ctx := context.Background()
	fsm := NewStateMachine(newInMemoryStorage(0), testLogger(), client)

	require.NoError(t, fsm.Await(ctx, 9, StateAwaitingTimezone))
	require.NoError(t, fsm.ClearState(ctx, 9))

	exists, err := client.Exists(ctx, fmt.Sprintf(userLockKeyPattern, 9)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return client, func() { _ = client.Close() }
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// inMemoryStorage tracks how many writers overlap so tests can see the lock working.
type inMemoryStorage struct {
	mu      sync.Mutex
	states  map[int64]UserState
	delay   time.Duration
	active  int
	maxSeen int
}

func newInMemoryStorage(delay time.Duration) *inMemoryStorage {
	return &inMemoryStorage{states: make(map[int64]UserState), delay: delay}
}

func (s *inMemoryStorage) GetState(_ context.Context, userID int64) (*UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[userID]
	if !ok {
		return nil, ErrStateNotFound
	}
	return &st, nil
}

func (s *inMemoryStorage) SetState(_ context.Context, userID int64, st *UserState) error {
	s.mu.Lock()
	s.active++
	if s.active > s.maxSeen {
		s.maxSeen = s.active
	}
	s.mu.Unlock()

	time.Sleep(s.delay)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--
	s.states[userID] = *st
	return nil
}

func (s *inMemoryStorage) ClearState(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	return nil
}

func (s *inMemoryStorage) GetAllStates(context.Context) ([]*UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*UserState, 0, len(s.states))
	for _, st := range s.states {
		st := st
		out = append(out, &st)
	}
	return out, nil
}

func (s *inMemoryStorage) maxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSeen
}
