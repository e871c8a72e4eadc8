package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/alina-bot/internal/state"
)

type staticFSM struct {
	state.StateMachine
	states []*state.UserState
}

func (f staticFSM) GetAllStates(context.Context) ([]*state.UserState, error) {
	return f.states, nil
}

func TestStateCollectorCounts(t *testing.T) {
	fsm := staticFSM{states: []*state.UserState{
		{UserID: 1, CurrentState: state.StateAwaitingTimezone},
		{UserID: 2, CurrentState: state.StateAwaitingTimezone},
		{UserID: 3, CurrentState: state.StateAwaitingReminderTime},
		{UserID: 4},
		nil,
	}}

	counts, err := NewStateCollector(fsm, time.Minute).count(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, counts[string(state.StateAwaitingTimezone)])
	assert.Equal(t, 1, counts[string(state.StateAwaitingReminderTime)])
	assert.Equal(t, 0, counts[string(state.StateError)])
	assert.Equal(t, 1, counts["unknown"])

	publish(counts)
	assert.Equal(t, 2.0, testutil.ToFloat64(promptsOpen.WithLabelValues(string(state.StateAwaitingTimezone))))
}

func TestRecordStateTransition(t *testing.T) {
	before := testutil.ToFloat64(promptTransitions.WithLabelValues("idle", "awaiting_timezone"))
	RecordStateTransition("idle", "awaiting_timezone")
	assert.Equal(t, before+1, testutil.ToFloat64(promptTransitions.WithLabelValues("idle", "awaiting_timezone")))
}
