package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/alina-bot/internal/domain"
	"github.com/Proton-105/alina-bot/internal/jobs"
	"github.com/Proton-105/alina-bot/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubUsers map[int64]*domain.User

func (s stubUsers) Get(_ context.Context, id int64) (*domain.User, error) {
	u, ok := s[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

type recordingNudger struct {
	sent []int64
	err  error
}

func (n *recordingNudger) SendRenewalNudge(_ context.Context, userID int64, _ time.Time) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, userID)
	return nil
}

func TestRenewalNudgeHandler(t *testing.T) {
	until := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	later := until.Add(24 * time.Hour)

	users := stubUsers{
		1: {ID: 1, SubUntil: &until},
		2: {ID: 2, SubUntil: &later},
		3: {ID: 3},
	}

	tests := []struct {
		name     string
		userID   int64
		wantSent bool
	}{
		{name: "expiry unchanged", userID: 1, wantSent: true},
		{name: "renewed since", userID: 2},
		{name: "no subscription", userID: 3},
		{name: "unknown user", userID: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nudger := &recordingNudger{}
			h := NewRenewalNudgeHandler(users, nudger, testLogger())

			task, err := jobs.NewRenewalNudgeTask(tt.userID, until)
			require.NoError(t, err)

			require.NoError(t, h.ProcessTask(context.Background(), task))
			if tt.wantSent {
				assert.Equal(t, []int64{tt.userID}, nudger.sent)
			} else {
				assert.Empty(t, nudger.sent)
			}
		})
	}

	t.Run("send failure is retried", func(t *testing.T) {
		h := NewRenewalNudgeHandler(users, &recordingNudger{err: errors.New("blocked")}, testLogger())
		task, err := jobs.NewRenewalNudgeTask(1, until)
		require.NoError(t, err)

		err = h.ProcessTask(context.Background(), task)
		require.Error(t, err)
		assert.False(t, errors.Is(err, asynq.SkipRetry))
	})

	t.Run("bad payload is not retried", func(t *testing.T) {
		h := NewRenewalNudgeHandler(users, &recordingNudger{}, testLogger())
		err := h.ProcessTask(context.Background(), asynq.NewTask(jobs.TaskTypeRenewalNudge, []byte("{")))
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})
}

type fakeHistory struct {
	counts  map[int64]int
	trimmed map[int64]int
}

func (f *fakeHistory) TrimTo(_ context.Context, userID int64, keep int) (int64, error) {
	if f.trimmed == nil {
		f.trimmed = map[int64]int{}
	}
	f.trimmed[userID] = keep
	removed := f.counts[userID] - keep
	if removed < 0 {
		removed = 0
	}
	f.counts[userID] -= removed
	return int64(removed), nil
}

func (f *fakeHistory) UsersAbove(_ context.Context, limit int) ([]int64, error) {
	var out []int64
	for id, n := range f.counts {
		if n > limit {
			out = append(out, id)
		}
	}
	return out, nil
}

func TestHistoryTrimHandler(t *testing.T) {
	history := &fakeHistory{counts: map[int64]int{5: 160}}
	h := NewHistoryTrimHandler(history, testLogger())

	task, err := jobs.NewHistoryTrimTask(5, jobs.HistoryKeep)
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))

	assert.Equal(t, 100, history.counts[5])
}

func TestHistorySweepHandler(t *testing.T) {
	history := &fakeHistory{counts: map[int64]int{1: 151, 2: 150, 3: 400}}
	h := NewHistorySweepHandler(history, testLogger())

	task, err := jobs.NewHistorySweepTask(jobs.HistoryTrimAbove, jobs.HistoryKeep)
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))

	assert.Equal(t, map[int64]int{1: 100, 2: 150, 3: 100}, history.counts)
	assert.NotContains(t, history.trimmed, int64(2))
}

type fakeExpirer struct {
	cutoff time.Time
}

func (f *fakeExpirer) ExpirePending(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 2, nil
}

func TestPaymentsExpireHandler(t *testing.T) {
	now := time.Date(2025, 5, 2, 12, 0, 0, 0, time.UTC)
	expirer := &fakeExpirer{}
	h := NewPaymentsExpireHandler(expirer, testLogger())
	h.now = func() time.Time { return now }

	task, err := jobs.NewPaymentsExpireTask(jobs.PendingPaymentTTL)
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))

	assert.Equal(t, now.Add(-24*time.Hour), expirer.cutoff)
}
