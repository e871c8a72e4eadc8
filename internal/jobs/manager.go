package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Manager describes the queue operations needed by the application.
type Manager interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	// EnqueueTrim asks for the user's history to be cut down to HistoryKeep rows.
	EnqueueTrim(ctx context.Context, userID int64) error
	// ScheduleRenewal plans the renewal reminder lead before until. Past moments are skipped.
	ScheduleRenewal(ctx context.Context, userID int64, until time.Time) error
	Close() error
}

// enqueuer is the subset of *asynq.Client the manager uses.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type manager struct {
	client enqueuer
	lead   time.Duration
	now    func() time.Time
	log    *slog.Logger
}

// NewManager builds a Manager backed by an asynq client. lead is how long before
// expiry the renewal reminder fires.
func NewManager(redisOpt asynq.RedisConnOpt, lead time.Duration, log *slog.Logger) Manager {
	return newManager(asynq.NewClient(redisOpt), lead, log)
}

func newManager(client enqueuer, lead time.Duration, log *slog.Logger) *manager {
	if log == nil {
		log = slog.Default()
	}
	if lead <= 0 {
		lead = 12 * time.Hour
	}

	return &manager{
		client: client,
		lead:   lead,
		now:    time.Now,
		log:    log.With(slog.String("component", "jobs")),
	}
}

func (m *manager) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return m.client.EnqueueContext(ctx, task, opts...)
}

func (m *manager) EnqueueTrim(ctx context.Context, userID int64) error {
	task, err := NewHistoryTrimTask(userID, HistoryKeep)
	if err != nil {
		return err
	}

	_, err = m.client.EnqueueContext(ctx, task, asynq.TaskID(trimTaskID(userID)))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue history trim for %d: %w", userID, err)
	}

	m.log.DebugContext(ctx, "history trim enqueued", slog.Int64("user_id", userID))
	return nil
}

func (m *manager) ScheduleRenewal(ctx context.Context, userID int64, until time.Time) error {
	at := until.Add(-m.lead)
	if !at.After(m.now()) {
		m.log.DebugContext(ctx, "renewal nudge skipped, moment passed",
			slog.Int64("user_id", userID),
			slog.Time("until", until),
		)
		return nil
	}

	task, err := NewRenewalNudgeTask(userID, until)
	if err != nil {
		return err
	}

	id := RenewalTaskID(userID, until)
	_, err = m.client.EnqueueContext(ctx, task, asynq.TaskID(id), asynq.ProcessAt(at))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("schedule renewal %s: %w", id, err)
	}

	m.log.InfoContext(ctx, "renewal nudge scheduled", slog.String("task_id", id), slog.Time("process_at", at))
	return nil
}

func (m *manager) Close() error {
	return m.client.Close()
}
