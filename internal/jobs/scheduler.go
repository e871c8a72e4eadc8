package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	paymentsExpireSpec = "0 * * * *"
	historySweepSpec   = "30 4 * * *"
)

// Scheduler enqueues the periodic maintenance tasks.
type Scheduler interface {
	RegisterTasks() error
	Start() error
	Shutdown()
}

type scheduler struct {
	asynqScheduler *asynq.Scheduler
	log            *slog.Logger
}

func NewScheduler(redisOpt asynq.RedisConnOpt, log *slog.Logger) Scheduler {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "jobs_scheduler"))

	return &scheduler{
		asynqScheduler: asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
			Location: time.UTC,
			EnqueueErrorHandler: func(task *asynq.Task, _ []asynq.Option, err error) {
				log.Error("periodic enqueue failed", slog.String("task_type", task.Type()), slog.Any("error", err))
			},
		}),
		log: log,
	}
}

func (s *scheduler) RegisterTasks() error {
	expire, err := NewPaymentsExpireTask(PendingPaymentTTL)
	if err != nil {
		return err
	}
	if _, err := s.asynqScheduler.Register(paymentsExpireSpec, expire); err != nil {
		return err
	}

	sweep, err := NewHistorySweepTask(HistoryTrimAbove, HistoryKeep)
	if err != nil {
		return err
	}
	if _, err := s.asynqScheduler.Register(historySweepSpec, sweep); err != nil {
		return err
	}

	s.log.InfoContext(context.Background(), "scheduler: registered periodic tasks",
		slog.String("payments_expire", paymentsExpireSpec),
		slog.String("history_sweep", historySweepSpec),
	)

	return nil
}

func (s *scheduler) Start() error {
	s.log.InfoContext(context.Background(), "scheduler: starting")

	return s.asynqScheduler.Start()
}

func (s *scheduler) Shutdown() {
	s.log.InfoContext(context.Background(), "scheduler: shutting down")

	s.asynqScheduler.Shutdown()
}
