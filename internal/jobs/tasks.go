package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeRenewalNudge   = "renewal:nudge"
	TaskTypeHistoryTrim    = "history:trim"
	TaskTypeHistorySweep   = "history:sweep"
	TaskTypePaymentsExpire = "payments:expire"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues is the priority map the worker consumes.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

const (
	// HistoryKeep is how many rows a trimmed history keeps.
	HistoryKeep = 100
	// HistoryTrimAbove is the stored message count that triggers a trim.
	HistoryTrimAbove = 150
	// PendingPaymentTTL is the age after which a pending payment is failed.
	PendingPaymentTTL = 24 * time.Hour
)

type RenewalNudgePayload struct {
	UserID int64     `json:"user_id"`
	Until  time.Time `json:"until"`
}

type HistoryTrimPayload struct {
	UserID int64 `json:"user_id"`
	Keep   int   `json:"keep"`
}

type HistorySweepPayload struct {
	Above int `json:"above"`
	Keep  int `json:"keep"`
}

type PaymentsExpirePayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// RenewalTaskID identifies the nudge for one subscription period, so a repeated
// activation for the same expiry does not enqueue it twice.
func RenewalTaskID(userID int64, until time.Time) string {
	return fmt.Sprintf("renew:%d:%d", userID, until.Unix())
}

func trimTaskID(userID int64) string {
	return fmt.Sprintf("trim:%d", userID)
}

func NewRenewalNudgeTask(userID int64, until time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(RenewalNudgePayload{UserID: userID, Until: until.UTC()})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeRenewalNudge, payload, asynq.Queue(QueueCritical), asynq.MaxRetry(3)), nil
}

func NewHistoryTrimTask(userID int64, keep int) (*asynq.Task, error) {
	payload, err := json.Marshal(HistoryTrimPayload{UserID: userID, Keep: keep})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeHistoryTrim, payload, asynq.Queue(QueueLow)), nil
}

func NewHistorySweepTask(above, keep int) (*asynq.Task, error) {
	payload, err := json.Marshal(HistorySweepPayload{Above: above, Keep: keep})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeHistorySweep, payload, asynq.Queue(QueueLow)), nil
}

func NewPaymentsExpireTask(olderThan time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(PaymentsExpirePayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypePaymentsExpire, payload, asynq.Queue(QueueDefault)), nil
}
