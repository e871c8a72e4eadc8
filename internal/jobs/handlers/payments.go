package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/alina-bot/internal/jobs"
	"github.com/Proton-105/alina-bot/pkg/metrics"
)

// PaymentExpirer fails stale pending payments.
type PaymentExpirer interface {
	ExpirePending(ctx context.Context, cutoff time.Time) (int64, error)
}

type PaymentsExpireHandler struct {
	payments PaymentExpirer
	now      func() time.Time
	log      *slog.Logger
}

func NewPaymentsExpireHandler(payments PaymentExpirer, log *slog.Logger) *PaymentsExpireHandler {
	return &PaymentsExpireHandler{
		payments: payments,
		now:      time.Now,
		log:      componentLogger(log, jobs.TaskTypePaymentsExpire),
	}
}

func (h *PaymentsExpireHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload := jobs.PaymentsExpirePayload{OlderThan: jobs.PendingPaymentTTL}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode expire payload: %w", asynq.SkipRetry)
		}
	}
	if payload.OlderThan <= 0 {
		payload.OlderThan = jobs.PendingPaymentTTL
	}

	expired, err := h.payments.ExpirePending(ctx, h.now().UTC().Add(-payload.OlderThan))
	if err != nil {
		return err
	}

	if expired > 0 {
		metrics.RecordPayment("pending", "expired")
		h.log.InfoContext(ctx, "pending payments expired", slog.Int64("count", expired))
	}
	return nil
}
