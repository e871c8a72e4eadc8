package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/alina-bot/internal/domain"
	"github.com/Proton-105/alina-bot/internal/jobs"
	"github.com/Proton-105/alina-bot/internal/repository"
)

// Users loads profiles.
type Users interface {
	Get(ctx context.Context, userID int64) (*domain.User, error)
}

// Nudger sends the renewal message with the plan keyboard.
type Nudger interface {
	SendRenewalNudge(ctx context.Context, userID int64, until time.Time) error
}

type RenewalNudgeHandler struct {
	users  Users
	nudger Nudger
	log    *slog.Logger
}

func NewRenewalNudgeHandler(users Users, nudger Nudger, log *slog.Logger) *RenewalNudgeHandler {
	return &RenewalNudgeHandler{users: users, nudger: nudger, log: componentLogger(log, jobs.TaskTypeRenewalNudge)}
}

// ProcessTask sends the nudge unless the subscription was extended after the task was planned.
func (h *RenewalNudgeHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.RenewalNudgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.ErrorContext(ctx, "renewal nudge: failed to decode payload", slog.String("error", err.Error()))
		return fmt.Errorf("decode renewal payload: %w", asynq.SkipRetry)
	}

	user, err := h.users.Get(ctx, payload.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		h.log.WarnContext(ctx, "renewal nudge: user gone", slog.Int64("user_id", payload.UserID))
		return nil
	}
	if err != nil {
		return err
	}

	if user.SubUntil == nil || user.SubUntil.Unix() != payload.Until.Unix() {
		h.log.InfoContext(ctx, "renewal nudge: subscription changed, skipping", slog.Int64("user_id", payload.UserID))
		return nil
	}

	if err := h.nudger.SendRenewalNudge(ctx, payload.UserID, payload.Until); err != nil {
		return fmt.Errorf("send renewal nudge to %d: %w", payload.UserID, err)
	}

	h.log.InfoContext(ctx, "renewal nudge sent", slog.Int64("user_id", payload.UserID), slog.Time("until", payload.Until))
	return nil
}

func componentLogger(log *slog.Logger, task string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	return log.With(slog.String("task_type", task))
}
