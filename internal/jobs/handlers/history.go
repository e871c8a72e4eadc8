package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/alina-bot/internal/jobs"
)

// HistoryTrimmer is the slice of the message repository the history tasks use.
type HistoryTrimmer interface {
	TrimTo(ctx context.Context, userID int64, keep int) (int64, error)
	UsersAbove(ctx context.Context, limit int) ([]int64, error)
}

type HistoryTrimHandler struct {
	messages HistoryTrimmer
	log      *slog.Logger
}

func NewHistoryTrimHandler(messages HistoryTrimmer, log *slog.Logger) *HistoryTrimHandler {
	return &HistoryTrimHandler{messages: messages, log: componentLogger(log, jobs.TaskTypeHistoryTrim)}
}

func (h *HistoryTrimHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.HistoryTrimPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode trim payload: %w", asynq.SkipRetry)
	}
	if payload.Keep <= 0 {
		payload.Keep = jobs.HistoryKeep
	}

	removed, err := h.messages.TrimTo(ctx, payload.UserID, payload.Keep)
	if err != nil {
		return err
	}

	h.log.DebugContext(ctx, "history trimmed", slog.Int64("user_id", payload.UserID), slog.Int64("removed", removed))
	return nil
}

// HistorySweepHandler trims every user whose history grew past the threshold.
type HistorySweepHandler struct {
	messages HistoryTrimmer
	log      *slog.Logger
}

func NewHistorySweepHandler(messages HistoryTrimmer, log *slog.Logger) *HistorySweepHandler {
	return &HistorySweepHandler{messages: messages, log: componentLogger(log, jobs.TaskTypeHistorySweep)}
}

func (h *HistorySweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload := jobs.HistorySweepPayload{Above: jobs.HistoryTrimAbove, Keep: jobs.HistoryKeep}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode sweep payload: %w", asynq.SkipRetry)
		}
	}

	users, err := h.messages.UsersAbove(ctx, payload.Above)
	if err != nil {
		return err
	}

	var total int64
	for _, id := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		removed, err := h.messages.TrimTo(ctx, id, payload.Keep)
		if err != nil {
			h.log.WarnContext(ctx, "history sweep: trim failed", slog.Int64("user_id", id), slog.Any("error", err))
			continue
		}
		total += removed
	}

	h.log.InfoContext(ctx, "history sweep finished", slog.Int("users", len(users)), slog.Int64("removed", total))
	return nil
}
