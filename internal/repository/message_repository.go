package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Proton-105/alina-bot/internal/domain"
)

// MessageRepository stores conversation history.
type MessageRepository interface {
	Append(ctx context.Context, userID int64, role domain.Role, content string) (int64, error)
	// Recent returns up to limit latest messages, oldest first.
	Recent(ctx context.Context, userID int64, limit int) ([]domain.Message, error)
	Count(ctx context.Context, userID int64) (int, error)
	// TrimTo deletes all but the newest keep messages and returns how many rows were removed.
	TrimTo(ctx context.Context, userID int64, keep int) (int64, error)
	// UsersAbove lists users whose stored history is longer than limit.
	UsersAbove(ctx context.Context, limit int) ([]int64, error)
}

type messageRepository struct {
	db  *sqlx.DB
	log *slog.Logger
	now func() time.Time
}

func NewMessageRepository(db *sqlx.DB, log *slog.Logger) MessageRepository {
	return &messageRepository{
		db:  db,
		log: componentLogger(log, "message_repository"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *messageRepository) Append(ctx context.Context, userID int64, role domain.Role, content string) (int64, error) {
	query := r.db.Rebind(`INSERT INTO messages (user_id, role, content, ts) VALUES (?, ?, ?, ?) RETURNING id`)

	var id int64
	if err := r.db.QueryRowxContext(ctx, query, userID, role, content, r.now()).Scan(&id); err != nil {
		r.log.Error("failed to append message", slog.Int64("user_id", userID), slog.Any("error", err))
		return 0, fmt.Errorf("insert message: %w", err)
	}

	return id, nil
}

func (r *messageRepository) Recent(ctx context.Context, userID int64, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := r.db.Rebind(`
		SELECT id, user_id, role, content, ts FROM (
			SELECT id, user_id, role, content, ts FROM messages
			WHERE user_id = ?
			ORDER BY id DESC
			LIMIT ?
		) recent
		ORDER BY id ASC`)

	var messages []domain.Message
	if err := r.db.SelectContext(ctx, &messages, query, userID, limit); err != nil {
		return nil, fmt.Errorf("select recent messages: %w", err)
	}

	return messages, nil
}

func (r *messageRepository) Count(ctx context.Context, userID int64) (int, error) {
	query := r.db.Rebind(`SELECT COUNT(*) FROM messages WHERE user_id = ?`)

	var n int
	if err := r.db.GetContext(ctx, &n, query, userID); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func (r *messageRepository) TrimTo(ctx context.Context, userID int64, keep int) (int64, error) {
	query := r.db.Rebind(`
		DELETE FROM messages
		WHERE user_id = ? AND id NOT IN (
			SELECT id FROM messages WHERE user_id = ? ORDER BY id DESC LIMIT ?
		)`)

	res, err := r.db.ExecContext(ctx, query, userID, userID, keep)
	if err != nil {
		return 0, fmt.Errorf("trim messages: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("trim messages: %w", err)
	}

	if deleted > 0 {
		r.log.Debug("history trimmed", slog.Int64("user_id", userID), slog.Int64("deleted", deleted))
	}
	return deleted, nil
}

func (r *messageRepository) UsersAbove(ctx context.Context, limit int) ([]int64, error) {
	query := r.db.Rebind(`SELECT user_id FROM messages GROUP BY user_id HAVING COUNT(*) > ?`)

	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, limit); err != nil {
		return nil, fmt.Errorf("select users above history limit: %w", err)
	}
	return ids, nil
}
