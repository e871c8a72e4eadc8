package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/Proton-105/alina-bot/internal/domain"
)

// ScheduledReminder is an active reminder joined with its owner's timezone.
type ScheduledReminder struct {
	domain.Reminder
	TZ string `db:"tz"`
}

// ReminderRepository manages per-user daily reminders.
type ReminderRepository interface {
	ListByUser(ctx context.Context, userID int64) ([]domain.Reminder, error)
	Get(ctx context.Context, userID, id int64) (*domain.Reminder, error)
	Add(ctx context.Context, userID int64, rtype domain.ReminderType, timeLocal string) (*domain.Reminder, error)
	// Toggle flips the active flag and returns the updated reminder.
	Toggle(ctx context.Context, userID, id int64) (*domain.Reminder, error)
	Delete(ctx context.Context, userID, id int64) error
	ListActive(ctx context.Context) ([]ScheduledReminder, error)
}

const reminderColumns = `id, user_id, rtype, time_local, active`

type reminderRepository struct {
	db  *sqlx.DB
	log *slog.Logger
}

func NewReminderRepository(db *sqlx.DB, log *slog.Logger) ReminderRepository {
	return &reminderRepository{
		db:  db,
		log: componentLogger(log, "reminder_repository"),
	}
}

func (r *reminderRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Reminder, error) {
	query := r.db.Rebind(`SELECT ` + reminderColumns + ` FROM reminders WHERE user_id = ? ORDER BY time_local, id`)

	var reminders []domain.Reminder
	if err := r.db.SelectContext(ctx, &reminders, query, userID); err != nil {
		return nil, fmt.Errorf("select reminders: %w", err)
	}
	return reminders, nil
}

func (r *reminderRepository) Get(ctx context.Context, userID, id int64) (*domain.Reminder, error) {
	query := r.db.Rebind(`SELECT ` + reminderColumns + ` FROM reminders WHERE id = ? AND user_id = ?`)

	var rem domain.Reminder
	if err := r.db.GetContext(ctx, &rem, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select reminder: %w", err)
	}
	return &rem, nil
}

func (r *reminderRepository) Add(ctx context.Context, userID int64, rtype domain.ReminderType, timeLocal string) (*domain.Reminder, error) {
	query := r.db.Rebind(`INSERT INTO reminders (user_id, rtype, time_local, active) VALUES (?, ?, ?, ?) RETURNING id`)

	rem := &domain.Reminder{UserID: userID, Type: rtype, TimeLocal: timeLocal, Active: true}
	if err := r.db.QueryRowxContext(ctx, query, userID, rtype, timeLocal, true).Scan(&rem.ID); err != nil {
		r.log.Error("failed to add reminder", slog.Int64("user_id", userID), slog.Any("error", err))
		return nil, fmt.Errorf("insert reminder: %w", err)
	}
	return rem, nil
}

func (r *reminderRepository) Toggle(ctx context.Context, userID, id int64) (*domain.Reminder, error) {
	rem, err := r.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	rem.Active = !rem.Active
	query := r.db.Rebind(`UPDATE reminders SET active = ? WHERE id = ? AND user_id = ?`)
	res, err := r.db.ExecContext(ctx, query, rem.Active, id, userID)
	if err != nil {
		return nil, fmt.Errorf("toggle reminder: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return rem, nil
}

func (r *reminderRepository) Delete(ctx context.Context, userID, id int64) error {
	query := r.db.Rebind(`DELETE FROM reminders WHERE id = ? AND user_id = ?`)

	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	return requireAffected(res)
}

func (r *reminderRepository) ListActive(ctx context.Context) ([]ScheduledReminder, error) {
	query := r.db.Rebind(`
		SELECT r.id, r.user_id, r.rtype, r.time_local, r.active, COALESCE(u.tz, '') AS tz
		FROM reminders r
		LEFT JOIN users u ON u.user_id = r.user_id
		WHERE r.active = ?
		ORDER BY r.user_id, r.id`)

	var reminders []ScheduledReminder
	if err := r.db.SelectContext(ctx, &reminders, query, true); err != nil {
		return nil, fmt.Errorf("select active reminders: %w", err)
	}
	return reminders, nil
}
