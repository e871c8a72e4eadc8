package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Proton-105/alina-bot/internal/domain"
)

// UserRepository defines persistence operations for user profiles.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	// Create inserts the user unless a row with the same id already exists.
	Create(ctx context.Context, user *domain.User) error
	UpdateProfile(ctx context.Context, user *domain.User) error
	// DecrementFree spends one free message; it reports false when none are left.
	DecrementFree(ctx context.Context, id int64) (bool, error)
	SetSubscription(ctx context.Context, id int64, until time.Time, freeLeft int) error
	// IncrementMessages bumps the lifetime message counter and returns the new value.
	IncrementMessages(ctx context.Context, id int64) (int, error)
	SaveMemory(ctx context.Context, id int64, facts domain.Facts) error
	UpdateLastActiveAt(ctx context.Context, id int64, at time.Time) error
}

const userColumns = `user_id, first_name, last_name, username, COALESCE(name, '') AS name,
	style, verbosity, free_left, sub_until, COALESCE(tz, '') AS tz, total_messages, memory,
	created_at, last_active_at`

type userRepository struct {
	db  *sqlx.DB
	log *slog.Logger
}

// NewUserRepository creates a new SQL-backed user repository.
func NewUserRepository(db *sqlx.DB, log *slog.Logger) UserRepository {
	return &userRepository{
		db:  db,
		log: componentLogger(log, "user_repository"),
	}
}

func (r *userRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE user_id = ?`)

	var user domain.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Error("failed to fetch user", slog.Int64("user_id", id), slog.Any("error", err))
		return nil, fmt.Errorf("select user: %w", err)
	}

	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := r.db.Rebind(`
		INSERT INTO users (user_id, first_name, last_name, username, style, verbosity, free_left,
			total_messages, memory, created_at, last_active_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`)

	if _, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.FirstName,
		user.LastName,
		user.Username,
		user.Style,
		user.Verbosity,
		user.FreeLeft,
		user.Memory,
		user.CreatedAt,
		user.CreatedAt,
	); err != nil {
		r.log.Error("failed to create user", slog.Int64("user_id", user.ID), slog.Any("error", err))
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	query := r.db.Rebind(`
		UPDATE users
		SET first_name = ?, last_name = ?, username = ?, name = ?, style = ?, verbosity = ?, tz = ?
		WHERE user_id = ?`)

	res, err := r.db.ExecContext(ctx, query,
		user.FirstName,
		user.LastName,
		user.Username,
		nullIfEmpty(user.Name),
		user.Style,
		user.Verbosity,
		nullIfEmpty(user.TZ),
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}

	return requireAffected(res)
}

func (r *userRepository) DecrementFree(ctx context.Context, id int64) (bool, error) {
	query := r.db.Rebind(`UPDATE users SET free_left = free_left - 1 WHERE user_id = ? AND free_left > 0`)

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("decrement free messages: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement free messages: %w", err)
	}
	return n == 1, nil
}

func (r *userRepository) SetSubscription(ctx context.Context, id int64, until time.Time, freeLeft int) error {
	query := r.db.Rebind(`UPDATE users SET sub_until = ?, free_left = ? WHERE user_id = ?`)

	res, err := r.db.ExecContext(ctx, query, until.UTC(), freeLeft, id)
	if err != nil {
		return fmt.Errorf("set subscription: %w", err)
	}

	return requireAffected(res)
}

func (r *userRepository) IncrementMessages(ctx context.Context, id int64) (int, error) {
	query := r.db.Rebind(`UPDATE users SET total_messages = total_messages + 1 WHERE user_id = ? RETURNING total_messages`)

	var total int
	if err := r.db.QueryRowxContext(ctx, query, id).Scan(&total); err != nil {
		return 0, fmt.Errorf("increment message counter: %w", notFound(err))
	}
	return total, nil
}

func (r *userRepository) SaveMemory(ctx context.Context, id int64, facts domain.Facts) error {
	query := r.db.Rebind(`UPDATE users SET memory = ? WHERE user_id = ?`)

	res, err := r.db.ExecContext(ctx, query, facts, id)
	if err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	return requireAffected(res)
}

func (r *userRepository) UpdateLastActiveAt(ctx context.Context, id int64, at time.Time) error {
	query := r.db.Rebind(`UPDATE users SET last_active_at = ? WHERE user_id = ?`)

	if _, err := r.db.ExecContext(ctx, query, at.UTC(), id); err != nil {
		return fmt.Errorf("update last active: %w", err)
	}
	return nil
}
