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

// PaymentRepository stores payment attempts keyed by order id.
type PaymentRepository interface {
	// Upsert inserts the payment or, when the order id exists, overwrites status and raw payload.
	Upsert(ctx context.Context, p *domain.Payment) error
	FindByOrder(ctx context.Context, orderID string) (*domain.Payment, error)
	// Settle moves a pending payment to status and reports whether this call changed it.
	Settle(ctx context.Context, orderID string, status domain.PaymentStatus, raw string) (bool, error)
	// Reopen puts a paid payment back to pending so a later notification settles it again.
	Reopen(ctx context.Context, orderID string) error
	// ExpirePending fails pending payments created before cutoff.
	ExpirePending(ctx context.Context, cutoff time.Time) (int64, error)
}

type paymentRepository struct {
	db  *sqlx.DB
	log *slog.Logger
	now func() time.Time
}

func NewPaymentRepository(db *sqlx.DB, log *slog.Logger) PaymentRepository {
	return &paymentRepository{
		db:  db,
		log: componentLogger(log, "payment_repository"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *paymentRepository) Upsert(ctx context.Context, p *domain.Payment) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now()
	}

	query := r.db.Rebind(`
		INSERT INTO payments (user_id, provider, order_id, amount, currency, status, raw, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (order_id) DO UPDATE SET status = excluded.status, raw = excluded.raw
		RETURNING id`)

	if err := r.db.QueryRowxContext(ctx, query,
		p.UserID, p.Provider, p.OrderID, p.Amount, p.Currency, p.Status, p.Raw, p.CreatedAt,
	).Scan(&p.ID); err != nil {
		r.log.Error("failed to upsert payment", slog.String("order_id", p.OrderID), slog.Any("error", err))
		return fmt.Errorf("upsert payment: %w", err)
	}

	return nil
}

func (r *paymentRepository) FindByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	query := r.db.Rebind(`
		SELECT id, user_id, provider, order_id, amount, currency, status, raw, ts
		FROM payments WHERE order_id = ?`)

	var p domain.Payment
	if err := r.db.GetContext(ctx, &p, query, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select payment: %w", err)
	}
	return &p, nil
}

func (r *paymentRepository) Settle(ctx context.Context, orderID string, status domain.PaymentStatus, raw string) (bool, error) {
	query := r.db.Rebind(`UPDATE payments SET status = ?, raw = ? WHERE order_id = ? AND status = ?`)

	res, err := r.db.ExecContext(ctx, query, status, raw, orderID, domain.PaymentPending)
	if err != nil {
		return false, fmt.Errorf("settle payment: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("settle payment: %w", err)
	}
	return n == 1, nil
}

func (r *paymentRepository) Reopen(ctx context.Context, orderID string) error {
	query := r.db.Rebind(`UPDATE payments SET status = ? WHERE order_id = ? AND status = ?`)

	if _, err := r.db.ExecContext(ctx, query, domain.PaymentPending, orderID, domain.PaymentPaid); err != nil {
		r.log.Error("failed to reopen payment", slog.String("order_id", orderID), slog.Any("error", err))
		return fmt.Errorf("reopen payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) ExpirePending(ctx context.Context, cutoff time.Time) (int64, error) {
	query := r.db.Rebind(`UPDATE payments SET status = ? WHERE status = ? AND ts < ?`)

	res, err := r.db.ExecContext(ctx, query, domain.PaymentFailed, domain.PaymentPending, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire pending payments: %w", err)
	}
	return res.RowsAffected()
}
