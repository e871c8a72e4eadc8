package domain

import "time"

type PaymentProvider string

const (
	ProviderStars  PaymentProvider = "stars"
	ProviderRedsys PaymentProvider = "redsys"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Payment records one purchase attempt; OrderID is unique per provider order or invoice payload.
type Payment struct {
	ID        int64           `db:"id"`
	UserID    int64           `db:"user_id"`
	Provider  PaymentProvider `db:"provider"`
	OrderID   string          `db:"order_id"`
	Amount    int             `db:"amount"`
	Currency  string          `db:"currency"`
	Status    PaymentStatus   `db:"status"`
	Raw       string          `db:"raw"`
	CreatedAt time.Time       `db:"ts"`
}
