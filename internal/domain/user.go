package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Style is the tone Alina uses with a user.
type Style string

const (
	StyleGentle Style = "gentle"
	StyleDirect Style = "direct"
)

// Verbosity is the preferred reply length.
type Verbosity string

const (
	VerbosityShort  Verbosity = "short"
	VerbosityNormal Verbosity = "normal"
	VerbosityLong   Verbosity = "long"
)

// User is a Telegram user profile together with subscription state.
type User struct {
	ID            int64      `db:"user_id" json:"user_id"`
	FirstName     string     `db:"first_name" json:"first_name"`
	LastName      string     `db:"last_name" json:"last_name"`
	Username      string     `db:"username" json:"username"`
	Name          string     `db:"name" json:"name"`
	Style         Style      `db:"style" json:"style"`
	Verbosity     Verbosity  `db:"verbosity" json:"verbosity"`
	FreeLeft      int        `db:"free_left" json:"free_left"`
	SubUntil      *time.Time `db:"sub_until" json:"sub_until,omitempty"`
	TZ            string     `db:"tz" json:"tz"`
	TotalMessages int        `db:"total_messages" json:"total_messages"`
	Memory        Facts      `db:"memory" json:"memory"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	LastActiveAt  *time.Time `db:"last_active_at" json:"last_active_at,omitempty"`
}

// IsSubscribed reports whether the paid period is still running at now.
func (u *User) IsSubscribed(now time.Time) bool {
	return u != nil && u.SubUntil != nil && u.SubUntil.After(now)
}

// CanChat reports whether the user may send a message to the model.
func (u *User) CanChat(now time.Time) bool {
	return u.IsSubscribed(now) || (u != nil && u.FreeLeft > 0)
}

// DaysKnown is the number of whole days since the first contact.
func (u *User) DaysKnown(now time.Time) int {
	if u == nil || u.CreatedAt.IsZero() || now.Before(u.CreatedAt) {
		return 0
	}
	return int(now.Sub(u.CreatedAt).Hours() / 24)
}

// Facts are remembered key/value details about a user, stored as JSON.
type Facts map[string]string

// Scan implements sql.Scanner.
func (f *Facts) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*f = Facts{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("facts: unsupported source %T", src)
	}

	if len(raw) == 0 {
		*f = Facts{}
		return nil
	}

	out := Facts{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("facts: %w", err)
	}
	*f = out
	return nil
}

// Value implements driver.Valuer.
func (f Facts) Value() (driver.Value, error) {
	if f == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(map[string]string(f))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}
