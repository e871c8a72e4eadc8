// Package keyboard defines the inline button payloads and the keyboards built from them.
package keyboard

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Proton-105/alina-bot/internal/domain"
	"github.com/Proton-105/alina-bot/internal/payment"
)

// CallbackDataLimitBytes is the Telegram limit for callback_data.
const CallbackDataLimitBytes = 64

const (
	fieldSeparator = "|"
	planSeparator  = ":"

	prefixMood      = "mood"
	prefixReminder  = "rem"
	prefixPayStars  = "pay_stars"
	prefixPayCard   = "pay_card"
	actionToggle    = "toggle"
	actionDelete    = "del"
	actionAdd       = "add"
	customTimeToken = "custom"
)

var (
	// ErrUnknownCallback is returned for data no button of this bot produces.
	ErrUnknownCallback = errors.New("unknown callback data")
	// ErrCallbackTooLong is returned when encoded data exceeds CallbackDataLimitBytes.
	ErrCallbackTooLong = errors.New("callback data exceeds limit")
)

// Callback is the decoded payload of an inline button. The concrete types below are the
// only implementations.
type Callback interface {
	encode() string
}

// Mood is a mood button press.
type Mood struct {
	Label string
}

// ReminderToggle flips a reminder on or off.
type ReminderToggle struct {
	ID int64
}

// ReminderDelete removes a reminder.
type ReminderDelete struct {
	ID int64
}

// ReminderAdd creates a reminder of Type at Time (HH:MM).
type ReminderAdd struct {
	Type domain.ReminderType
	Time string
}

// ReminderCustom asks the user to type a time for a new reminder.
type ReminderCustom struct{}

// PayStars opens a Stars invoice for a plan.
type PayStars struct {
	Plan payment.PlanID
}

// PayCard opens the card payment link for a plan.
type PayCard struct {
	Plan payment.PlanID
}

func (m Mood) encode() string { return prefixMood + fieldSeparator + m.Label }

func (r ReminderToggle) encode() string {
	return join(prefixReminder, actionToggle, strconv.FormatInt(r.ID, 10))
}

func (r ReminderDelete) encode() string {
	return join(prefixReminder, actionDelete, strconv.FormatInt(r.ID, 10))
}

func (r ReminderAdd) encode() string {
	return join(prefixReminder, actionAdd, string(r.Type), compactTime(r.Time))
}

func (ReminderCustom) encode() string { return join(prefixReminder, actionAdd, customTimeToken) }

func (p PayStars) encode() string { return prefixPayStars + planSeparator + string(p.Plan) }

func (p PayCard) encode() string { return prefixPayCard + planSeparator + string(p.Plan) }

// Encode renders cb as callback data.
func Encode(cb Callback) (string, error) {
	if cb == nil {
		return "", fmt.Errorf("encode callback: %w", ErrUnknownCallback)
	}

	data := cb.encode()
	if len(data) > CallbackDataLimitBytes {
		return "", fmt.Errorf("encode %q: %w: got %d bytes", data, ErrCallbackTooLong, len(data))
	}
	return data, nil
}

// ParseCallback decodes callback data produced by Encode.
func ParseCallback(data string) (Callback, error) {
	if data == "" || len(data) > CallbackDataLimitBytes {
		return nil, fmt.Errorf("parse %q: %w", data, ErrUnknownCallback)
	}

	if plan, ok := strings.CutPrefix(data, prefixPayStars+planSeparator); ok && plan != "" {
		return PayStars{Plan: payment.PlanID(plan)}, nil
	}
	if plan, ok := strings.CutPrefix(data, prefixPayCard+planSeparator); ok && plan != "" {
		return PayCard{Plan: payment.PlanID(plan)}, nil
	}

	parts := strings.Split(data, fieldSeparator)
	switch {
	case parts[0] == prefixMood && len(parts) == 2 && parts[1] != "":
		return Mood{Label: parts[1]}, nil
	case parts[0] == prefixReminder && len(parts) >= 3:
		if cb, ok := parseReminder(parts[1:]); ok {
			return cb, nil
		}
	}

	return nil, fmt.Errorf("parse %q: %w", data, ErrUnknownCallback)
}

func parseReminder(parts []string) (Callback, bool) {
	switch parts[0] {
	case actionToggle, actionDelete:
		if len(parts) != 2 {
			return nil, false
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || id <= 0 {
			return nil, false
		}
		if parts[0] == actionToggle {
			return ReminderToggle{ID: id}, true
		}
		return ReminderDelete{ID: id}, true

	case actionAdd:
		if len(parts) == 2 && parts[1] == customTimeToken {
			return ReminderCustom{}, true
		}
		if len(parts) != 3 {
			return nil, false
		}
		rtype := domain.ReminderType(parts[1])
		if !rtype.Valid() {
			return nil, false
		}
		hhmm, ok := expandTime(parts[2])
		if !ok {
			return nil, false
		}
		return ReminderAdd{Type: rtype, Time: hhmm}, true
	}

	return nil, false
}

func join(parts ...string) string {
	return strings.Join(parts, fieldSeparator)
}

// compactTime turns "09:00" into "0900".
func compactTime(hhmm string) string {
	hour, minute, err := domain.ParseLocalTime(hhmm)
	if err != nil {
		return strings.ReplaceAll(hhmm, ":", "")
	}
	return fmt.Sprintf("%02d%02d", hour, minute)
}

// expandTime turns "0900" or "900" back into "09:00".
func expandTime(compact string) (string, bool) {
	if len(compact) < 3 || len(compact) > 4 {
		return "", false
	}
	for _, r := range compact {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	compact = strings.Repeat("0", 4-len(compact)) + compact

	hhmm := compact[:2] + ":" + compact[2:]
	hour, minute, err := domain.ParseLocalTime(hhmm)
	if err != nil {
		return "", false
	}
	return domain.FormatLocalTime(hour, minute), true
}
