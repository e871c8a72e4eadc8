package domain

import (
	"fmt"
	"regexp"
	"strconv"
)

type ReminderType string

const (
	ReminderCheckin ReminderType = "checkin"
	ReminderCare    ReminderType = "care"
	ReminderMorning ReminderType = "morning"
	ReminderEvening ReminderType = "evening"
)

// Valid reports whether t is a known reminder type.
func (t ReminderType) Valid() bool {
	switch t {
	case ReminderCheckin, ReminderCare, ReminderMorning, ReminderEvening:
		return true
	}
	return false
}

// Reminder is a daily proactive message at a local wall-clock time.
type Reminder struct {
	ID        int64        `db:"id"`
	UserID    int64        `db:"user_id"`
	Type      ReminderType `db:"rtype"`
	TimeLocal string       `db:"time_local"`
	Active    bool         `db:"active"`
}

var localTimeRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseLocalTime parses "H:MM" or "HH:MM" with hour 0-23 and minute 0-59.
func ParseLocalTime(s string) (hour, minute int, err error) {
	m := localTimeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("time %q: want HH:MM", s)
	}

	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("time %q: out of range", s)
	}

	return hour, minute, nil
}

// FormatLocalTime renders hour and minute as HH:MM.
func FormatLocalTime(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}
