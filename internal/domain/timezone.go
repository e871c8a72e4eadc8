package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// DefaultTimezone applies when a user has not set one.
const DefaultTimezone = "UTC"

var utcOffsetRe = regexp.MustCompile(`(?i)^UTC([+-])(\d{1,2})$`)

// ParseTimezone validates user input and returns the stored form: "UTC±N" for fixed offsets,
// otherwise the IANA name as typed.
func ParseTimezone(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("timezone is empty")
	}

	if m := utcOffsetRe.FindStringSubmatch(input); m != nil {
		hours, _ := strconv.Atoi(m[2])
		if hours > 14 {
			return "", fmt.Errorf("timezone %q: offset out of range", input)
		}
		return fmt.Sprintf("UTC%s%d", m[1], hours), nil
	}

	if _, err := time.LoadLocation(input); err != nil {
		return "", fmt.Errorf("timezone %q: %w", input, err)
	}
	return input, nil
}

// IANAName maps a stored timezone to a name usable in CRON_TZ. "UTC+3" becomes "Etc/GMT-3"
// because the Etc zones use inverted signs.
func IANAName(tz string) string {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return DefaultTimezone
	}

	m := utcOffsetRe.FindStringSubmatch(tz)
	if m == nil {
		return tz
	}
	hours, _ := strconv.Atoi(m[2])
	if hours == 0 {
		return DefaultTimezone
	}
	sign := "-"
	if m[1] == "-" {
		sign = "+"
	}
	return fmt.Sprintf("Etc/GMT%s%d", sign, hours)
}

// Location resolves a stored timezone, falling back to UTC for unknown values.
func Location(tz string) *time.Location {
	if m := utcOffsetRe.FindStringSubmatch(strings.TrimSpace(tz)); m != nil {
		hours, _ := strconv.Atoi(m[2])
		offset := hours * 3600
		if m[1] == "-" {
			offset = -offset
		}
		return time.FixedZone(strings.ToUpper(tz), offset)
	}
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
