package handlers

import (
	"strconv"
	"time"

	"github.com/Proton-105/alina-bot/internal/domain"
	"github.com/Proton-105/alina-bot/internal/i18n"
)

// FormatDate renders a moment as "5 марта 2025, 14:30 (UTC)".
func FormatDate(t i18n.Translator, at time.Time) string {
	at = at.UTC()
	return t.Tf("date.format", i18n.Vars{
		"day":   strconv.Itoa(at.Day()),
		"month": t.T("date.months." + strconv.Itoa(int(at.Month()))),
		"year":  strconv.Itoa(at.Year()),
		"time":  at.Format("15:04"),
	})
}

// HumanizeDuration renders the time left as days and hours, hours and minutes, or minutes.
func HumanizeDuration(t i18n.Translator, d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)

	switch {
	case days > 0:
		return t.Tf("duration.days", i18n.Vars{"days": strconv.Itoa(days), "hours": strconv.Itoa(hours)})
	case hours > 0:
		return t.Tf("duration.hours", i18n.Vars{"hours": strconv.Itoa(hours), "minutes": strconv.Itoa(minutes)})
	default:
		return t.Tf("duration.minutes", i18n.Vars{"minutes": strconv.Itoa(minutes)})
	}
}

// subscriptionText renders the "<prefix>.active" or "<prefix>.inactive" text for u.
func subscriptionText(t i18n.Translator, prefix string, u *domain.User, now time.Time) string {
	if u.IsSubscribed(now) {
		return t.Tf(prefix+".active", i18n.Vars{
			"until": FormatDate(t, *u.SubUntil),
			"left":  HumanizeDuration(t, u.SubUntil.Sub(now)),
		})
	}
	return t.Tf(prefix+".inactive", i18n.Vars{"free": strconv.Itoa(u.FreeLeft)})
}
