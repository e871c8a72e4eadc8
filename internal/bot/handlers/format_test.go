package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/alina-bot/internal/chat"
	"github.com/Proton-105/alina-bot/internal/domain"
	"github.com/Proton-105/alina-bot/internal/i18n"
)

func translator(t *testing.T) i18n.Translator {
	t.Helper()
	m, err := i18n.Load("", "ru")
	require.NoError(t, err)
	return m.Translator("ru")
}

func TestFormatDate(t *testing.T) {
	tr := translator(t)
	moscow := time.FixedZone("MSK", 3*3600)

	assert.Equal(t, "5 марта 2025, 14:30 (UTC)", FormatDate(tr, time.Date(2025, 3, 5, 14, 30, 0, 0, time.UTC)))
	assert.Equal(t, "31 декабря 2024, 22:00 (UTC)", FormatDate(tr, time.Date(2025, 1, 1, 1, 0, 0, 0, moscow)))
}

func TestHumanizeDuration(t *testing.T) {
	tr := translator(t)

	tests := []struct {
		in   time.Duration
		want string
	}{
		{50 * time.Hour, "2 дн. 2 ч."},
		{3*time.Hour + 15*time.Minute, "3 ч. 15 мин."},
		{42 * time.Minute, "42 мин."},
		{-time.Hour, "0 мин."},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, HumanizeDuration(tr, tt.in))
		})
	}
}

func TestSubscriptionText(t *testing.T) {
	tr := translator(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	expired := &domain.User{ID: 1, FreeLeft: 3, SubUntil: &past}
	assert.Contains(t, subscriptionText(tr, "status", expired, now), "бесплатных сообщений: 3")

	until := now.Add(90 * time.Minute)
	active := &domain.User{ID: 1, SubUntil: &until}
	text := subscriptionText(tr, "status", active, now)
	assert.Contains(t, text, "до: 1 марта 2025, 13:30 (UTC)")
	assert.Contains(t, text, "осталось: 1 ч. 30 мин.")
}

func TestProfileDone(t *testing.T) {
	tr := translator(t)

	got := profileDone(tr, chat.ProfilePhrase{Name: "Ася", Style: domain.StyleDirect, Verbosity: domain.VerbosityShort})
	assert.Equal(t, "готово: буду звать тебя Ася, настроила стиль, подобрала длину 💛", got)

	assert.Equal(t, "готово: подобрала длину 💛", profileDone(tr, chat.ProfilePhrase{Verbosity: domain.VerbosityLong}))
}

func TestUserTZ(t *testing.T) {
	assert.Equal(t, domain.DefaultTimezone, userTZ(nil))
	assert.Equal(t, domain.DefaultTimezone, userTZ(&domain.User{}))
	assert.Equal(t, "Europe/Madrid", userTZ(&domain.User{TZ: "Europe/Madrid"}))
}
