package keyboard_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/alina-bot/internal/bot/keyboard"
)

func TestInlineKeyboardBuilder(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		markup, err := keyboard.NewInlineKeyboard().
			AddRow(
				keyboard.InlineButton{Text: "on", Callback: keyboard.ReminderToggle{ID: 1}},
				keyboard.InlineButton{Text: "🗑", Callback: keyboard.ReminderDelete{ID: 1}},
			).
			AddRow().
			AddRow(keyboard.InlineButton{Text: "pay", URL: "https://example.com/pay"}).
			Build()
		require.NoError(t, err)

		require.Len(t, markup.InlineKeyboard, 2)
		require.Len(t, markup.InlineKeyboard[0], 2)
		assert.Equal(t, "rem|toggle|1", markup.InlineKeyboard[0][0].Data)
		assert.Empty(t, markup.InlineKeyboard[0][0].Unique)
		assert.Equal(t, "rem|del|1", markup.InlineKeyboard[0][1].Data)
		assert.Equal(t, "https://example.com/pay", markup.InlineKeyboard[1][0].URL)
		assert.Empty(t, markup.InlineKeyboard[1][0].Data)
	})

	t.Run("callback data overflow", func(t *testing.T) {
		_, err := keyboard.NewInlineKeyboard().
			AddRow(keyboard.InlineButton{Text: "too big", Callback: keyboard.Mood{Label: strings.Repeat("x", keyboard.CallbackDataLimitBytes)}}).
			Build()
		assert.ErrorIs(t, err, keyboard.ErrCallbackTooLong)
	})

	t.Run("empty button", func(t *testing.T) {
		_, err := keyboard.NewInlineKeyboard().AddRow(keyboard.InlineButton{Text: "nothing"}).Build()
		assert.Error(t, err)
	})
}
