package keyboard

import (
	"fmt"

	telebot "gopkg.in/telebot.v3"
)

// InlineButton is a button definition: either a callback or a URL.
type InlineButton struct {
	Text     string
	Callback Callback
	URL      string
}

// InlineKeyboardBuilder accumulates rows of InlineButton definitions before rendering telebot markup.
type InlineKeyboardBuilder struct {
	rows [][]InlineButton
}

// NewInlineKeyboard creates an empty builder.
func NewInlineKeyboard() *InlineKeyboardBuilder {
	return &InlineKeyboardBuilder{rows: make([][]InlineButton, 0)}
}

// AddRow appends a new row made of custom InlineButton definitions.
func (b *InlineKeyboardBuilder) AddRow(buttons ...InlineButton) *InlineKeyboardBuilder {
	if len(buttons) == 0 {
		return b
	}

	row := make([]InlineButton, len(buttons))
	copy(row, buttons)
	b.rows = append(b.rows, row)
	return b
}

// Build encodes every callback and returns the markup. Unique is left empty so the raw
// data reaches the OnCallback handler unchanged.
func (b *InlineKeyboardBuilder) Build() (*telebot.ReplyMarkup, error) {
	inlineKeyboard := make([][]telebot.InlineButton, len(b.rows))
	for i, row := range b.rows {
		inlineKeyboard[i] = make([]telebot.InlineButton, len(row))
		for j, btn := range row {
			out := telebot.InlineButton{Text: btn.Text}
			switch {
			case btn.URL != "":
				out.URL = btn.URL
			case btn.Callback != nil:
				data, err := Encode(btn.Callback)
				if err != nil {
					return nil, fmt.Errorf("button %q: %w", btn.Text, err)
				}
				out.Data = data
			default:
				return nil, fmt.Errorf("button %q has neither callback nor url", btn.Text)
			}
			inlineKeyboard[i][j] = out
		}
	}

	return &telebot.ReplyMarkup{InlineKeyboard: inlineKeyboard}, nil
}
