package keyboard

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/domain"
	"github.com/Proton-105/alina-bot/internal/i18n"
	"github.com/Proton-105/alina-bot/internal/payment"
)

// MoodLabels are the mood buttons in display order, two rows of three.
var MoodLabels = []string{"тревожно", "грустно", "злюсь", "устал", "нормально", "окрылён"}

var presetReminders = []struct {
	key string
	add ReminderAdd
}{
	{"reminders.add_morning", ReminderAdd{Type: domain.ReminderMorning, Time: "09:00"}},
	{"reminders.add_evening", ReminderAdd{Type: domain.ReminderEvening, Time: "21:00"}},
}

// Builder renders the bot keyboards with localized labels.
type Builder struct {
	t i18n.Translator
}

// NewBuilder returns a new Builder instance.
func NewBuilder(t i18n.Translator) *Builder {
	return &Builder{t: t}
}

func (b *Builder) text(key string) string {
	if b.t == nil {
		return key
	}
	return b.t.T(key)
}

// Mood builds the six mood buttons.
func (b *Builder) Mood() (*telebot.ReplyMarkup, error) {
	kb := NewInlineKeyboard()
	for start := 0; start < len(MoodLabels); start += 3 {
		end := min(start+3, len(MoodLabels))
		row := make([]InlineButton, 0, 3)
		for _, label := range MoodLabels[start:end] {
			row = append(row, InlineButton{Text: b.text("mood.labels." + label), Callback: Mood{Label: label}})
		}
		kb.AddRow(row...)
	}
	return kb.Build()
}

// Reminders lists each reminder with a toggle and a delete button, then the add buttons.
func (b *Builder) Reminders(list []domain.Reminder) (*telebot.ReplyMarkup, error) {
	kb := NewInlineKeyboard()
	for _, r := range list {
		state := b.text("reminders.off")
		if r.Active {
			state = b.text("reminders.on")
		}
		rtype := r.Type
		if rtype == "" {
			rtype = domain.ReminderCheckin
		}

		label := b.text("reminders.row")
		if b.t != nil {
			label = b.t.Tf("reminders.row", i18n.Vars{"time": r.TimeLocal, "state": state, "type": string(rtype)})
		}
		kb.AddRow(
			InlineButton{Text: label, Callback: ReminderToggle{ID: r.ID}},
			InlineButton{Text: "🗑", Callback: ReminderDelete{ID: r.ID}},
		)
	}

	for _, preset := range presetReminders {
		kb.AddRow(InlineButton{Text: b.text(preset.key), Callback: preset.add})
	}
	kb.AddRow(InlineButton{Text: b.text("reminders.add_custom"), Callback: ReminderCustom{}})

	return kb.Build()
}

// Plans offers one Stars button per plan and, when card payments are on, a card button.
func (b *Builder) Plans(plans []payment.Plan, card bool) (*telebot.ReplyMarkup, error) {
	kb := NewInlineKeyboard()
	for _, p := range plans {
		kb.AddRow(InlineButton{Text: b.text("subscribe.plans." + string(p.ID)), Callback: PayStars{Plan: p.ID}})
	}
	if card {
		kb.AddRow(InlineButton{Text: b.text("subscribe.card_button"), Callback: PayCard{Plan: payment.PlanMonth}})
	}
	return kb.Build()
}

// Renewal is the plan keyboard sent with the renewal reminder.
func (b *Builder) Renewal(plans []payment.Plan) (*telebot.ReplyMarkup, error) {
	kb := NewInlineKeyboard()
	for _, p := range plans {
		kb.AddRow(InlineButton{Text: b.text("renewal." + string(p.ID)), Callback: PayStars{Plan: p.ID}})
	}
	return kb.Build()
}

// CardLink is a single URL button to the card payment page.
func (b *Builder) CardLink(url string) (*telebot.ReplyMarkup, error) {
	return NewInlineKeyboard().
		AddRow(InlineButton{Text: b.text("subscribe.card_open"), URL: url}).
		Build()
}
