package state

import "time"

// State names what kind of free-text input the bot is waiting for from a user.
type State string

const (
	// StateIdle means free text goes to the conversation.
	StateIdle State = "idle"
	// StateAwaitingTimezone means the next text is parsed as a timezone.
	StateAwaitingTimezone State = "awaiting_timezone"
	// StateAwaitingReminderTime means the next text is parsed as HH:MM for a custom reminder.
	StateAwaitingReminderTime State = "awaiting_reminder_time"
	// StateError marks a user whose input flow failed and must be reset.
	StateError State = "error"
)

// AllStates lists every state for gauges and validation.
var AllStates = []State{
	StateIdle,
	StateAwaitingTimezone,
	StateAwaitingReminderTime,
	StateError,
}

// UserState captures the current awaiting-input state for a Telegram user.
type UserState struct {
	UserID       int64                  `json:"user_id"`
	CurrentState State                  `json:"current_state"`
	Context      map[string]interface{} `json:"context,omitempty"`
	UpdatedAt    time.Time              `json:"updated_at"`
}
