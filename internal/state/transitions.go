package state

// validTransitions lists which awaiting-input prompts may open from each state.
// Reopening the same prompt is allowed so a repeated /tz simply asks again.
var validTransitions = map[State][]State{
	StateIdle: {
		StateAwaitingTimezone,
		StateAwaitingReminderTime,
	},
	StateAwaitingTimezone: {
		StateAwaitingTimezone,
		StateAwaitingReminderTime,
	},
	StateAwaitingReminderTime: {
		StateAwaitingReminderTime,
		StateAwaitingTimezone,
	},
	StateError: {
		StateAwaitingTimezone,
		StateAwaitingReminderTime,
	},
}

// IsTransitionAllowed reports whether moving from one state to another is valid.
// Returning to idle or error is always allowed.
func IsTransitionAllowed(from, to State) bool {
	if to == StateError || to == StateIdle {
		return true
	}

	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}
