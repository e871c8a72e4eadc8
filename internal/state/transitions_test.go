package state

import "testing"

func TestIsTransitionAllowed(t *testing.T) {
	testCases := []struct {
		name     string
		from     State
		to       State
		expected bool
	}{
		{name: "idle to awaiting timezone", from: StateIdle, to: StateAwaitingTimezone, expected: true},
		{name: "idle to awaiting reminder time", from: StateIdle, to: StateAwaitingReminderTime, expected: true},
		{name: "timezone prompt to reminder prompt", from: StateAwaitingTimezone, to: StateAwaitingReminderTime, expected: true},
		{name: "reminder prompt back to idle", from: StateAwaitingReminderTime, to: StateIdle, expected: true},
		{name: "reopening the same prompt", from: StateAwaitingTimezone, to: StateAwaitingTimezone, expected: true},
		{name: "error state can prompt again", from: StateError, to: StateAwaitingReminderTime, expected: true},
		{name: "unknown target invalid", from: StateIdle, to: State("awaiting_payment"), expected: false},
		{name: "unknown source invalid", from: State("unknown"), to: StateAwaitingTimezone, expected: false},
		{name: "any state to idle emergency", from: State("whatever"), to: StateIdle, expected: true},
		{name: "any state to error emergency", from: StateAwaitingTimezone, to: StateError, expected: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if actual := IsTransitionAllowed(tc.from, tc.to); actual != tc.expected {
				t.Errorf("IsTransitionAllowed(%s -> %s) = %t, expected %t", tc.from, tc.to, actual, tc.expected)
			}
		})
	}
}
