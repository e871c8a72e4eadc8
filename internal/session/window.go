// Package session keeps bounded per-user conversational windows: recent messages for spam
// detection, topic counters and the emoji streak.
package session

import (
	"context"
	"strings"
	"time"
)

// WindowSize is how many recent normalized messages are remembered per user.
const WindowSize = 5

// Window is the rolling conversational state of one user.
type Window struct {
	Recent            []string       `json:"recent"`
	Topics            map[string]int `json:"topics"`
	LastReplyHadEmoji bool           `json:"last_reply_had_emoji"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Observation is what the window reports about an incoming message.
type Observation struct {
	// SpamLevel counts identical normalized messages already in the window.
	SpamLevel         int
	TopicCounts       map[string]int
	LastReplyHadEmoji bool
}

// Store persists windows keyed by user.
type Store interface {
	Observe(ctx context.Context, userID int64, text, topic string) (Observation, error)
	MarkReply(ctx context.Context, userID int64, hadEmoji bool) error
	Get(ctx context.Context, userID int64) (Window, error)
}

// Normalize lower-cases and trims a message for repeat detection.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func newWindow() *Window {
	return &Window{Recent: make([]string, 0, WindowSize), Topics: map[string]int{}}
}

// observe counts repeats before appending so the first copy of a message has level 0.
func (w *Window) observe(text, topic string, now time.Time) Observation {
	normalized := Normalize(text)

	level := 0
	for _, m := range w.Recent {
		if m == normalized {
			level++
		}
	}

	w.Recent = append(w.Recent, normalized)
	if len(w.Recent) > WindowSize {
		w.Recent = append(w.Recent[:0], w.Recent[len(w.Recent)-WindowSize:]...)
	}

	if w.Topics == nil {
		w.Topics = map[string]int{}
	}
	if topic != "" {
		w.Topics[topic]++
	}
	w.UpdatedAt = now

	return Observation{
		SpamLevel:         level,
		TopicCounts:       w.topicsCopy(),
		LastReplyHadEmoji: w.LastReplyHadEmoji,
	}
}

func (w *Window) topicsCopy() map[string]int {
	out := make(map[string]int, len(w.Topics))
	for k, v := range w.Topics {
		out[k] = v
	}
	return out
}

func (w *Window) clone() Window {
	c := *w
	c.Recent = append([]string(nil), w.Recent...)
	c.Topics = w.topicsCopy()
	return c
}
