// Package llm talks to chat-completion backends on behalf of the conversation service.
package llm

import (
	"context"

	"github.com/Proton-105/alina-bot/internal/domain"
)

// Profile is the sampling setup for one verbosity level.
type Profile struct {
	MaxTokens   int
	Temperature float64
}

// DefaultProfile applies when the verbosity is unknown.
var DefaultProfile = Profile{MaxTokens: 700, Temperature: 0.85}

var profiles = map[domain.Verbosity]Profile{
	domain.VerbosityShort:  {MaxTokens: 280, Temperature: 0.9},
	domain.VerbosityNormal: {MaxTokens: 600, Temperature: 0.85},
	domain.VerbosityLong:   {MaxTokens: 900, Temperature: 0.8},
}

// ProfileFor returns the sampling profile for v.
func ProfileFor(v domain.Verbosity) Profile {
	if p, ok := profiles[v]; ok {
		return p
	}
	return DefaultProfile
}

// Fact is something the model asked to remember about the user.
type Fact struct {
	Key        string `json:"key"`
	Value      string `json:"value"`
	Importance string `json:"importance,omitempty"`
}

// RememberFunc persists a fact reported through the remember_user_info tool.
type RememberFunc func(ctx context.Context, fact Fact) error

// Request is one completion call.
type Request struct {
	UserID    int64
	Turns     []domain.Turn
	Verbosity domain.Verbosity
	// Safety is a system message placed before the first system turn.
	Safety string
	// Remember enables the remember_user_info tool when set.
	Remember RememberFunc
}

// Response is the raw model text with call details.
type Response struct {
	Text       string
	Provider   string
	Model      string
	Remembered []Fact
}

// Provider is a chat-completion backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// WithSafety returns turns with a safety system message inserted before the first system
// turn, or at the front when there is none.
func WithSafety(turns []domain.Turn, safety string) []domain.Turn {
	if safety == "" {
		return turns
	}

	idx := 0
	for i, t := range turns {
		if t.Role == domain.RoleSystem {
			idx = i
			break
		}
	}

	out := make([]domain.Turn, 0, len(turns)+1)
	out = append(out, turns[:idx]...)
	out = append(out, domain.Turn{Role: domain.RoleSystem, Content: safety})
	return append(out, turns[idx:]...)
}
