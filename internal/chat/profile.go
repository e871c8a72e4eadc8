package chat

import (
	"context"
	"strings"

	"github.com/Proton-105/alina-bot/internal/domain"
)

var profileTriggers = []string{"нежно", "по делу", "по-деловому", "коротко", "средне", "подробно", "развёрну", "зови меня"}

const callMePhrase = "зови меня"

// ProfilePhrase is a preference change parsed from free text. Empty fields mean no change.
type ProfilePhrase struct {
	Style     domain.Style
	Verbosity domain.Verbosity
	Name      string
}

func (p ProfilePhrase) Empty() bool {
	return p.Style == "" && p.Verbosity == "" && p.Name == ""
}

// ParseProfilePhrase recognizes shortcuts such as "нежно", "по делу", "коротко", "подробно"
// and "зови меня <имя>". Later keywords in the list win when several match.
func ParseProfilePhrase(text string) ProfilePhrase {
	lower := strings.ToLower(text)
	var p ProfilePhrase

	if strings.Contains(lower, "нежно") {
		p.Style = domain.StyleGentle
	}
	if strings.Contains(lower, "по делу") || strings.Contains(lower, "по-деловому") {
		p.Style = domain.StyleDirect
	}
	if strings.Contains(lower, "коротко") {
		p.Verbosity = domain.VerbosityShort
	}
	if strings.Contains(lower, "средне") {
		p.Verbosity = domain.VerbosityNormal
	}
	if strings.Contains(lower, "подробно") || strings.Contains(lower, "развёрну") {
		p.Verbosity = domain.VerbosityLong
	}
	if idx := strings.Index(lower, callMePhrase); idx >= 0 {
		source := text
		if len(lower) != len(text) {
			source = lower
		}
		rest := source[idx+len(callMePhrase):]
		p.Name = strings.Trim(rest, " :,.!?\n\t")
	}
	return p
}

// HasProfileTrigger reports whether text mentions any profile shortcut.
func HasProfileTrigger(text string) bool {
	lower := strings.ToLower(text)
	for _, t := range profileTriggers {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// ApplyProfilePhrase stores any preference found in text. The returned phrase is empty when
// nothing was recognized and the text should go to the model instead.
func (s *Service) ApplyProfilePhrase(ctx context.Context, userID int64, text string) (ProfilePhrase, error) {
	if !HasProfileTrigger(text) {
		return ProfilePhrase{}, nil
	}

	p := ParseProfilePhrase(text)
	if p.Name != "" {
		if err := s.deps.Users.SetName(ctx, userID, p.Name); err != nil {
			return ProfilePhrase{}, err
		}
	}
	if p.Style != "" {
		if err := s.deps.Users.SetStyle(ctx, userID, p.Style); err != nil {
			return ProfilePhrase{}, err
		}
	}
	if p.Verbosity != "" {
		if err := s.deps.Users.SetVerbosity(ctx, userID, p.Verbosity); err != nil {
			return ProfilePhrase{}, err
		}
	}
	return p, nil
}
