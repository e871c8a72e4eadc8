package persona

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Proton-105/alina-bot/internal/domain"
)

// Context is the per-message state that shapes the system prompt.
type Context struct {
	Stage      Stage
	Emotion    Emotion
	TimeDetail string
	Fatigue    string
	SpamLevel  int
	Facts      map[string]string
}

// Request carries everything needed to build the model input for one reply.
type Request struct {
	Context   Context
	Name      string
	Style     domain.Style
	Verbosity domain.Verbosity
	Tech      bool
	History   []domain.Message
	Text      string
}

// Assembler renders prompts from the active tables.
type Assembler struct {
	store *Store
}

func NewAssembler(store *Store) *Assembler {
	return &Assembler{store: store}
}

// Build renders the system prompt. Sections always appear in the same order and optional
// ones are omitted when their condition does not hold.
func (a *Assembler) Build(c Context) string {
	t := a.store.Tables()
	parts := []string{strings.TrimSpace(t.Persona)}

	if line := t.Stages[string(c.Stage)]; line != "" {
		parts = append(parts, line)
	} else {
		parts = append(parts, t.Stages[string(StageStranger)])
	}

	switch c.Emotion.Kind {
	case EmotionSensitive:
		parts = append(parts, fmt.Sprintf(t.SensitiveWarning, c.Emotion.Category))
	case EmotionNegative:
		parts = append(parts, fmt.Sprintf(t.NegativeWarning, c.Emotion.Category))
	}

	if c.TimeDetail != "" {
		parts = append(parts, fmt.Sprintf(t.TimeLine, c.TimeDetail))
	}
	if c.Fatigue != "" {
		parts = append(parts, fmt.Sprintf(t.FatigueLine, c.Fatigue))
	}
	if c.SpamLevel > 0 {
		parts = append(parts, fmt.Sprintf(t.SpamLine, c.SpamLevel))
	}
	if block := memoryBlock(t.MemoryHeader, c.Facts); block != "" {
		parts = append(parts, block)
	}

	parts = append(parts, strings.TrimSpace(t.EmojiRules))
	return strings.Join(parts, "\n\n")
}

// Messages returns the full model input: system prompt, style directives, history and the
// current user message.
func (a *Assembler) Messages(req Request) []domain.Turn {
	t := a.store.Tables()

	turns := []domain.Turn{
		{Role: domain.RoleSystem, Content: a.Build(req.Context)},
		{Role: domain.RoleSystem, Content: strings.TrimSpace(t.AvoidPatterns)},
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		turns = append(turns, domain.Turn{Role: domain.RoleSystem, Content: fmt.Sprintf(t.AddressedName, name)})
	}

	hint := strings.TrimSpace(t.StyleHints[string(req.Style)] + " " + t.VerbosityHints[string(req.Verbosity)])
	if hint != "" {
		turns = append(turns, domain.Turn{Role: domain.RoleSystem, Content: hint})
	}

	if req.Tech {
		turns = append(turns,
			domain.Turn{Role: domain.RoleSystem, Content: strings.TrimSpace(t.TechBoundary)},
			domain.Turn{Role: domain.RoleSystem, Content: t.TechReminder},
		)
	}

	for _, m := range req.History {
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			continue
		}
		turns = append(turns, domain.Turn{Role: m.Role, Content: m.Content})
	}

	return append(turns, domain.Turn{Role: domain.RoleUser, Content: req.Text})
}

// RefusalStyle is the safety directive injected ahead of the system prompt.
func (a *Assembler) RefusalStyle() string {
	return strings.TrimSpace(a.store.Tables().RefusalStyle)
}

// ShorterInstruction asks the model to cut a reply that came out too long.
func (a *Assembler) ShorterInstruction() string {
	return a.store.Tables().Shorter
}

// SpamReply returns an in-character reaction to a repeated message, or "" for level 0.
func (a *Assembler) SpamReply(level int, rnd Rand) string {
	if level <= 0 {
		return ""
	}
	spam := a.store.Tables().SpamReplies
	if level > len(spam.Levels) {
		return pick(spam.Over, rnd)
	}
	return pick(spam.Levels[level-1], rnd)
}

// Fallback returns a canned line used when the model is unavailable.
func (a *Assembler) Fallback(stage Stage, rnd Rand) string {
	f := a.store.Tables().Fallbacks
	if stage.IsClose() {
		return pick(f.Close, rnd)
	}
	return pick(f.Distant, rnd)
}

// MoodReply returns the prepared answer for a mood button label.
func (a *Assembler) MoodReply(label string) (string, bool) {
	reply, ok := a.store.Tables().Moods[label]
	return reply, ok && reply != ""
}

func memoryBlock(header string, facts map[string]string) string {
	if len(facts) == 0 {
		return ""
	}

	keys := make([]string, 0, len(facts))
	for k := range facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(header)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s: %s", k, facts[k])
	}
	return b.String()
}

func pick(options []string, rnd Rand) string {
	switch {
	case len(options) == 0:
		return ""
	case rnd == nil:
		return options[0]
	default:
		return options[rnd.Intn(len(options))]
	}
}
