// Package persona turns conversational state into the system prompt that shapes Alina's replies.
package persona

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed assets/keywords.yaml
var embeddedTables []byte

// Tables is the data-driven part of the persona: prompt fragments and keyword buckets.
type Tables struct {
	Persona          string            `yaml:"persona"`
	RefusalStyle     string            `yaml:"refusal_style"`
	AvoidPatterns    string            `yaml:"avoid_patterns"`
	TechBoundary     string            `yaml:"tech_boundary"`
	TechReminder     string            `yaml:"tech_reminder"`
	AddressedName    string            `yaml:"addressed_name"`
	Shorter          string            `yaml:"shorter"`
	StyleHints       map[string]string `yaml:"style_hints"`
	VerbosityHints   map[string]string `yaml:"verbosity_hints"`
	Stages           map[string]string `yaml:"stages"`
	SensitiveWarning string            `yaml:"sensitive_warning"`
	NegativeWarning  string            `yaml:"negative_warning"`
	TimeLine         string            `yaml:"time_line"`
	FatigueLine      string            `yaml:"fatigue_line"`
	SpamLine         string            `yaml:"spam_line"`
	MemoryHeader     string            `yaml:"memory_header"`
	EmojiRules       string            `yaml:"emoji_rules"`

	Emotions     []EmotionBucket         `yaml:"emotions"`
	Topics       []TopicBucket           `yaml:"topics"`
	TechKeywords []string                `yaml:"tech_keywords"`
	DayParts     map[string]DayPartTable `yaml:"day_parts"`
	SpamReplies  SpamTable               `yaml:"spam_replies"`
	Fallbacks    FallbackTable           `yaml:"fallbacks"`
	Moods        map[string]string       `yaml:"moods"`
}

// EmotionBucket maps keywords to an emotion kind and sub-category.
type EmotionBucket struct {
	Kind     EmotionKind `yaml:"kind"`
	Category string      `yaml:"category"`
	Keywords []string    `yaml:"keywords"`
}

// TopicBucket maps keywords to a topic; Fatigue is the redirect line used when the topic is overused.
type TopicBucket struct {
	Name     Topic    `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Fatigue  string   `yaml:"fatigue"`
}

type DayPartTable struct {
	Energy  string   `yaml:"energy"`
	Mood    string   `yaml:"mood"`
	Details []string `yaml:"details"`
}

type SpamTable struct {
	Levels [][]string `yaml:"levels"`
	Over   []string   `yaml:"over"`
}

type FallbackTable struct {
	Close   []string `yaml:"close"`
	Distant []string `yaml:"distant"`
}

// DefaultTables parses the tables compiled into the binary.
func DefaultTables() (*Tables, error) {
	return ParseTables(embeddedTables, nil)
}

// ParseTables decodes data on top of base. A nil base starts from an empty table set.
// Keys absent from data keep the values of base.
func ParseTables(data []byte, base *Tables) (*Tables, error) {
	out := &Tables{}
	if base != nil {
		*out = base.clone()
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("persona: parse tables: %w", err)
	}
	out.normalize()

	if err := out.validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadTables reads an override file and applies it on top of the embedded tables.
func LoadTables(path string) (*Tables, error) {
	base, err := DefaultTables()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona: read %s: %w", path, err)
	}
	return ParseTables(data, base)
}

func (t *Tables) normalize() {
	for i := range t.Emotions {
		t.Emotions[i].Keywords = lowerAll(t.Emotions[i].Keywords)
	}
	for i := range t.Topics {
		t.Topics[i].Keywords = lowerAll(t.Topics[i].Keywords)
	}
	t.TechKeywords = lowerAll(t.TechKeywords)
}

func (t *Tables) validate() error {
	var errs []error

	if strings.TrimSpace(t.Persona) == "" {
		errs = append(errs, errors.New("persona text is empty"))
	}
	for _, stage := range AllStages {
		if t.Stages[string(stage)] == "" {
			errs = append(errs, fmt.Errorf("stage line %q is missing", stage))
		}
	}
	for _, name := range dayPartNames {
		if len(t.DayParts[name].Details) == 0 {
			errs = append(errs, fmt.Errorf("day part %q has no details", name))
		}
	}
	for _, b := range t.Emotions {
		switch b.Kind {
		case EmotionPositive, EmotionNegative, EmotionSensitive:
		default:
			errs = append(errs, fmt.Errorf("emotion bucket %q: unknown kind %q", b.Category, b.Kind))
		}
	}
	if len(t.SpamReplies.Levels) == 0 || len(t.SpamReplies.Over) == 0 {
		errs = append(errs, errors.New("spam replies are missing"))
	}
	if len(t.Fallbacks.Close) == 0 || len(t.Fallbacks.Distant) == 0 {
		errs = append(errs, errors.New("fallback replies are missing"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("persona: invalid tables: %w", errors.Join(errs...))
	}
	return nil
}

func (t *Tables) clone() Tables {
	c := *t
	c.StyleHints = cloneMap(t.StyleHints)
	c.VerbosityHints = cloneMap(t.VerbosityHints)
	c.Stages = cloneMap(t.Stages)
	c.Moods = cloneMap(t.Moods)
	c.Emotions = append([]EmotionBucket(nil), t.Emotions...)
	c.Topics = append([]TopicBucket(nil), t.Topics...)
	c.DayParts = make(map[string]DayPartTable, len(t.DayParts))
	for k, v := range t.DayParts {
		c.DayParts[k] = v
	}
	return c
}

func cloneMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
