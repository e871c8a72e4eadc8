package persona

import (
	"strings"

	"github.com/Proton-105/alina-bot/internal/domain"
)

type EmotionKind string

const (
	EmotionNeutral   EmotionKind = "neutral"
	EmotionPositive  EmotionKind = "positive"
	EmotionNegative  EmotionKind = "negative"
	EmotionSensitive EmotionKind = "sensitive"
)

// Emotion is the detected emotional context of a message.
type Emotion struct {
	Kind     EmotionKind
	Category string
}

// Delicate reports whether the reply must stay careful and emoji-free.
func (e Emotion) Delicate() bool {
	return e.Kind == EmotionSensitive || e.Kind == EmotionNegative
}

type Topic string

const (
	TopicWeather       Topic = "weather"
	TopicWork          Topic = "work"
	TopicRelationships Topic = "relationships"
	TopicTech          Topic = "tech"
	TopicPhilosophy    Topic = "philosophy"
	TopicSmallTalk     Topic = "small_talk"
	TopicFood          Topic = "food"
	TopicEntertainment Topic = "entertainment"
)

// Classifier runs keyword heuristics against the active tables.
type Classifier struct {
	store *Store
}

func NewClassifier(store *Store) *Classifier {
	return &Classifier{store: store}
}

// Emotion returns the first matching bucket. Buckets are checked positive, then negative,
// then sensitive, regardless of their order in the table file.
func (c *Classifier) Emotion(text string) Emotion {
	lower := strings.ToLower(text)
	buckets := c.store.Tables().Emotions

	for _, kind := range []EmotionKind{EmotionPositive, EmotionNegative, EmotionSensitive} {
		for _, b := range buckets {
			if b.Kind == kind && containsAny(lower, b.Keywords) {
				return Emotion{Kind: kind, Category: b.Category}
			}
		}
	}
	return Emotion{Kind: EmotionNeutral}
}

// Topic returns the first topic bucket whose keywords occur in text.
func (c *Classifier) Topic(text string) (Topic, bool) {
	lower := strings.ToLower(text)
	for _, b := range c.store.Tables().Topics {
		if containsAny(lower, b.Keywords) {
			return b.Name, true
		}
	}
	return "", false
}

// IsTech reports whether text looks like a technical question.
func (c *Classifier) IsTech(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return containsAny(strings.ToLower(text), c.store.Tables().TechKeywords)
}

// EffectiveVerbosity forces short replies to technical questions.
func (c *Classifier) EffectiveVerbosity(stored domain.Verbosity, text string) domain.Verbosity {
	if c.IsTech(text) {
		return domain.VerbosityShort
	}
	if stored == "" {
		return domain.VerbosityNormal
	}
	return stored
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
