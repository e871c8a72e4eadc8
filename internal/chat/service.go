// Package chat runs the inbound text pipeline: access, heuristics, model call and reply cleanup.
package chat

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
	"unicode/utf8"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/domain"
	"github.com/Proton-105/alina-bot/internal/llm"
	"github.com/Proton-105/alina-bot/internal/persona"
	"github.com/Proton-105/alina-bot/internal/reply"
	"github.com/Proton-105/alina-bot/internal/repository"
	"github.com/Proton-105/alina-bot/internal/session"
	"github.com/Proton-105/alina-bot/internal/user"
	"github.com/Proton-105/alina-bot/pkg/metrics"
)

const (
	// SpamCutoff is the spam level at which the model is no longer called. The window holds
	// five messages, so the level saturates here.
	SpamCutoff = session.WindowSize

	trimThreshold = 150
)

// Users is the subset of the user service the pipeline needs.
type Users interface {
	GetOrCreate(ctx context.Context, telegramUser *telebot.User) (*domain.User, error)
	ConsumeMessage(ctx context.Context, u *domain.User) (user.Access, error)
	RecordMessage(ctx context.Context, userID int64) (int, error)
	Remember(ctx context.Context, userID int64, key, value string) error
	SetStyle(ctx context.Context, userID int64, style domain.Style) error
	SetVerbosity(ctx context.Context, userID int64, verbosity domain.Verbosity) error
	SetName(ctx context.Context, userID int64, name string) error
}

// Completer produces model replies.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Trimmer schedules history trimming for a user.
type Trimmer interface {
	EnqueueTrim(ctx context.Context, userID int64) error
}

// Deps are the collaborators of Service. Trimmer and Rand are optional.
type Deps struct {
	Users      Users
	Messages   repository.MessageRepository
	Sessions   session.Store
	Classifier *persona.Classifier
	Assembler  *persona.Assembler
	LLM        Completer
	Trimmer    Trimmer
	Rand       persona.Rand
}

// Options tune history and reply length.
type Options struct {
	HistoryLimit  int
	MaxReplyChars int
}

// OutcomeKind tells the caller how a reply was produced.
type OutcomeKind int

const (
	OutcomeReply OutcomeKind = iota
	OutcomeNoAccess
	OutcomeSpam
	OutcomeFallback
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNoAccess:
		return "no_access"
	case OutcomeSpam:
		return "spam"
	case OutcomeFallback:
		return "fallback"
	default:
		return "reply"
	}
}

// Inbound is one free-text message from a user.
type Inbound struct {
	Sender *telebot.User
	Text   string
}

// Outcome is what should be sent back. Text is empty for OutcomeNoAccess.
type Outcome struct {
	Kind   OutcomeKind
	Text   string
	Access user.Access
	User   *domain.User
}

type Service struct {
	deps Deps
	opts Options
	log  *slog.Logger
	now  func() time.Time
}

func NewService(deps Deps, opts Options, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if deps.Rand == nil {
		deps.Rand = NewRand(time.Now().UnixNano())
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	return &Service{
		deps: deps,
		opts: opts,
		log:  log.With(slog.String("component", "chat")),
		now:  time.Now,
	}
}

// Reply handles one inbound message end to end. Model failures never surface as errors; only
// storage failures before the reply is generated do.
func (s *Service) Reply(ctx context.Context, in Inbound) (*Outcome, error) {
	u, err := s.deps.Users.GetOrCreate(ctx, in.Sender)
	if err != nil {
		return nil, err
	}

	// The stored allowance decides early; ConsumeMessage below stays authoritative.
	access := user.AccessFree
	switch {
	case u.IsSubscribed(s.now()):
		access = user.AccessSubscribed
	case u.FreeLeft <= 0:
		metrics.RecordReplyEvent("no_access")
		return &Outcome{Kind: OutcomeNoAccess, Access: user.AccessDenied, User: u}, nil
	}

	emotion := s.deps.Classifier.Emotion(in.Text)
	topic, _ := s.deps.Classifier.Topic(in.Text)
	tech := s.deps.Classifier.IsTech(in.Text)

	obs, err := s.deps.Sessions.Observe(ctx, u.ID, in.Text, string(topic))
	if err != nil {
		s.log.Warn("session observe failed", slog.Int64("user_id", u.ID), slog.Any("error", err))
	}

	// A canned spam reply is not charged against the free allowance.
	if obs.SpamLevel >= SpamCutoff {
		metrics.RecordReplyEvent("spam_cutoff")
		return &Outcome{Kind: OutcomeSpam, Text: s.deps.Assembler.SpamReply(obs.SpamLevel, s.deps.Rand), Access: access, User: u}, nil
	}

	access, err = s.deps.Users.ConsumeMessage(ctx, u)
	if err != nil {
		return nil, err
	}
	if access == user.AccessDenied {
		metrics.RecordReplyEvent("no_access")
		return &Outcome{Kind: OutcomeNoAccess, Access: access, User: u}, nil
	}

	history, err := s.deps.Messages.Recent(ctx, u.ID, s.opts.HistoryLimit)
	if err != nil {
		return nil, err
	}
	if _, err := s.deps.Messages.Append(ctx, u.ID, domain.RoleUser, in.Text); err != nil {
		return nil, err
	}
	total, err := s.deps.Users.RecordMessage(ctx, u.ID)
	if err != nil {
		total = u.TotalMessages + 1
	}
	s.maybeTrim(ctx, u.ID)

	now := s.now()
	stage := persona.RelationshipStage(total, u.DaysKnown(now))
	dayPart := s.deps.Classifier.DayPartAt(now.In(domain.Location(u.TZ)).Hour())
	fatigue, tired := s.deps.Classifier.Fatigue(obs.TopicCounts, s.deps.Rand)
	if tired {
		metrics.RecordReplyEvent("fatigue")
	}
	verbosity := s.deps.Classifier.EffectiveVerbosity(u.Verbosity, in.Text)

	turns := s.deps.Assembler.Messages(persona.Request{
		Context: persona.Context{
			Stage:      stage,
			Emotion:    emotion,
			TimeDetail: dayPart.Detail(s.deps.Rand),
			Fatigue:    fatigue,
			SpamLevel:  obs.SpamLevel,
			Facts:      u.Memory,
		},
		Name:      u.Name,
		Style:     u.Style,
		Verbosity: verbosity,
		Tech:      tech,
		History:   history,
		Text:      in.Text,
	})

	kind := OutcomeReply
	text, err := s.complete(ctx, u.ID, turns, verbosity)
	if err != nil {
		s.log.Error("reply generation failed, using fallback",
			slog.Int64("user_id", u.ID),
			slog.String("stage", string(stage)),
			slog.Any("error", err),
		)
		metrics.RecordReplyEvent("fallback")
		kind = OutcomeFallback
		text = s.deps.Assembler.Fallback(stage, s.deps.Rand)
	} else {
		text = reply.StripNameAddress(text, in.Sender.FirstName, in.Sender.LastName, in.Sender.Username, u.Name)
	}

	budget := reply.EmojiBudget(emotion, tech, obs.LastReplyHadEmoji)
	text = reply.LimitEmoji(text, budget)
	if budget == 0 {
		metrics.RecordReplyEvent("emoji_suppressed")
	}

	if err := s.deps.Sessions.MarkReply(ctx, u.ID, reply.CountEmoji(text) > 0); err != nil {
		s.log.Warn("session mark reply failed", slog.Int64("user_id", u.ID), slog.Any("error", err))
	}
	if _, err := s.deps.Messages.Append(ctx, u.ID, domain.RoleAssistant, text); err != nil {
		s.log.Error("store assistant reply failed", slog.Int64("user_id", u.ID), slog.Any("error", err))
	}

	return &Outcome{Kind: kind, Text: text, Access: access, User: u}, nil
}

// complete calls the model and enforces the length ceiling with one shorter retry and a
// sentence-boundary cut.
func (s *Service) complete(ctx context.Context, userID int64, turns []domain.Turn, verbosity domain.Verbosity) (string, error) {
	req := llm.Request{
		UserID:    userID,
		Turns:     turns,
		Verbosity: verbosity,
		Safety:    s.deps.Assembler.RefusalStyle(),
		Remember: func(ctx context.Context, f llm.Fact) error {
			return s.deps.Users.Remember(ctx, userID, f.Key, f.Value)
		},
	}

	resp, err := s.deps.LLM.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	text := reply.Clean(resp.Text)

	limit := s.opts.MaxReplyChars
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text, nil
	}

	metrics.RecordReplyEvent("too_long")
	req.Verbosity = domain.VerbosityShort
	req.Turns = append(append([]domain.Turn{}, turns...), domain.Turn{
		Role:    domain.RoleSystem,
		Content: s.deps.Assembler.ShorterInstruction(),
	})
	req.Remember = nil

	if shorter, err := s.deps.LLM.Complete(ctx, req); err == nil {
		if cleaned := reply.Clean(shorter.Text); cleaned != "" {
			text = cleaned
		}
	} else {
		s.log.Warn("shorter completion failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}

	if utf8.RuneCountInString(text) > limit {
		metrics.RecordReplyEvent("truncated")
		text = reply.Truncate(text, limit)
	}
	return text, nil
}

func (s *Service) maybeTrim(ctx context.Context, userID int64) {
	if s.deps.Trimmer == nil {
		return
	}
	count, err := s.deps.Messages.Count(ctx, userID)
	if err != nil || count <= trimThreshold {
		return
	}
	if err := s.deps.Trimmer.EnqueueTrim(ctx, userID); err != nil {
		s.log.Warn("enqueue history trim failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

// MoodExchange stores a mood button press as a user/assistant pair and returns the prepared
// answer for it.
func (s *Service) MoodExchange(ctx context.Context, userID int64, label string) (string, bool, error) {
	answer, ok := s.deps.Assembler.MoodReply(label)
	if !ok {
		return "", false, nil
	}
	if _, err := s.deps.Messages.Append(ctx, userID, domain.RoleUser, label); err != nil {
		return "", false, err
	}
	if _, err := s.deps.Messages.Append(ctx, userID, domain.RoleAssistant, answer); err != nil {
		return "", false, err
	}
	return answer, true, nil
}

// lockedRand makes a *rand.Rand safe for concurrent handlers.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRand returns a goroutine-safe persona.Rand seeded with seed.
func NewRand(seed int64) persona.Rand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}
