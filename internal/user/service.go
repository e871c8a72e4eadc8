// Package user implements profile, preference and subscription operations.
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/domain"
	"github.com/Proton-105/alina-bot/internal/repository"
	"github.com/Proton-105/alina-bot/internal/usercache"
)

// Access is the outcome of charging one message against a user's allowance.
type Access int

const (
	AccessDenied Access = iota
	AccessSubscribed
	AccessFree
)

// Service provides business operations over users.
type Service struct {
	repo         repository.UserRepository
	cache        *usercache.Cache
	freeMessages int
	log          *slog.Logger
	now          func() time.Time
}

// NewService constructs a new Service instance. cache may be nil.
func NewService(repo repository.UserRepository, cache *usercache.Cache, freeMessages int, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:         repo,
		cache:        cache,
		freeMessages: freeMessages,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate fetches a user by telegram ID or creates a new profile when missing.
func (s *Service) GetOrCreate(ctx context.Context, telegramUser *telebot.User) (*domain.User, error) {
	if telegramUser == nil {
		return nil, errors.New("telegram user is nil")
	}

	user, err := s.Get(ctx, telegramUser.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	newUser := &domain.User{
		ID:        telegramUser.ID,
		FirstName: telegramUser.FirstName,
		LastName:  telegramUser.LastName,
		Username:  telegramUser.Username,
		Style:     domain.StyleGentle,
		Verbosity: domain.VerbosityNormal,
		FreeLeft:  s.freeMessages,
		Memory:    domain.Facts{},
		CreatedAt: s.now(),
	}

	if err := s.repo.Create(ctx, newUser); err != nil {
		s.logError("get_or_create.create", telegramUser.ID, err)
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info("created new user", slog.Int64("user_id", telegramUser.ID))
	return s.Get(ctx, telegramUser.ID)
}

// Get loads a profile, consulting the cache first.
func (s *Service) Get(ctx context.Context, userID int64) (*domain.User, error) {
	if cached, err := s.cache.Get(ctx, userID); err != nil {
		s.log.Warn("user cache read failed", slog.Int64("user_id", userID), slog.Any("error", err))
	} else if cached != nil {
		return cached, nil
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logError("get", userID, err)
		}
		return nil, err
	}
	if user.Memory == nil {
		user.Memory = domain.Facts{}
	}

	if err := s.cache.Set(ctx, user); err != nil {
		s.log.Warn("user cache write failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}
	return user, nil
}

// SetStyle stores the preferred tone.
func (s *Service) SetStyle(ctx context.Context, userID int64, style domain.Style) error {
	return s.updateProfile(ctx, userID, "set_style", func(u *domain.User) { u.Style = style })
}

// SetVerbosity stores the preferred reply length.
func (s *Service) SetVerbosity(ctx context.Context, userID int64, verbosity domain.Verbosity) error {
	return s.updateProfile(ctx, userID, "set_verbosity", func(u *domain.User) { u.Verbosity = verbosity })
}

// SetName stores how Alina should address the user.
func (s *Service) SetName(ctx context.Context, userID int64, name string) error {
	name = strings.TrimSpace(name)
	return s.updateProfile(ctx, userID, "set_name", func(u *domain.User) { u.Name = name })
}

// SetTimezone stores an already validated timezone string.
func (s *Service) SetTimezone(ctx context.Context, userID int64, tz string) error {
	return s.updateProfile(ctx, userID, "set_tz", func(u *domain.User) { u.TZ = tz })
}

// ConsumeMessage charges one message: free for subscribers, otherwise from the free allowance.
func (s *Service) ConsumeMessage(ctx context.Context, user *domain.User) (Access, error) {
	if user.IsSubscribed(s.now()) {
		return AccessSubscribed, nil
	}

	ok, err := s.repo.DecrementFree(ctx, user.ID)
	if err != nil {
		s.logError("consume_message", user.ID, err)
		return AccessDenied, err
	}
	s.invalidate(ctx, user.ID)

	if !ok {
		return AccessDenied, nil
	}
	user.FreeLeft--
	return AccessFree, nil
}

// ActivateSubscription extends the paid period by days from the later of now and the current
// expiry, and restores the free allowance. It returns the new expiry.
func (s *Service) ActivateSubscription(ctx context.Context, userID int64, days int) (time.Time, error) {
	if days <= 0 {
		return time.Time{}, fmt.Errorf("activate subscription: days must be positive, got %d", days)
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		s.logError("activate_subscription.find", userID, err)
		return time.Time{}, err
	}

	base := s.now()
	if user.SubUntil != nil && user.SubUntil.After(base) {
		base = user.SubUntil.UTC()
	}
	until := base.Add(time.Duration(days) * 24 * time.Hour)

	if err := s.repo.SetSubscription(ctx, userID, until, s.freeMessages); err != nil {
		s.logError("activate_subscription.update", userID, err)
		return time.Time{}, err
	}
	s.invalidate(ctx, userID)

	s.log.Info("subscription activated",
		slog.Int64("user_id", userID),
		slog.Int("days", days),
		slog.Time("until", until),
	)
	return until, nil
}

// RecordMessage bumps the lifetime counter used for relationship stages.
func (s *Service) RecordMessage(ctx context.Context, userID int64) (int, error) {
	total, err := s.repo.IncrementMessages(ctx, userID)
	if err != nil {
		s.logError("record_message", userID, err)
		return 0, err
	}
	s.invalidate(ctx, userID)
	return total, nil
}

// Remember stores one fact about the user. An empty value forgets the key.
func (s *Service) Remember(ctx context.Context, userID int64, key, value string) error {
	key = strings.TrimSpace(strings.ToLower(key))
	if key == "" {
		return errors.New("remember: empty key")
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	facts := domain.Facts{}
	for k, v := range user.Memory {
		facts[k] = v
	}
	if value = strings.TrimSpace(value); value == "" {
		delete(facts, key)
	} else {
		facts[key] = value
	}

	if err := s.repo.SaveMemory(ctx, userID, facts); err != nil {
		s.logError("remember", userID, err)
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// UpdateLastActive refreshes the last_active_at field for the user.
func (s *Service) UpdateLastActive(ctx context.Context, userID int64) error {
	if err := s.repo.UpdateLastActiveAt(ctx, userID, s.now()); err != nil {
		s.logError("update_last_active", userID, err)
		return err
	}

	return nil
}

func (s *Service) updateProfile(ctx context.Context, userID int64, operation string, mutate func(*domain.User)) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		s.logError(operation+".find", userID, err)
		return err
	}

	mutate(user)
	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		s.logError(operation, userID, err)
		return err
	}

	s.invalidate(ctx, userID)
	return nil
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Warn("user cache invalidate failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

func (s *Service) logError(operation string, userID int64, err error) {
	if err == nil {
		return
	}

	s.log.Error("user service operation failed",
		slog.String("operation", operation),
		slog.Int64("user_id", userID),
		slog.Any("error", err),
	)
}
