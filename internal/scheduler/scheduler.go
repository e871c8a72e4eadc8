// Package scheduler keeps one daily timer per active reminder, named rem:<user>:<reminder>.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/Proton-105/alina-bot/internal/domain"
	"github.com/Proton-105/alina-bot/internal/repository"
	"github.com/Proton-105/alina-bot/pkg/metrics"
)

const sendTimeout = 15 * time.Second

// Sender delivers a proactive message to a user.
type Sender interface {
	SendText(ctx context.Context, userID int64, text string) error
}

// TextFunc returns the message for a reminder type.
type TextFunc func(domain.ReminderType) string

// Entry is a reminder together with its timer state.
type Entry struct {
	domain.Reminder
	Scheduled bool
	NextRun   time.Time
}

// Scheduler manages reminder timers on top of gocron.
type Scheduler struct {
	cron      gocron.Scheduler
	reminders repository.ReminderRepository
	sender    Sender
	text      TextFunc
	log       *slog.Logger
}

func New(reminders repository.ReminderRepository, sender Sender, text TextFunc, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "scheduler"))

	cron, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &Scheduler{
		cron:      cron,
		reminders: reminders,
		sender:    sender,
		text:      text,
		log:       log,
	}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

func (s *Scheduler) Shutdown() error {
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}

// JobName is the timer name for one reminder.
func JobName(userID, reminderID int64) string {
	return fmt.Sprintf("rem:%d:%d", userID, reminderID)
}

func userTag(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}

// CronSpec renders a daily cron line at hh:mm in the given stored timezone.
func CronSpec(timeLocal, tz string) (string, error) {
	hour, minute, err := domain.ParseLocalTime(timeLocal)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CRON_TZ=%s %d %d * * *", domain.IANAName(tz), minute, hour), nil
}

// Schedule registers the timer for an active reminder and removes it for an inactive one.
// An existing timer with the same name is replaced.
func (s *Scheduler) Schedule(r domain.Reminder, tz string) error {
	name := JobName(r.UserID, r.ID)
	s.cron.RemoveByTags(name)

	if !r.Active {
		s.log.Debug("reminder descheduled", slog.String("job", name))
		return nil
	}

	spec, err := CronSpec(r.TimeLocal, tz)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}

	_, err = s.cron.NewJob(
		gocron.CronJob(spec, false),
		gocron.NewTask(s.deliver, r.UserID, r.ID, r.Type),
		gocron.WithName(name),
		gocron.WithTags(name, userTag(r.UserID)),
	)
	if err != nil {
		s.log.Error("failed to schedule reminder", slog.String("job", name), slog.String("cron", spec), slog.Any("error", err))
		return fmt.Errorf("schedule %s: %w", name, err)
	}

	s.log.Debug("reminder scheduled", slog.String("job", name), slog.String("cron", spec))
	return nil
}

// Deschedule removes the timer of one reminder.
func (s *Scheduler) Deschedule(userID, reminderID int64) {
	s.cron.RemoveByTags(JobName(userID, reminderID))
}

// RescheduleUser drops every timer of the user and registers the active reminders again,
// used after a timezone change.
func (s *Scheduler) RescheduleUser(ctx context.Context, userID int64, tz string) error {
	s.cron.RemoveByTags(userTag(userID))

	list, err := s.reminders.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("reschedule user %d: %w", userID, err)
	}

	var errs []error
	for _, r := range list {
		if !r.Active {
			continue
		}
		if err := s.Schedule(r, tz); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RestoreAll registers timers for every active reminder in storage.
func (s *Scheduler) RestoreAll(ctx context.Context) (int, error) {
	list, err := s.reminders.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore reminders: %w", err)
	}

	restored := 0
	for _, r := range list {
		if err := s.Schedule(r.Reminder, r.TZ); err != nil {
			s.log.Warn("skip reminder on restore", slog.Int64("reminder_id", r.ID), slog.Any("error", err))
			continue
		}
		restored++
	}

	s.log.Info("reminders restored", slog.Int("count", restored), slog.Int("total", len(list)))
	return restored, nil
}

// Add stores a new active reminder and schedules it.
func (s *Scheduler) Add(ctx context.Context, userID int64, tz string, rtype domain.ReminderType, timeLocal string) (*domain.Reminder, error) {
	hour, minute, err := domain.ParseLocalTime(timeLocal)
	if err != nil {
		return nil, err
	}

	r, err := s.reminders.Add(ctx, userID, rtype, domain.FormatLocalTime(hour, minute))
	if err != nil {
		return nil, err
	}
	if err := s.Schedule(*r, tz); err != nil {
		return r, err
	}
	return r, nil
}

// Toggle flips a reminder and registers or removes its timer accordingly.
func (s *Scheduler) Toggle(ctx context.Context, userID int64, tz string, reminderID int64) (*domain.Reminder, error) {
	r, err := s.reminders.Toggle(ctx, userID, reminderID)
	if err != nil {
		return nil, err
	}
	if err := s.Schedule(*r, tz); err != nil {
		return r, err
	}
	return r, nil
}

// Delete removes a reminder and its timer.
func (s *Scheduler) Delete(ctx context.Context, userID, reminderID int64) error {
	if err := s.reminders.Delete(ctx, userID, reminderID); err != nil {
		return err
	}
	s.Deschedule(userID, reminderID)
	return nil
}

// Entries lists the user's reminders with their next run, ordered by local time.
func (s *Scheduler) Entries(ctx context.Context, userID int64) ([]Entry, error) {
	list, err := s.reminders.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	jobs := make(map[string]gocron.Job)
	for _, j := range s.cron.Jobs() {
		jobs[j.Name()] = j
	}

	entries := make([]Entry, 0, len(list))
	for _, r := range list {
		e := Entry{Reminder: r}
		if j, ok := jobs[JobName(userID, r.ID)]; ok {
			e.Scheduled = true
			if next, err := j.NextRun(); err == nil {
				e.NextRun = next
			}
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, k int) bool { return entries[i].TimeLocal < entries[k].TimeLocal })
	return entries, nil
}

// Once sends text to the user a single time at the given moment.
func (s *Scheduler) Once(userID int64, at time.Time, text string) error {
	name := "ping:" + strconv.FormatInt(userID, 10)
	_, err := s.cron.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(at)),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()
			if err := s.sender.SendText(ctx, userID, text); err != nil {
				s.log.Warn("one-off message failed", slog.Int64("user_id", userID), slog.Any("error", err))
			}
		}),
		gocron.WithName(name),
		gocron.WithTags(name),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) deliver(userID, reminderID int64, rtype domain.ReminderType) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := s.sender.SendText(ctx, userID, s.text(rtype)); err != nil {
		metrics.RecordReminder(string(rtype), "failed")
		s.log.Warn("reminder send failed",
			slog.String("job", JobName(userID, reminderID)),
			slog.Any("error", err),
		)
		return
	}

	metrics.RecordReminder(string(rtype), "sent")
	s.log.Info("reminder sent", slog.String("job", JobName(userID, reminderID)))
}
