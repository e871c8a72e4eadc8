package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/bot/keyboard"
	"github.com/Proton-105/alina-bot/internal/domain"
	"github.com/Proton-105/alina-bot/internal/i18n"
	"github.com/Proton-105/alina-bot/internal/repository"
	"github.com/Proton-105/alina-bot/internal/state"
)

// NewRemindersHandler shows the reminder list with toggle, delete and add buttons.
func NewRemindersHandler(d Deps) Handler {
	return func(c telebot.Context) error {
		if c.Sender() == nil {
			return nil
		}

		ctx := context.Background()
		u, err := d.currentUser(ctx, c)
		if err != nil {
			return err
		}

		markup, err := remindersMarkup(ctx, d, u.ID)
		if err != nil {
			return err
		}
		return c.Send(d.Texts.Tf("reminders.intro", i18n.Vars{"tz": userTZ(u)}), markup)
	}
}

// NewTimezoneHandler sets the timezone from the command argument, or asks for it.
func NewTimezoneHandler(d Deps) Handler {
	return func(c telebot.Context) error {
		if c.Sender() == nil {
			return nil
		}

		ctx := context.Background()
		if args := c.Args(); len(args) > 0 {
			return applyTimezone(ctx, d, c, strings.Join(args, " "))
		}

		u, err := d.currentUser(ctx, c)
		if err != nil {
			return err
		}
		if err := d.FSM.Await(ctx, u.ID, state.StateAwaitingTimezone); err != nil {
			return err
		}

		tz := u.TZ
		if tz == "" {
			tz = d.Texts.T("tz.unset")
		}
		return c.Send(d.Texts.Tf("tz.prompt", i18n.Vars{"tz": tz}))
	}
}

// NewTimezoneInputHandler handles the reply to the timezone prompt. An invalid zone keeps
// the prompt open.
func NewTimezoneInputHandler(d Deps) Handler {
	return func(c telebot.Context) error {
		if c.Sender() == nil {
			return nil
		}
		return applyTimezone(context.Background(), d, c, c.Text())
	}
}

func applyTimezone(ctx context.Context, d Deps, c telebot.Context, input string) error {
	userID := c.Sender().ID

	tz, err := domain.ParseTimezone(input)
	if err != nil {
		return c.Send(d.Texts.T("tz.invalid"))
	}

	if err := d.Users.SetTimezone(ctx, userID, tz); err != nil {
		return err
	}
	if err := d.Reminders.RescheduleUser(ctx, userID, tz); err != nil {
		d.log().Error("reschedule after timezone change failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}
	if err := d.FSM.ClearState(ctx, userID); err != nil {
		d.log().Warn("clear timezone prompt failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}

	return c.Send(d.Texts.Tf("tz.saved", i18n.Vars{"tz": tz}))
}

// NewReminderTimeInputHandler handles the reply to the custom reminder time prompt.
func NewReminderTimeInputHandler(d Deps) Handler {
	return func(c telebot.Context) error {
		if c.Sender() == nil {
			return nil
		}

		ctx := context.Background()
		hour, minute, err := domain.ParseLocalTime(strings.TrimSpace(c.Text()))
		if err != nil {
			return c.Send(d.Texts.T("reminders.bad_time"))
		}

		u, err := d.currentUser(ctx, c)
		if err != nil {
			return err
		}
		if _, err := d.Reminders.Add(ctx, u.ID, userTZ(u), domain.ReminderCheckin, domain.FormatLocalTime(hour, minute)); err != nil {
			return err
		}
		if err := d.FSM.ClearState(ctx, u.ID); err != nil {
			d.log().Warn("clear reminder prompt failed", slog.Int64("user_id", u.ID), slog.Any("error", err))
		}

		markup, err := remindersMarkup(ctx, d, u.ID)
		if err != nil {
			return err
		}
		return c.Send(d.Texts.T("reminders.added_custom"), markup)
	}
}

func handleReminderToggle(d Deps, c telebot.Context, cb keyboard.ReminderToggle) error {
	ctx := context.Background()
	u, err := d.currentUser(ctx, c)
	if err != nil {
		return err
	}

	if _, err := d.Reminders.Toggle(ctx, u.ID, userTZ(u), cb.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Respond(&telebot.CallbackResponse{Text: d.Texts.T("reminders.not_found")})
		}
		return err
	}
	return refreshReminders(ctx, d, c, u.ID, "")
}

func handleReminderDelete(d Deps, c telebot.Context, cb keyboard.ReminderDelete) error {
	ctx := context.Background()
	userID := c.Sender().ID

	if err := d.Reminders.Delete(ctx, userID, cb.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Respond(&telebot.CallbackResponse{Text: d.Texts.T("reminders.not_found")})
		}
		return err
	}
	return refreshReminders(ctx, d, c, userID, "")
}

func handleReminderAdd(d Deps, c telebot.Context, cb keyboard.ReminderAdd) error {
	ctx := context.Background()
	u, err := d.currentUser(ctx, c)
	if err != nil {
		return err
	}

	if _, err := d.Reminders.Add(ctx, u.ID, userTZ(u), cb.Type, cb.Time); err != nil {
		return err
	}
	return refreshReminders(ctx, d, c, u.ID, d.Texts.T("reminders.added"))
}

func handleReminderCustom(d Deps, c telebot.Context) error {
	ctx := context.Background()
	userID := c.Sender().ID

	if err := d.FSM.Await(ctx, userID, state.StateAwaitingReminderTime); err != nil {
		return err
	}
	if err := c.Respond(); err != nil {
		d.log().Debug("answer callback failed", slog.Any("error", err))
	}
	return c.Send(d.Texts.T("reminders.custom_prompt"))
}

// refreshReminders answers the callback and redraws the keyboard under the original message.
func refreshReminders(ctx context.Context, d Deps, c telebot.Context, userID int64, notice string) error {
	if err := c.Respond(&telebot.CallbackResponse{Text: notice}); err != nil {
		d.log().Debug("answer callback failed", slog.Any("error", err))
	}

	markup, err := remindersMarkup(ctx, d, userID)
	if err != nil {
		return err
	}
	if err := c.Edit(markup); err != nil && !notModified(err) {
		return err
	}
	return nil
}

func remindersMarkup(ctx context.Context, d Deps, userID int64) (*telebot.ReplyMarkup, error) {
	entries, err := d.Reminders.Entries(ctx, userID)
	if err != nil {
		return nil, err
	}

	list := make([]domain.Reminder, 0, len(entries))
	for _, e := range entries {
		list = append(list, e.Reminder)
	}
	return d.Keyboards.Reminders(list)
}

func notModified(err error) bool {
	return errors.Is(err, telebot.ErrSameMessageContent) || errors.Is(err, telebot.ErrMessageNotModified)
}
