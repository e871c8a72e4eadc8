package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/domain"
	"github.com/Proton-105/alina-bot/internal/i18n"
)

const (
	defaultPingMinutes = 1
	maxPingMinutes     = 24 * 60
)

// NewPingMeHandler schedules a one-off test message in N minutes. Only debug users may use it.
func NewPingMeHandler(d Deps) Handler {
	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil || !d.Debug.IsDebugUser(sender.ID) {
			return nil
		}

		minutes := defaultPingMinutes
		if args := c.Args(); len(args) > 0 {
			if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
				minutes = min(n, maxPingMinutes)
			}
		}

		at := d.now().Add(time.Duration(minutes) * time.Minute)
		if err := d.Reminders.Once(sender.ID, at, d.Texts.T("debug.ping_text")); err != nil {
			return err
		}
		return c.Send(d.Texts.Tf("debug.ping_scheduled", i18n.Vars{"minutes": strconv.Itoa(minutes)}))
	}
}

// NewJobsHandler lists the caller's reminder timers with their next run. Only debug users
// may use it.
func NewJobsHandler(d Deps) Handler {
	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil || !d.Debug.IsDebugUser(sender.ID) {
			return nil
		}

		ctx := context.Background()
		u, err := d.currentUser(ctx, c)
		if err != nil {
			return err
		}
		entries, err := d.Reminders.Entries(ctx, u.ID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return c.Send(d.Texts.T("debug.jobs_empty"))
		}

		tz := userTZ(u)
		loc := domain.Location(tz)
		lines := []string{d.Texts.T("debug.jobs_header")}
		for _, e := range entries {
			rtype := e.Type
			if rtype == "" {
				rtype = domain.ReminderCheckin
			}
			stateLabel := d.Texts.T("reminders.off")
			if e.Active {
				stateLabel = d.Texts.T("reminders.on")
			}

			vars := i18n.Vars{"time": e.TimeLocal, "type": string(rtype), "state": stateLabel, "tz": tz}
			if !e.Scheduled || e.NextRun.IsZero() {
				lines = append(lines, d.Texts.Tf("debug.jobs_unscheduled", vars))
				continue
			}
			vars["next"] = e.NextRun.In(loc).Format("2006-01-02 15:04")
			lines = append(lines, d.Texts.Tf("debug.jobs_line", vars))
		}

		return c.Send(strings.Join(lines, "\n"))
	}
}
