// Package payment sells subscription time through Telegram Stars and the Redsys card gateway.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/Proton-105/alina-bot/pkg/config"
)

type PlanID string

const (
	PlanDay   PlanID = "day"
	PlanWeek  PlanID = "week"
	PlanMonth PlanID = "month"
)

// Plan is one purchasable subscription period.
type Plan struct {
	ID          PlanID
	Title       string
	Description string
	Label       string
	Stars       int
	Days        int
}

// Plans maps plan ids to their terms.
type Plans map[PlanID]Plan

func PlansFromConfig(cfg config.SubscriptionConfig) Plans {
	return Plans{
		PlanDay: {
			ID:          PlanDay,
			Title:       "Подписка на день",
			Description: fmt.Sprintf("Общение без ограничений: %d дн.", cfg.DayDays),
			Label:       "День общения",
			Stars:       cfg.StarsDayAmount,
			Days:        cfg.DayDays,
		},
		PlanWeek: {
			ID:          PlanWeek,
			Title:       "Подписка на неделю",
			Description: fmt.Sprintf("Общение без ограничений: %d дн.", cfg.WeekDays),
			Label:       "Неделя общения",
			Stars:       cfg.StarsWeekAmount,
			Days:        cfg.WeekDays,
		},
		PlanMonth: {
			ID:          PlanMonth,
			Title:       "Подписка на месяц",
			Description: fmt.Sprintf("Общение без ограничений: %d дн.", cfg.MonthDays),
			Label:       "Месяц общения",
			Stars:       cfg.StarsMonthAmount,
			Days:        cfg.MonthDays,
		},
	}
}

func (p Plans) Lookup(id PlanID) (Plan, bool) {
	plan, ok := p[id]
	return plan, ok
}

// Ordered returns the plans from shortest to longest.
func (p Plans) Ordered() []Plan {
	out := make([]Plan, 0, len(p))
	for _, id := range []PlanID{PlanDay, PlanWeek, PlanMonth} {
		if plan, ok := p[id]; ok {
			out = append(out, plan)
		}
	}
	return out
}

// Subscriptions extends paid periods.
type Subscriptions interface {
	ActivateSubscription(ctx context.Context, userID int64, days int) (time.Time, error)
}

// Renewals plans the reminder sent shortly before a period ends.
type Renewals interface {
	ScheduleRenewal(ctx context.Context, userID int64, until time.Time) error
}

// Activation is the result of a settled payment.
type Activation struct {
	UserID int64
	Days   int
	Until  time.Time
	// Duplicate is set when the payment had already been applied.
	Duplicate bool
}
