package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/domain"
	apperrors "github.com/Proton-105/alina-bot/internal/errors"
	"github.com/Proton-105/alina-bot/internal/repository"
	"github.com/Proton-105/alina-bot/pkg/metrics"
)

const (
	StarsCurrency = "XTR"
	payloadPrefix = "stars"

	activationRetries    = 2
	activationRetryDelay = 300 * time.Millisecond
)

var (
	ErrUnknownPlan    = errors.New("unknown plan")
	ErrInvalidPayload = errors.New("invalid invoice payload")
)

// Stars issues and settles Telegram Stars invoices.
type Stars struct {
	payments repository.PaymentRepository
	subs     Subscriptions
	renewals Renewals
	plans    Plans
	log      *slog.Logger

	activationRetry apperrors.RetryPolicy
}

func NewStars(payments repository.PaymentRepository, subs Subscriptions, renewals Renewals, plans Plans, log *slog.Logger) *Stars {
	if log == nil {
		log = slog.Default()
	}
	return &Stars{
		payments: payments,
		subs:     subs,
		renewals: renewals,
		plans:    plans,
		log:      log.With(slog.String("component", "stars")),

		activationRetry: apperrors.ConstantRetryPolicy(activationRetries, activationRetryDelay),
	}
}

// Payload renders the invoice payload stars:<plan>:<id>.
func Payload(plan PlanID, id string) string {
	return payloadPrefix + ":" + string(plan) + ":" + id
}

// ParsePayload extracts the plan from an invoice payload.
func ParsePayload(payload string) (PlanID, error) {
	parts := strings.SplitN(payload, ":", 3)
	if len(parts) != 3 || parts[0] != payloadPrefix || parts[2] == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPayload, payload)
	}
	return PlanID(parts[1]), nil
}

// Invoice stores a pending payment and returns the invoice to send.
func (s *Stars) Invoice(ctx context.Context, userID int64, planID PlanID) (*telebot.Invoice, error) {
	plan, ok := s.plans.Lookup(planID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, planID)
	}

	payload := Payload(plan.ID, uuid.NewString())
	err := s.payments.Upsert(ctx, &domain.Payment{
		UserID:   userID,
		Provider: domain.ProviderStars,
		OrderID:  payload,
		Amount:   plan.Stars,
		Currency: StarsCurrency,
		Status:   domain.PaymentPending,
	})
	if err != nil {
		return nil, fmt.Errorf("store stars invoice: %w", err)
	}

	metrics.RecordPayment(string(domain.ProviderStars), string(domain.PaymentPending))
	s.log.InfoContext(ctx, "stars invoice issued",
		slog.Int64("user_id", userID),
		slog.String("plan", string(plan.ID)),
		slog.Int("amount", plan.Stars),
	)

	return &telebot.Invoice{
		Title:       plan.Title,
		Description: plan.Description,
		Payload:     payload,
		Currency:    StarsCurrency,
		Prices:      []telebot.Price{{Label: plan.Label, Amount: plan.Stars}},
		Start:       "stars-" + string(plan.ID),
	}, nil
}

// PreCheckout approves a checkout only for a known pending invoice of the same user and amount.
func (s *Stars) PreCheckout(ctx context.Context, userID int64, payload, currency string, total int) error {
	if _, err := ParsePayload(payload); err != nil {
		return apperrors.NewPaymentError(string(domain.ProviderStars), err)
	}

	p, err := s.payments.FindByOrder(ctx, payload)
	if err != nil {
		return apperrors.NewPaymentError(string(domain.ProviderStars), err)
	}

	switch {
	case p.Status != domain.PaymentPending:
		return apperrors.NewPaymentError(string(domain.ProviderStars), fmt.Errorf("payment is %s", p.Status))
	case p.UserID != userID:
		return apperrors.NewPaymentError(string(domain.ProviderStars), errors.New("payer mismatch"))
	case currency != StarsCurrency || total != p.Amount:
		return apperrors.NewPaymentError(string(domain.ProviderStars), fmt.Errorf("amount mismatch: %d %s", total, currency))
	}
	return nil
}

// Complete marks the invoice paid and activates the plan. A repeated call for the same
// payload changes nothing and reports Duplicate.
func (s *Stars) Complete(ctx context.Context, userID int64, payload, chargeID string) (*Activation, error) {
	planID, err := ParsePayload(payload)
	if err != nil {
		return nil, apperrors.NewPaymentError(string(domain.ProviderStars), err)
	}
	plan, ok := s.plans.Lookup(planID)
	if !ok {
		return nil, apperrors.NewPaymentError(string(domain.ProviderStars), fmt.Errorf("%w: %q", ErrUnknownPlan, planID))
	}

	raw := "charge_id=" + chargeID
	changed, err := s.payments.Settle(ctx, payload, domain.PaymentPaid, raw)
	if err != nil {
		return nil, fmt.Errorf("settle stars payment: %w", err)
	}

	if !changed {
		existing, err := s.payments.FindByOrder(ctx, payload)
		switch {
		case err == nil && existing.Status == domain.PaymentPaid:
			s.log.InfoContext(ctx, "stars payment already applied", slog.String("payload", payload))
			return &Activation{UserID: userID, Days: plan.Days, Duplicate: true}, nil
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("load stars payment: %w", err)
		}

		// Charged but not pending: the invoice expired or was never stored.
		err = s.payments.Upsert(ctx, &domain.Payment{
			UserID:   userID,
			Provider: domain.ProviderStars,
			OrderID:  payload,
			Amount:   plan.Stars,
			Currency: StarsCurrency,
			Status:   domain.PaymentPaid,
			Raw:      raw,
		})
		if err != nil {
			return nil, fmt.Errorf("store stars payment: %w", err)
		}
	}

	// Telegram sends successful_payment once, so activation is retried here before the
	// order goes back to pending.
	var until time.Time
	err = apperrors.WithRetryPolicy(ctx, s.activationRetry, func() error {
		var actErr error
		until, actErr = s.subs.ActivateSubscription(ctx, userID, plan.Days)
		if actErr != nil {
			return apperrors.NewDatabaseError(actErr)
		}
		return nil
	})
	if err != nil {
		reopen(ctx, s.payments, s.log, payload)
		return nil, fmt.Errorf("activate subscription: %w", err)
	}
	metrics.RecordPayment(string(domain.ProviderStars), string(domain.PaymentPaid))

	if s.renewals != nil {
		if err := s.renewals.ScheduleRenewal(ctx, userID, until); err != nil {
			s.log.WarnContext(ctx, "renewal nudge not scheduled", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}

	s.log.InfoContext(ctx, "stars payment completed",
		slog.Int64("user_id", userID),
		slog.String("plan", string(plan.ID)),
		slog.Time("until", until),
	)
	return &Activation{UserID: userID, Days: plan.Days, Until: until}, nil
}
