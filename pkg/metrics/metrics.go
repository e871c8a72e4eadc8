// Package metrics exposes the bot's Prometheus series.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "alina"

var (
	updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "updates_total",
		Help:      "Handled Telegram updates by command and status.",
	}, []string{"command", "status"})

	updateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "update_duration_seconds",
		Help:      "Time spent handling one Telegram update.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"command"})

	promptTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fsm",
		Name:      "transitions_total",
		Help:      "Awaiting-input state changes.",
	}, []string{"from", "to"})

	promptsOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "fsm",
		Name:      "open_prompts",
		Help:      "Users currently answering a prompt, by state.",
	}, []string{"state"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Handled errors by code and severity.",
	}, []string{"code", "severity"})

	llmRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "requests_total",
		Help:      "Chat completion requests by provider and outcome.",
	}, []string{"provider", "outcome"})

	llmLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "request_duration_seconds",
		Help:      "Chat completion latency.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	}, []string{"provider"})

	replyEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "events_total",
		Help:      "Reply pipeline events: fallback, spam, fatigue, no_access, shortened.",
	}, []string{"event"})

	payments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payments_total",
		Help:      "Payments by provider and resulting status.",
	}, []string{"provider", "status"})

	reminders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reminders_sent_total",
		Help:      "Proactive messages by reminder type and outcome.",
	}, []string{"type", "outcome"})

	jobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_processed_total",
		Help:      "Background tasks by type and outcome.",
	}, []string{"task", "outcome"})
)

// RecordCommand counts one handled update and its duration.
func RecordCommand(command, status string, duration time.Duration) {
	command = label(command)
	updatesTotal.WithLabelValues(command, label(status)).Inc()
	updateDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordStateTransition is registered with the FSM at startup.
func RecordStateTransition(from, to string) {
	promptTransitions.WithLabelValues(label(from), label(to)).Inc()
}

func RecordError(code, severity string) {
	errorsTotal.WithLabelValues(label(code), label(severity)).Inc()
}

func RecordLLMRequest(provider, outcome string, duration time.Duration) {
	provider = label(provider)
	llmRequests.WithLabelValues(provider, label(outcome)).Inc()
	llmLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordReplyEvent(event string) {
	replyEvents.WithLabelValues(label(event)).Inc()
}

func RecordPayment(provider, status string) {
	payments.WithLabelValues(label(provider), label(status)).Inc()
}

func RecordReminder(reminderType, outcome string) {
	reminders.WithLabelValues(label(reminderType), label(outcome)).Inc()
}

func RecordJob(task, outcome string) {
	jobs.WithLabelValues(label(task), label(outcome)).Inc()
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
