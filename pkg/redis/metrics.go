package redis

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var commandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "alina",
	Subsystem: "redis",
	Name:      "command_duration_seconds",
	Help:      "Cache commands by method and result (ok, miss, error).",
	Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
}, []string{"method", "result"})

// KV is the key/value surface shared by Client and MetricsClient.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// MetricsClient times every command of the wrapped Client.
type MetricsClient struct {
	next *Client
}

func NewMetricsClient(next *Client) *MetricsClient {
	return &MetricsClient{next: next}
}

func (m *MetricsClient) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	v, err := m.next.Get(ctx, key)
	record("get", start, err)
	return v, err
}

func (m *MetricsClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := m.next.Set(ctx, key, value, ttl)
	record("set", start, err)
	return err
}

func (m *MetricsClient) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := m.next.Delete(ctx, key)
	record("delete", start, err)
	return err
}

// Unwrap returns the wrapped client.
func (m *MetricsClient) Unwrap() *Client {
	return m.next
}

func record(method string, start time.Time, err error) {
	result := "ok"
	switch {
	case IsNil(err):
		result = "miss"
	case err != nil:
		result = "error"
	}
	commandDuration.WithLabelValues(method, result).Observe(time.Since(start).Seconds())
}
