package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWithRetryPolicy(t *testing.T) {
	policy := ConstantRetryPolicy(1, time.Millisecond)

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   bool
	}{
		{name: "success first try", errs: []error{nil}, wantCalls: 1},
		{name: "retryable then success", errs: []error{NewLLMTimeoutError("deepseek", nil), nil}, wantCalls: 2},
		{name: "retryable twice gives up", errs: []error{NewLLMTimeoutError("deepseek", nil), NewLLMTimeoutError("deepseek", nil)}, wantCalls: 2, wantErr: true},
		{name: "non retryable stops", errs: []error{NewLLMAuthError("deepseek", nil)}, wantCalls: 1, wantErr: true},
		{name: "plain error stops", errs: []error{stdErrors.New("boom")}, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := WithRetryPolicy(context.Background(), policy, func() error {
				e := tt.errs[calls]
				calls++
				return e
			})

			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestWithRetryPolicyStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := WithRetryPolicy(ctx, ConstantRetryPolicy(3, time.Hour), func() error {
		calls++
		cancel()
		return NewLLMRateLimitError("deepseek", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, HasCode(err, CodeLLMRateLimit))
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker("llm",
		WithOpenTimeout(10*time.Millisecond),
		WithStateChange(func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)
	failing := stdErrors.New("down")

	for i := 0; i < MinRequests; i++ {
		_ = cb.Call(func() error { return failing })
	}
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)

	time.Sleep(15 * time.Millisecond)
	for i := 0; i < HalfOpenMaxRequests; i++ {
		require.NoError(t, cb.Call(func() error { return nil }))
	}

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, transitions)
}

func TestCircuitBreakerIgnoresCancelledCallers(t *testing.T) {
	cb := NewCircuitBreaker("llm")
	for i := 0; i < MinRequests*2; i++ {
		err := cb.Call(func() error { return fmt.Errorf("complete: %w", context.Canceled) })
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("llm", WithOpenTimeout(5*time.Millisecond))
	failing := stdErrors.New("down")
	for i := 0; i < MinRequests; i++ {
		_ = cb.Call(func() error { return failing })
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(10 * time.Millisecond)
	probeStarted := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Call(func() error {
			close(probeStarted)
			<-release
			return failing
		})
	}()
	<-probeStarted

	assert.Equal(t, StateHalfOpen, cb.State())
	close(release)
	assert.ErrorIs(t, <-done, failing)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)
}

func TestHandlerUserMessages(t *testing.T) {
	h := NewHandler(testLogger(), false)

	msg, retryable := h.Handle(context.Background(), fmt.Errorf("wrap: %w", NewDatabaseError(stdErrors.New("locked"))))
	assert.Equal(t, "Временная проблема, попробуйте позже", msg)
	assert.True(t, retryable)

	msg, retryable = h.Handle(context.Background(), stdErrors.New("boom"))
	assert.Equal(t, defaultUserMessage, msg)
	assert.False(t, retryable)

	msg, _ = h.Handle(context.Background(), NewSignatureError("bad signature"))
	assert.Equal(t, defaultUserMessage, msg)

	msg, _ = h.Handle(context.Background(), nil)
	assert.Empty(t, msg)
}

func TestHandlerFallback(t *testing.T) {
	h := NewHandler(testLogger(), false).WithFallback("что-то пошло не так...")

	msg, _ := h.Handle(context.Background(), stdErrors.New("boom"))
	assert.Equal(t, "что-то пошло не так...", msg)

	msg, _ = h.Handle(context.Background(), NewDatabaseError(stdErrors.New("locked")))
	assert.Equal(t, "Временная проблема, попробуйте позже", msg)

	var nilHandler *Handler
	assert.Nil(t, nilHandler.WithFallback("x"))
}

func TestUserContext(t *testing.T) {
	_, ok := UserFromContext(context.Background())
	assert.False(t, ok)

	id, ok := UserFromContext(WithUser(context.Background(), 42))
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
}
