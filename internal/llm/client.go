package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/Proton-105/alina-bot/internal/errors"
	"github.com/Proton-105/alina-bot/pkg/config"
	"github.com/Proton-105/alina-bot/pkg/metrics"
)

const defaultRetryDelay = 700 * time.Millisecond

// Client wraps a Provider with safety injection, a single retry, a circuit breaker and metrics.
type Client struct {
	provider Provider
	breaker  *apperrors.CircuitBreaker
	retry    apperrors.RetryPolicy
	timeout  time.Duration
	log      *slog.Logger
}

// ClientOptions tune the call policy around a provider.
type ClientOptions struct {
	Timeout     time.Duration
	RetryDelay  time.Duration
	OpenTimeout time.Duration
}

func NewClient(provider Provider, opts ClientOptions, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	log = log.With(slog.String("component", "llm_client"), slog.String("provider", provider.Name()))

	breakerOpts := []apperrors.BreakerOption{
		apperrors.WithStateChange(func(name string, from, to apperrors.State) {
			log.Warn("llm circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		}),
	}
	if opts.OpenTimeout > 0 {
		breakerOpts = append(breakerOpts, apperrors.WithOpenTimeout(opts.OpenTimeout))
	}

	return &Client{
		provider: provider,
		breaker:  apperrors.NewCircuitBreaker("llm_"+provider.Name(), breakerOpts...),
		retry:    apperrors.ConstantRetryPolicy(1, opts.RetryDelay),
		timeout:  opts.Timeout,
		log:      log,
	}
}

// Provider returns the wrapped backend name.
func (c *Client) Provider() string { return c.provider.Name() }

// Complete runs one completion. Errors are AppErrors with an LLM or external API code,
// ErrCircuitOpen, ErrTooManyProbes, or the context error.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(req.Turns) == 0 {
		return nil, apperrors.NewValidationError("llm request without messages")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req.Turns = WithSafety(req.Turns, req.Safety)
	start := time.Now()

	var resp *Response
	attempts := 0
	err := apperrors.WithRetryPolicy(ctx, c.retry, func() error {
		attempts++
		return c.breaker.Call(func() error {
			var callErr error
			resp, callErr = c.provider.Complete(ctx, req)
			return callErr
		})
	})

	duration := time.Since(start)
	outcome := outcomeOf(err)
	metrics.RecordLLMRequest(c.provider.Name(), outcome, duration)

	if err != nil {
		c.log.Warn("llm completion failed",
			slog.Int64("user_id", req.UserID),
			slog.String("outcome", outcome),
			slog.Int("attempts", attempts),
			slog.Duration("duration", duration),
			slog.Any("error", err),
		)
		return nil, err
	}

	c.log.Debug("llm completion",
		slog.Int64("user_id", req.UserID),
		slog.String("verbosity", string(req.Verbosity)),
		slog.Int("attempts", attempts),
		slog.Int("chars", len([]rune(resp.Text))),
		slog.Duration("duration", duration),
	)
	return resp, nil
}

func outcomeOf(err error) string {
	var appErr *apperrors.AppError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrCircuitOpen), errors.Is(err, apperrors.ErrTooManyProbes):
		return "circuit_open"
	case errors.As(err, &appErr):
		switch appErr.Code {
		case apperrors.CodeLLMTimeout:
			return "timeout"
		case apperrors.CodeLLMAuth:
			return "auth"
		case apperrors.CodeLLMRateLimit:
			return "rate_limit"
		case apperrors.CodeLLMMalformed:
			return "malformed"
		}
		return "api_error"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return "error"
}

// NewProvider builds the backend selected by cfg.Provider.
func NewProvider(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) (Provider, error) {
	proxyURL := ""
	if cfg.UseProxy {
		proxyURL = cfg.ProxyURL
	}

	switch cfg.Provider {
	case "deepseek", "":
		baseURL := cfg.DeepSeekBaseURL
		if baseURL == "" {
			baseURL = DeepSeekBaseURL
		}
		return NewOpenAICompatible(OpenAIConfig{
			Name: "deepseek", BaseURL: baseURL, APIKey: cfg.DeepSeekAPIKey,
			Model: cfg.DeepSeekModel, ProxyURL: proxyURL, Timeout: cfg.Timeout,
		}, log)
	case "openrouter":
		return NewOpenAICompatible(OpenAIConfig{
			Name: "openrouter", BaseURL: OpenRouterBaseURL, APIKey: cfg.OpenRouterAPIKey,
			Model: cfg.OpenRouterModel, ProxyURL: proxyURL, Timeout: cfg.Timeout,
		}, log)
	case "ollama":
		return NewOpenAICompatible(OpenAIConfig{
			Name: "ollama", BaseURL: OllamaBaseURL(cfg.OllamaHost),
			Model: cfg.OllamaModel, ProxyURL: proxyURL, Timeout: cfg.Timeout,
		}, log)
	case "gemini":
		httpClient := &http.Client{Timeout: cfg.Timeout}
		if proxyURL != "" {
			proxy, err := url.Parse(proxyURL)
			if err != nil {
				return nil, fmt.Errorf("llm gemini: parse proxy url: %w", err)
			}
			httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxy)}
		}
		return NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, httpClient, log)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
