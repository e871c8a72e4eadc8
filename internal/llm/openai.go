package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/Proton-105/alina-bot/internal/domain"
	apperrors "github.com/Proton-105/alina-bot/internal/errors"
)

const (
	DeepSeekBaseURL   = "https://api.deepseek.com"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"

	rememberTool  = "remember_user_info"
	maxToolRounds = 2
)

var rememberParameters = shared.FunctionParameters{
	"type": "object",
	"properties": map[string]any{
		"key": map[string]any{
			"type":        "string",
			"description": "short name of the fact, e.g. city, pet, job",
		},
		"value": map[string]any{
			"type":        "string",
			"description": "the fact itself",
		},
		"importance": map[string]any{
			"type": "string",
			"enum": []string{"low", "medium", "high"},
		},
	},
	"required": []string{"key", "value"},
}

// OpenAIConfig configures an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	Name     string
	BaseURL  string
	APIKey   string
	Model    string
	ProxyURL string
	Timeout  time.Duration
}

// OpenAICompatible serves DeepSeek, OpenRouter and Ollama through the chat completions API.
type OpenAICompatible struct {
	name   string
	model  string
	client openai.Client
	log    *slog.Logger
}

func NewOpenAICompatible(cfg OpenAIConfig, log *slog.Logger) (*OpenAICompatible, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm %s: model is required", cfg.Name)
	}
	if log == nil {
		log = slog.Default()
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("llm %s: parse proxy url: %w", cfg.Name, err)
		}
		httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxy)}
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		// Ollama ignores the key but the client refuses to send an empty one.
		apiKey = "ollama"
	}

	client := openai.NewClient(
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)

	return &OpenAICompatible{
		name:   cfg.Name,
		model:  cfg.Model,
		client: client,
		log:    log.With(slog.String("component", "llm"), slog.String("provider", cfg.Name)),
	}, nil
}

// OllamaBaseURL returns the OpenAI-compatible endpoint of an Ollama host.
func OllamaBaseURL(host string) string {
	host = strings.TrimRight(host, "/")
	if strings.HasSuffix(host, "/v1") {
		return host
	}
	return host + "/v1"
}

func (p *OpenAICompatible) Name() string { return p.name }

func (p *OpenAICompatible) Complete(ctx context.Context, req Request) (*Response, error) {
	profile := ProfileFor(req.Verbosity)
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(p.model),
		Messages:    toOpenAIMessages(req.Turns),
		Temperature: openai.Float(profile.Temperature),
		MaxTokens:   openai.Int(int64(profile.MaxTokens)),
	}
	if req.Remember != nil {
		params.Tools = []openai.ChatCompletionToolParam{{
			Function: shared.FunctionDefinitionParam{
				Name:        rememberTool,
				Description: openai.String("Save an important fact about the user for future conversations."),
				Parameters:  rememberParameters,
			},
		}}
	}

	resp := &Response{Provider: p.name, Model: p.model}

	for round := 0; ; round++ {
		completion, err := p.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, p.classify(ctx, err)
		}
		if len(completion.Choices) == 0 {
			return nil, apperrors.NewLLMMalformedError(p.name, "no choices")
		}

		msg := completion.Choices[0].Message
		if len(msg.ToolCalls) == 0 || req.Remember == nil || round >= maxToolRounds {
			text := strings.TrimSpace(msg.Content)
			if text == "" {
				return nil, apperrors.NewLLMMalformedError(p.name, "empty content")
			}
			resp.Text = text
			return resp, nil
		}

		params.Messages = append(params.Messages, msg.ToParam())
		for _, call := range msg.ToolCalls {
			result := p.runTool(ctx, req, call.Function.Name, call.Function.Arguments, resp)
			params.Messages = append(params.Messages, openai.ToolMessage(result, call.ID))
		}
	}
}

func (p *OpenAICompatible) runTool(ctx context.Context, req Request, name, arguments string, resp *Response) string {
	if name != rememberTool {
		return "unknown tool"
	}

	var fact Fact
	if err := json.Unmarshal([]byte(arguments), &fact); err != nil || fact.Key == "" || fact.Value == "" {
		p.log.Warn("invalid tool arguments", slog.Int64("user_id", req.UserID), slog.String("arguments", arguments))
		return "error: key and value are required"
	}

	if err := req.Remember(ctx, fact); err != nil {
		p.log.Error("remember fact failed", slog.Int64("user_id", req.UserID), slog.Any("error", err))
		return "error: not saved"
	}

	resp.Remembered = append(resp.Remembered, fact)
	p.log.Debug("fact remembered", slog.Int64("user_id", req.UserID), slog.String("key", fact.Key))
	return "saved"
}

func (p *OpenAICompatible) classify(ctx context.Context, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return apperrors.NewLLMAuthError(p.name, err)
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return apperrors.NewLLMRateLimitError(p.name, err)
		case apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode == http.StatusGatewayTimeout:
			return apperrors.NewLLMTimeoutError(p.name, err)
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return apperrors.NewExternalAPIError(p.name, err)
		default:
			rejected := apperrors.NewExternalAPIError(p.name, err)
			rejected.Retryable = false
			return rejected
		}
	}
	return classifyTransport(ctx, p.name, err)
}

func toOpenAIMessages(turns []domain.Turn) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, len(turns))
	for i, t := range turns {
		switch t.Role {
		case domain.RoleSystem:
			out[i] = openai.SystemMessage(t.Content)
		case domain.RoleAssistant:
			out[i] = openai.AssistantMessage(t.Content)
		default:
			out[i] = openai.UserMessage(t.Content)
		}
	}
	return out
}

// classifyTransport maps errors that never reached the API into timeout or network failures.
func classifyTransport(ctx context.Context, provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.NewLLMTimeoutError(provider, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.NewLLMTimeoutError(provider, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperrors.NewExternalAPIError(provider, err)
}
