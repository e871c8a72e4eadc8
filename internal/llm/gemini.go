package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/Proton-105/alina-bot/internal/domain"
	apperrors "github.com/Proton-105/alina-bot/internal/errors"
)

const geminiProvider = "gemini"

// Gemini calls the Gemini API through the genai SDK. The remember tool is not offered.
type Gemini struct {
	client *genai.Client
	model  string
	log    *slog.Logger
}

func NewGemini(ctx context.Context, apiKey, model string, httpClient *http.Client, log *slog.Logger) (*Gemini, error) {
	if model == "" {
		return nil, errors.New("llm gemini: model is required")
	}
	if log == nil {
		log = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("llm gemini: create client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  model,
		log:    log.With(slog.String("component", "llm"), slog.String("provider", geminiProvider)),
	}, nil
}

func (g *Gemini) Name() string { return geminiProvider }

func (g *Gemini) Complete(ctx context.Context, req Request) (*Response, error) {
	profile := ProfileFor(req.Verbosity)
	system, contents := toGeminiContents(req.Turns)

	temperature := float32(profile.Temperature)
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(profile.MaxTokens),
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, g.classify(ctx, err)
	}

	text, err := geminiText(resp)
	if err != nil {
		return nil, err
	}
	return &Response{Text: text, Provider: geminiProvider, Model: g.model}, nil
}

func (g *Gemini) classify(ctx context.Context, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyGeminiStatus(apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return classifyGeminiStatus(apiErrPtr.Code, err)
	}
	return classifyTransport(ctx, geminiProvider, err)
}

func classifyGeminiStatus(code int, err error) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperrors.NewLLMAuthError(geminiProvider, err)
	case code == http.StatusTooManyRequests:
		return apperrors.NewLLMRateLimitError(geminiProvider, err)
	case code == http.StatusGatewayTimeout:
		return apperrors.NewLLMTimeoutError(geminiProvider, err)
	case code >= http.StatusInternalServerError:
		return apperrors.NewExternalAPIError(geminiProvider, err)
	default:
		rejected := apperrors.NewExternalAPIError(geminiProvider, err)
		rejected.Retryable = false
		return rejected
	}
}

// toGeminiContents folds system turns into one instruction and maps the rest to user/model roles.
func toGeminiContents(turns []domain.Turn) (string, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(turns))

	for _, t := range turns {
		switch t.Role {
		case domain.RoleSystem:
			system = append(system, t.Content)
		case domain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", apperrors.NewLLMMalformedError(geminiProvider, "nil response")
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" &&
		resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		blocked := apperrors.NewLLMMalformedError(geminiProvider, "prompt blocked: "+string(resp.PromptFeedback.BlockReason))
		blocked.Retryable = false
		return "", blocked
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", apperrors.NewLLMMalformedError(geminiProvider, "no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Text == "" || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", apperrors.NewLLMMalformedError(geminiProvider, "empty content")
	}
	return text, nil
}
