package llm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/Proton-105/alina-bot/internal/domain"
	apperrors "github.com/Proton-105/alina-bot/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type chatRequest struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role       string `json:"role"`
		Content    any    `json:"content"`
		ToolCallID string `json:"tool_call_id"`
	} `json:"messages"`
	Tools []struct {
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	} `json:"tools"`
}

func completionJSON(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(body)
}

const toolCallJSON = `{
  "id": "chatcmpl-2", "object": "chat.completion", "created": 1, "model": "test-model",
  "choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
    "role": "assistant", "content": null,
    "tool_calls": [{"id": "call_1", "type": "function",
      "function": {"name": "remember_user_info", "arguments": "{\"key\":\"city\",\"value\":\"Мадрид\",\"importance\":\"high\"}"}}]
  }}]
}`

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAICompatible {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewOpenAICompatible(OpenAIConfig{
		Name:    "deepseek",
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}, testLogger())
	require.NoError(t, err)
	return p
}

func turns() []domain.Turn {
	return []domain.Turn{
		{Role: domain.RoleSystem, Content: "ты Алина"},
		{Role: domain.RoleUser, Content: "привет"},
	}
}

func TestProfileFor(t *testing.T) {
	assert.Equal(t, Profile{MaxTokens: 280, Temperature: 0.9}, ProfileFor(domain.VerbosityShort))
	assert.Equal(t, Profile{MaxTokens: 600, Temperature: 0.85}, ProfileFor(domain.VerbosityNormal))
	assert.Equal(t, Profile{MaxTokens: 900, Temperature: 0.8}, ProfileFor(domain.VerbosityLong))
	assert.Equal(t, DefaultProfile, ProfileFor(""))
}

func TestWithSafety(t *testing.T) {
	in := []domain.Turn{
		{Role: domain.RoleUser, Content: "u0"},
		{Role: domain.RoleSystem, Content: "sys"},
		{Role: domain.RoleUser, Content: "u1"},
	}

	out := WithSafety(in, "safe")
	require.Len(t, out, 4)
	assert.Equal(t, "u0", out[0].Content)
	assert.Equal(t, domain.Turn{Role: domain.RoleSystem, Content: "safe"}, out[1])
	assert.Equal(t, "sys", out[2].Content)

	assert.Equal(t, in, WithSafety(in, ""))

	noSystem := WithSafety([]domain.Turn{{Role: domain.RoleUser, Content: "hi"}}, "safe")
	assert.Equal(t, "safe", noSystem[0].Content)
}

func TestOllamaBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:11434/v1", OllamaBaseURL("http://localhost:11434"))
	assert.Equal(t, "http://localhost:11434/v1", OllamaBaseURL("http://localhost:11434/"))
	assert.Equal(t, "http://ollama/v1", OllamaBaseURL("http://ollama/v1"))
}

func TestOpenAICompatibleSendsProfile(t *testing.T) {
	var got chatRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON("  привет!  "))
	})

	resp, err := p.Complete(context.Background(), Request{Turns: turns(), Verbosity: domain.VerbosityShort})
	require.NoError(t, err)

	assert.Equal(t, "привет!", resp.Text)
	assert.Equal(t, "deepseek", resp.Provider)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 280, got.MaxTokens)
	assert.InDelta(t, 0.9, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Empty(t, got.Tools)
}

func TestOpenAICompatibleRememberTool(t *testing.T) {
	var calls atomic.Int32
	var second chatRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			var first chatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&first))
			require.Len(t, first.Tools, 1)
			assert.Equal(t, "remember_user_info", first.Tools[0].Function.Name)
			_, _ = io.WriteString(w, toolCallJSON)
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&second))
		_, _ = io.WriteString(w, completionJSON("запомнила"))
	})

	var saved []Fact
	resp, err := p.Complete(context.Background(), Request{
		Turns: turns(),
		Remember: func(_ context.Context, f Fact) error {
			saved = append(saved, f)
			return nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "запомнила", resp.Text)
	assert.Equal(t, []Fact{{Key: "city", Value: "Мадрид", Importance: "high"}}, saved)
	assert.Equal(t, saved, resp.Remembered)
	assert.EqualValues(t, 2, calls.Load())

	last := second.Messages[len(second.Messages)-1]
	assert.Equal(t, "tool", last.Role)
	assert.Equal(t, "call_1", last.ToolCallID)
}

func TestOpenAICompatibleErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		code      string
		retryable bool
	}{
		{"auth", http.StatusUnauthorized, apperrors.CodeLLMAuth, false},
		{"rate limit", http.StatusTooManyRequests, apperrors.CodeLLMRateLimit, true},
		{"server", http.StatusBadGateway, apperrors.CodeExternalAPI, true},
		{"gateway timeout", http.StatusGatewayTimeout, apperrors.CodeLLMTimeout, true},
		{"bad request", http.StatusBadRequest, apperrors.CodeExternalAPI, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"x"}}`)
			})

			_, err := p.Complete(context.Background(), Request{Turns: turns()})
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.code), err.Error())
			assert.Equal(t, tt.retryable, apperrors.IsRetryable(err))
		})
	}
}

func TestOpenAICompatibleEmptyContentIsMalformed(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON("   "))
	})

	_, err := p.Complete(context.Background(), Request{Turns: turns()})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeLLMMalformed))
}

func TestClientRetriesOnce(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error":{"message":"busy"}}`)
			return
		}
		_, _ = io.WriteString(w, completionJSON("ок"))
	})

	client := NewClient(p, ClientOptions{Timeout: 5 * time.Second, RetryDelay: time.Millisecond}, testLogger())
	resp, err := client.Complete(context.Background(), Request{Turns: turns(), Safety: "без токсичности"})
	require.NoError(t, err)
	assert.Equal(t, "ок", resp.Text)
	assert.EqualValues(t, 2, calls.Load())
}

func TestClientGivesUpAfterOneRetry(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := NewClient(p, ClientOptions{RetryDelay: time.Millisecond}, testLogger())
	_, err := client.Complete(context.Background(), Request{Turns: turns()})
	require.Error(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestClientDoesNotRetryAuth(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	client := NewClient(p, ClientOptions{RetryDelay: time.Millisecond}, testLogger())
	_, err := client.Complete(context.Background(), Request{Turns: turns()})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeLLMAuth))
	assert.EqualValues(t, 1, calls.Load())
}

func TestClientInjectsSafety(t *testing.T) {
	var got chatRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON("ок"))
	})

	client := NewClient(p, ClientOptions{}, testLogger())
	_, err := client.Complete(context.Background(), Request{Turns: turns(), Safety: "мягко отказывай"})
	require.NoError(t, err)

	require.Len(t, got.Messages, 3)
	assert.Equal(t, "мягко отказывай", got.Messages[0].Content)
	assert.Equal(t, "ты Алина", got.Messages[1].Content)
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, "ok", outcomeOf(nil))
	assert.Equal(t, "circuit_open", outcomeOf(apperrors.ErrCircuitOpen))
	assert.Equal(t, "timeout", outcomeOf(apperrors.NewLLMTimeoutError("x", nil)))
	assert.Equal(t, "malformed", outcomeOf(apperrors.NewLLMMalformedError("x", "empty")))
	assert.Equal(t, "canceled", outcomeOf(context.Canceled))
}

func TestToGeminiContents(t *testing.T) {
	system, contents := toGeminiContents([]domain.Turn{
		{Role: domain.RoleSystem, Content: "safe"},
		{Role: domain.RoleSystem, Content: "persona"},
		{Role: domain.RoleUser, Content: "привет"},
		{Role: domain.RoleAssistant, Content: "хай"},
	})

	assert.Equal(t, "safe\n\npersona", system)
	require.Len(t, contents, 2)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	assert.Equal(t, "хай", contents[1].Parts[0].Text)
}

func TestGeminiText(t *testing.T) {
	_, err := geminiText(&genai.GenerateContentResponse{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeLLMMalformed))

	text, err := geminiText(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "при"}, {Text: "вет "}}}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "привет", text)
}
