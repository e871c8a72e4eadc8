package config

import (
	"fmt"
	"time"
)

// Config holds runtime configuration for the Alina bot.
type Config struct {
	AppEnv       string             `mapstructure:"app_env"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Sentry       SentryConfig       `mapstructure:"sentry"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
	Redsys       RedsysConfig       `mapstructure:"redsys"`
	RateLimit    RateLimitConfig    `mapstructure:"ratelimit"`
	Session      SessionConfig      `mapstructure:"session"`
	Persona      PersonaConfig      `mapstructure:"persona"`
	Typing       TypingConfig       `mapstructure:"typing"`
	Debug        DebugConfig        `mapstructure:"debug"`
}

type TelegramConfig struct {
	Token       string        `mapstructure:"token" validate:"required"`
	PollTimeout time.Duration `mapstructure:"poll_timeout" validate:"gt=0"`
}

// LLMConfig selects the chat-completion backend and its credentials.
type LLMConfig struct {
	Provider         string        `mapstructure:"provider" validate:"oneof=deepseek openrouter ollama gemini"`
	DeepSeekAPIKey   string        `mapstructure:"deepseek_api_key"`
	DeepSeekModel    string        `mapstructure:"deepseek_model"`
	DeepSeekBaseURL  string        `mapstructure:"deepseek_base_url" validate:"omitempty,url"`
	OpenRouterAPIKey string        `mapstructure:"openrouter_api_key"`
	OpenRouterModel  string        `mapstructure:"openrouter_model"`
	OllamaHost       string        `mapstructure:"ollama_host" validate:"omitempty,url"`
	OllamaModel      string        `mapstructure:"ollama_model"`
	GeminiAPIKey     string        `mapstructure:"gemini_api_key"`
	GeminiModel      string        `mapstructure:"gemini_model"`
	UseProxy         bool          `mapstructure:"use_proxy"`
	ProxyURL         string        `mapstructure:"proxy_url" validate:"required_if=UseProxy true,omitempty,url"`
	Timeout          time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	MaxReplyChars    int           `mapstructure:"max_reply_chars" validate:"gte=100"`
	HistoryLimit     int           `mapstructure:"history_limit" validate:"gte=0"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `mapstructure:"dsn" validate:"required"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// LogConfig controls slog output and optional file rotation.
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// SubscriptionConfig describes the free tier and the Stars plans.
type SubscriptionConfig struct {
	FreeMessages     int           `mapstructure:"free_messages" validate:"gte=0"`
	StarsDayAmount   int           `mapstructure:"stars_day_amount" validate:"gt=0"`
	StarsWeekAmount  int           `mapstructure:"stars_week_amount" validate:"gt=0"`
	StarsMonthAmount int           `mapstructure:"stars_month_amount" validate:"gt=0"`
	DayDays          int           `mapstructure:"day_days" validate:"gt=0"`
	WeekDays         int           `mapstructure:"week_days" validate:"gt=0"`
	MonthDays        int           `mapstructure:"month_days" validate:"gt=0"`
	RenewalLead      time.Duration `mapstructure:"renewal_lead" validate:"gt=0"`
}

// RedsysConfig holds card gateway merchant credentials.
type RedsysConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Env          string `mapstructure:"env" validate:"oneof=test prod"`
	MerchantCode string `mapstructure:"merchant_code" validate:"required_if=Enabled true"`
	Terminal     string `mapstructure:"terminal"`
	Key          string `mapstructure:"key" validate:"required_if=Enabled true,omitempty,base64"`
	Currency     string `mapstructure:"currency"`
	NotifyURL    string `mapstructure:"notify_url" validate:"required_if=Enabled true,omitempty,url"`
	OKURL        string `mapstructure:"ok_url" validate:"omitempty,url"`
	KOURL        string `mapstructure:"ko_url" validate:"omitempty,url"`
	AmountCents  int    `mapstructure:"amount_cents" validate:"gte=0"`
	PlanDays     int    `mapstructure:"plan_days" validate:"gte=0"`
}

type RateLimitConfig struct {
	MessageLimit  int           `mapstructure:"message_limit" validate:"gt=0"`
	MessageWindow time.Duration `mapstructure:"message_window" validate:"gt=0"`
	GlobalLimit   int           `mapstructure:"global_limit" validate:"gt=0"`
	GlobalWindow  time.Duration `mapstructure:"global_window" validate:"gt=0"`
}

// SessionConfig bounds the per-user conversational windows.
type SessionConfig struct {
	Backend  string        `mapstructure:"backend" validate:"oneof=memory redis"`
	TTL      time.Duration `mapstructure:"ttl" validate:"gt=0"`
	MaxUsers int           `mapstructure:"max_users" validate:"gt=0"`
}

type PersonaConfig struct {
	KeywordsFile string `mapstructure:"keywords_file"`
	Locale       string `mapstructure:"locale"`
	LocalesDir   string `mapstructure:"locales_dir"`
}

type TypingConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

type DebugConfig struct {
	UserIDs []int64 `mapstructure:"user_ids"`
}

// IsDebugUser reports whether the user may run debug commands.
func (c DebugConfig) IsDebugUser(id int64) bool {
	for _, uid := range c.UserIDs {
		if uid == id {
			return true
		}
	}
	return false
}

// validateProvider checks credentials required by the selected LLM backend.
func (c *Config) validateProvider() error {
	switch c.LLM.Provider {
	case "deepseek":
		if c.LLM.DeepSeekAPIKey == "" {
			return fmt.Errorf("DEEPSEEK_API_KEY is required for provider %q", c.LLM.Provider)
		}
	case "openrouter":
		if c.LLM.OpenRouterAPIKey == "" {
			return fmt.Errorf("OPENROUTER_API_KEY is required for provider %q", c.LLM.Provider)
		}
	case "ollama":
		if c.LLM.OllamaHost == "" {
			return fmt.Errorf("OLLAMA_HOST is required for provider %q", c.LLM.Provider)
		}
	case "gemini":
		if c.LLM.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for provider %q", c.LLM.Provider)
		}
	}
	return nil
}
