// Package config provides configuration loading and validation utilities.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envBindings maps config keys to the environment variables operators set.
var envBindings = map[string]string{
	"app_env":                         "APP_ENV",
	"telegram.token":                  "TELEGRAM_BOT_TOKEN",
	"telegram.poll_timeout":           "TELEGRAM_POLL_TIMEOUT",
	"llm.provider":                    "LLM_PROVIDER",
	"llm.deepseek_api_key":            "DEEPSEEK_API_KEY",
	"llm.deepseek_model":              "DEEPSEEK_MODEL",
	"llm.deepseek_base_url":           "DEEPSEEK_BASE_URL",
	"llm.openrouter_api_key":          "OPENROUTER_API_KEY",
	"llm.openrouter_model":            "OPENROUTER_MODEL",
	"llm.ollama_host":                 "OLLAMA_HOST",
	"llm.ollama_model":                "OLLAMA_MODEL",
	"llm.gemini_api_key":              "GEMINI_API_KEY",
	"llm.gemini_model":                "GEMINI_MODEL",
	"llm.use_proxy":                   "USE_PROXY",
	"llm.proxy_url":                   "PROXY_URL",
	"llm.timeout":                     "LLM_TIMEOUT",
	"llm.retry_delay":                 "LLM_RETRY_DELAY",
	"llm.max_reply_chars":             "LLM_MAX_REPLY_CHARS",
	"llm.history_limit":               "LLM_HISTORY_LIMIT",
	"database.driver":                 "DATABASE_DRIVER",
	"database.dsn":                    "DATABASE_DSN",
	"redis.addr":                      "REDIS_ADDR",
	"redis.password":                  "REDIS_PASSWORD",
	"redis.db":                        "REDIS_DB",
	"server.port":                     "HTTP_PORT",
	"server.read_timeout":             "HTTP_READ_TIMEOUT",
	"server.write_timeout":            "HTTP_WRITE_TIMEOUT",
	"server.shutdown_timeout":         "SHUTDOWN_TIMEOUT",
	"log.level":                       "LOG_LEVEL",
	"log.format":                      "LOG_FORMAT",
	"log.file":                        "LOG_FILE",
	"log.max_size_mb":                 "LOG_MAX_SIZE_MB",
	"log.max_backups":                 "LOG_MAX_BACKUPS",
	"log.max_age_days":                "LOG_MAX_AGE_DAYS",
	"sentry.enabled":                  "SENTRY_ENABLED",
	"sentry.dsn":                      "SENTRY_DSN",
	"sentry.environment":              "SENTRY_ENVIRONMENT",
	"sentry.sample_rate":              "SENTRY_SAMPLE_RATE",
	"subscription.free_messages":      "FREE_MESSAGES",
	"subscription.stars_day_amount":   "STARS_DAY_AMOUNT",
	"subscription.stars_week_amount":  "STARS_WEEK_AMOUNT",
	"subscription.stars_month_amount": "STARS_MONTH_AMOUNT",
	"subscription.day_days":           "SUB_DAY_DAYS",
	"subscription.week_days":          "SUB_WEEK_DAYS",
	"subscription.month_days":         "SUB_MONTH_DAYS",
	"subscription.renewal_lead":       "RENEWAL_LEAD",
	"redsys.enabled":                  "REDSYS_ENABLED",
	"redsys.env":                      "REDSYS_ENV",
	"redsys.merchant_code":            "REDSYS_MERCHANT_CODE",
	"redsys.terminal":                 "REDSYS_TERMINAL",
	"redsys.key":                      "REDSYS_KEY",
	"redsys.currency":                 "REDSYS_CURRENCY",
	"redsys.notify_url":               "REDSYS_NOTIFY_URL",
	"redsys.ok_url":                   "REDSYS_OK_URL",
	"redsys.ko_url":                   "REDSYS_KO_URL",
	"redsys.amount_cents":             "REDSYS_AMOUNT_CENTS",
	"redsys.plan_days":                "REDSYS_PLAN_DAYS",
	"ratelimit.message_limit":         "RATE_LIMIT_MESSAGES",
	"ratelimit.message_window":        "RATE_LIMIT_WINDOW",
	"ratelimit.global_limit":          "RATE_LIMIT_GLOBAL",
	"ratelimit.global_window":         "RATE_LIMIT_GLOBAL_WINDOW",
	"session.backend":                 "SESSION_BACKEND",
	"session.ttl":                     "SESSION_TTL",
	"session.max_users":               "SESSION_MAX_USERS",
	"persona.keywords_file":           "PERSONA_KEYWORDS_FILE",
	"persona.locale":                  "BOT_LOCALE",
	"persona.locales_dir":             "BOT_LOCALES_DIR",
	"typing.enabled":                  "TYPING_ENABLED",
	"typing.max_delay":                "TYPING_MAX_DELAY",
	"debug.user_ids":                  "DEBUG_USER_IDS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "development")
	v.SetDefault("telegram.poll_timeout", 10*time.Second)

	v.SetDefault("llm.provider", "deepseek")
	v.SetDefault("llm.deepseek_model", "deepseek-chat")
	v.SetDefault("llm.deepseek_base_url", "https://api.deepseek.com")
	v.SetDefault("llm.openrouter_model", "deepseek/deepseek-chat")
	v.SetDefault("llm.ollama_model", "llama3.1")
	v.SetDefault("llm.gemini_model", "gemini-2.0-flash")
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.retry_delay", 700*time.Millisecond)
	v.SetDefault("llm.max_reply_chars", 700)
	v.SetDefault("llm.history_limit", 20)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:alina.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("subscription.free_messages", 10)
	v.SetDefault("subscription.stars_day_amount", 200)
	v.SetDefault("subscription.stars_week_amount", 600)
	v.SetDefault("subscription.stars_month_amount", 1200)
	v.SetDefault("subscription.day_days", 1)
	v.SetDefault("subscription.week_days", 7)
	v.SetDefault("subscription.month_days", 30)
	v.SetDefault("subscription.renewal_lead", 12*time.Hour)

	v.SetDefault("redsys.env", "test")
	v.SetDefault("redsys.terminal", "1")
	v.SetDefault("redsys.currency", "978")
	v.SetDefault("redsys.amount_cents", 999)
	v.SetDefault("redsys.plan_days", 30)

	v.SetDefault("ratelimit.message_limit", 1)
	v.SetDefault("ratelimit.message_window", time.Second)
	v.SetDefault("ratelimit.global_limit", 30)
	v.SetDefault("ratelimit.global_window", time.Minute)

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.ttl", 6*time.Hour)
	v.SetDefault("session.max_users", 10000)

	v.SetDefault("persona.locale", "ru")

	v.SetDefault("typing.enabled", true)
	v.SetDefault("typing.max_delay", 3500*time.Millisecond)
}

// Load reads configuration from .env files, an optional YAML file and environment variables,
// validates it, and returns the resulting Config.
func Load() (*Config, *viper.Viper, error) {
	// .env files are optional; process env always wins over them.
	_ = godotenv.Load(".env.local", ".env")

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	v := viper.New()
	setDefaults(v)
	for key, envName := range envBindings {
		if err := v.BindEnv(key, envName); err != nil {
			return nil, nil, fmt.Errorf("bind env %s: %w", envName, err)
		}
	}

	configFile := fmt.Sprintf("./configs/%s.yaml", env)
	if _, err := os.Stat(configFile); err == nil {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	cfg.AppEnv = env

	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct constraints and provider-specific requirements.
// Errors name the environment variable to fix.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s (%s)", envNameFor(fe.Namespace()), fe.Tag()))
			}
			return fmt.Errorf("validate config: invalid or missing %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("validate config: %w", err)
	}

	if err := cfg.validateProvider(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	return nil
}

func envNameFor(namespace string) string {
	key := namespace
	if idx := strings.Index(key, "."); idx >= 0 {
		key = key[idx+1:]
	}
	if envName, ok := envBindings[key]; ok {
		return envName
	}
	return key
}
