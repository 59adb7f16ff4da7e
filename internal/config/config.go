package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLM providers
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

type Config struct {
	// NATS configuration
	NatsURL           string
	NatsTurnSubject   string
	NatsQueueGroup    string
	NatsNotifySubject string
	NatsTimeout       time.Duration

	// Redis configuration
	RedisURL   string
	SessionTTL time.Duration // 0 keeps sessions as an audit trail

	// HTTP configuration
	HTTPAddr string

	// LLM configuration
	LLMProvider         string
	LLMModel            string
	AnthropicAPIKey     string
	OpenAIAPIKey        string
	CollaboratorTimeout time.Duration

	// Dialogue configuration
	TurnTimeout      time.Duration
	MaxFieldAttempts int
	CatalogFile      string

	// Service configuration
	ServiceName string
	LogLevel    slog.Level
	LogFile     string
}

func Load() (*Config, error) {
	cfg := &Config{
		// NATS settings
		NatsURL:           getEnv("NATS_URL", "nats://localhost:4222"),
		NatsTurnSubject:   getEnv("NATS_TURN_SUBJECT", "intake.turn"),
		NatsQueueGroup:    getEnv("NATS_QUEUE_GROUP", "council-intake"),
		NatsNotifySubject: getEnv("NATS_NOTIFY_SUBJECT", "intake.notify.email"),
		NatsTimeout:       getDurationEnv("NATS_TIMEOUT", 30*time.Second),

		// Redis settings
		RedisURL:   getEnv("REDIS_URL", "redis://localhost:6379/0"),
		SessionTTL: getDurationEnv("SESSION_TTL", 0),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		// LLM settings
		LLMProvider:         strings.ToLower(getEnv("LLM_PROVIDER", ProviderAnthropic)),
		LLMModel:            getEnv("LLM_MODEL", "claude-3-5-haiku-20241022"),
		AnthropicAPIKey:     getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		CollaboratorTimeout: getDurationEnv("COLLABORATOR_TIMEOUT", 8*time.Second),

		// Dialogue settings
		TurnTimeout:      getDurationEnv("TURN_TIMEOUT", 30*time.Second),
		MaxFieldAttempts: getIntEnv("MAX_FIELD_ATTEMPTS", 3),
		CatalogFile:      getEnv("CATALOG_FILE", ""),

		// Service settings
		ServiceName: getEnv("SERVICE_NAME", "council-intake"),
		LogLevel:    getLevelEnv("LOG_LEVEL", slog.LevelInfo),
		LogFile:     getEnv("LOG_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable is required")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable is required")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.MaxFieldAttempts < 1 {
		return fmt.Errorf("MAX_FIELD_ATTEMPTS must be at least 1, got %d", c.MaxFieldAttempts)
	}
	if c.CollaboratorTimeout >= c.TurnTimeout {
		return fmt.Errorf("COLLABORATOR_TIMEOUT (%s) must be shorter than TURN_TIMEOUT (%s)", c.CollaboratorTimeout, c.TurnTimeout)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getLevelEnv(key string, defaultValue slog.Level) slog.Level {
	if value := os.Getenv(key); value != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(value)); err == nil {
			return level
		}
	}
	return defaultValue
}
