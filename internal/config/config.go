// Package config provides configuration management for the notification service.
//
// This package handles loading configuration from environment variables,
// validating required settings, and providing sensible defaults for optional
// parameters. Configuration is loaded once at startup and remains immutable
// during runtime; it is passed explicitly to every component that needs it.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (highest priority)
//  2. External .env file in the working directory
//  3. Embedded .env file (fallback, included in binary)
//  4. Hard-coded defaults (lowest priority)
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "civicnotify/internal/errors"
)

// embeddedEnv contains the .env file embedded at build time.
//
// Security note: the embedded .env only carries non-secret defaults.
// Gateway credentials must come from the environment.
//
//go:embed .env
var embeddedEnv string

// Config holds all application configuration.
type Config struct {
	// Messaging gateway (required)
	GatewayInstanceID string        // UltraMsg instance identifier
	GatewayToken      string        // UltraMsg API token
	GatewayBaseURL    string        // API root, overridable for tests and staging
	GatewayRatePerSec int           // Outbound messages per second
	RequestTimeout    time.Duration // Per gateway call

	// Routing
	DefaultContact string // "Name|address", overrides the directory file default
	DirectoryFile  string // Empty means the embedded directory

	// Message composition
	TruncateLength    int            // Default free-text bound, in runes
	CategoryTruncate  map[string]int // Per-category overrides, keyed lower-case
	MaxBodyLength     int            // Whole-message bound, in runes
	BackendURL        string         // Base for official action links
	FrontendURL       string         // Base for citizen tracking links
	TranslateAPIKey   string         // Optional, enables localized official messages
	TranslateLanguage string         // BCP 47 target, e.g. "te"

	// Retry policy
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMultiplier  float64

	// Action tokens
	TokenValidity time.Duration

	// Backing services (all optional, memory implementations otherwise)
	DatabaseURL  string
	RedisAddr    string
	KafkaBrokers []string

	// Runtime
	WorkerPoolSize  int
	HTTPPort        string
	OperatorAddress string // Receives critical alerts over the gateway when set

	// Telegram operator alerts (optional, preferred over OperatorAddress)
	TelegramBotToken string
	TelegramChatID   string
	DebugMode        bool // Simulate gateway calls
}

// LoadConfig loads configuration from environment variables with defaults
// and validates it.
//
// Loading process:
//  1. Parse embedded .env file and set as fallback environment variables
//  2. Try to load external .env file (does not override the environment)
//  3. Read environment variables
//  4. Apply hard-coded defaults for any missing optional values
//  5. Validate that all required fields are present
func LoadConfig() (*Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads configuration without validating it. Diagnostics use it to
// report on incomplete setups.
func Load() *Config {
	envMap, err := godotenv.Unmarshal(embeddedEnv)
	if err == nil {
		for k, v := range envMap {
			if os.Getenv(k) == "" {
				os.Setenv(k, v)
			}
		}
	}

	_ = godotenv.Load()

	return &Config{
		GatewayInstanceID: os.Getenv("ULTRAMSG_INSTANCE_ID"),
		GatewayToken:      os.Getenv("ULTRAMSG_TOKEN"),
		GatewayBaseURL:    getEnvOrDefault("GATEWAY_BASE_URL", "https://api.ultramsg.com"),
		GatewayRatePerSec: getEnvInt("GATEWAY_RATE_PER_SEC", 10),
		RequestTimeout:    getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),

		DefaultContact: os.Getenv("DEFAULT_DEPARTMENT_CONTACT"),
		DirectoryFile:  os.Getenv("DIRECTORY_FILE"),

		TruncateLength:    getEnvInt("TRUNCATE_LENGTH", 100),
		CategoryTruncate:  categoryLimits(os.Environ()),
		MaxBodyLength:     getEnvInt("MAX_BODY_LENGTH", 4096),
		BackendURL:        strings.TrimRight(getEnvOrDefault("BACKEND_URL", "http://localhost:5000"), "/"),
		FrontendURL:       strings.TrimRight(getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"), "/"),
		TranslateAPIKey:   os.Getenv("TRANSLATE_API_KEY"),
		TranslateLanguage: getEnvOrDefault("TRANSLATE_TARGET_LANG", "te"),

		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   getEnvDuration("RETRY_BASE_DELAY", 2*time.Second),
		RetryMultiplier:  getEnvFloat("RETRY_MULTIPLIER", 2),

		TokenValidity: getEnvDuration("TOKEN_VALIDITY", 7*24*time.Hour),

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),

		WorkerPoolSize:   getEnvInt("WORKER_POOL_SIZE", 10),
		HTTPPort:         getEnvOrDefault("HTTP_PORT", "5000"),
		OperatorAddress:  os.Getenv("OPERATOR_ADDRESS"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		DebugMode:        getEnvOrDefault("DEBUG_MODE", "false") == "true",
	}
}

// Validate checks that required configuration is present and values are sensible.
func (c *Config) Validate() error {
	if c.GatewayInstanceID == "" && !c.DebugMode {
		return apperrors.NewConfigurationError("ULTRAMSG_INSTANCE_ID environment variable is required", nil)
	}
	if c.GatewayToken == "" && !c.DebugMode {
		return apperrors.NewConfigurationError("ULTRAMSG_TOKEN environment variable is required", nil)
	}
	if c.GatewayBaseURL == "" {
		return apperrors.NewConfigurationError("GATEWAY_BASE_URL cannot be empty", nil)
	}

	if c.TruncateLength < 4 {
		return apperrors.NewConfigurationError(fmt.Sprintf("TRUNCATE_LENGTH must be at least 4, got %d", c.TruncateLength), nil)
	}
	for category, limit := range c.CategoryTruncate {
		if limit < 4 {
			return apperrors.NewConfigurationError(fmt.Sprintf("truncate length for %s must be at least 4, got %d", category, limit), nil)
		}
	}
	if c.MaxBodyLength < c.TruncateLength {
		return apperrors.NewConfigurationError(fmt.Sprintf("MAX_BODY_LENGTH must be at least TRUNCATE_LENGTH, got %d", c.MaxBodyLength), nil)
	}
	if c.RetryMaxAttempts < 1 {
		return apperrors.NewConfigurationError(fmt.Sprintf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.RetryMaxAttempts), nil)
	}
	if c.RetryMultiplier < 1 {
		return apperrors.NewConfigurationError(fmt.Sprintf("RETRY_MULTIPLIER must be at least 1, got %v", c.RetryMultiplier), nil)
	}
	if c.TokenValidity <= 0 {
		return apperrors.NewConfigurationError("TOKEN_VALIDITY must be positive", nil)
	}
	if c.RequestTimeout <= 0 {
		return apperrors.NewConfigurationError("REQUEST_TIMEOUT must be positive", nil)
	}
	if c.WorkerPoolSize < 1 {
		return apperrors.NewConfigurationError(fmt.Sprintf("WORKER_POOL_SIZE must be at least 1, got %d", c.WorkerPoolSize), nil)
	}
	if c.DefaultContact != "" {
		if _, _, err := ParseContact(c.DefaultContact); err != nil {
			return err
		}
	}

	return nil
}

// TruncateFor returns the free-text bound for a complaint category.
func (c *Config) TruncateFor(category string) int {
	if limit, ok := c.CategoryTruncate[strings.ToLower(strings.TrimSpace(category))]; ok {
		return limit
	}
	return c.TruncateLength
}

// ParseContact splits a "Name|address" pair.
func ParseContact(s string) (name, address string, err error) {
	parts := strings.SplitN(s, "|", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return "", "", apperrors.NewConfigurationError(
			fmt.Sprintf("DEFAULT_DEPARTMENT_CONTACT must look like \"Name|+91...\", got %q", s), nil)
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), nil
}

// Helper functions for environment variable parsing

// getEnvOrDefault returns the environment variable value or a default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as an integer or a default if not set/invalid
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns the environment variable as a float or a default if not set/invalid
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a default if not set/invalid.
//
// Accepts standard Go duration strings like "5s", "10m", "1h30m"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

const categoryPrefix = "TRUNCATE_LENGTH_"

// categoryLimits collects TRUNCATE_LENGTH_<CATEGORY>=n entries.
func categoryLimits(environ []string) map[string]int {
	limits := make(map[string]int)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, categoryPrefix) {
			continue
		}
		category := strings.ToLower(strings.TrimPrefix(key, categoryPrefix))
		if n, err := strconv.Atoi(value); err == nil && category != "" {
			limits[category] = n
		}
	}
	return limits
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
