// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverFile   = "file"
	StoreDriverSQLite = "sqlite"
	StoreDriverMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	LogLevel        slog.Level
	GeminiAPIKey    string
	GeminiModel     string
	GatewayTimeout  time.Duration // 0 = wait for the model indefinitely
	UseMockGateway  bool
	StoreDriver     string
	StatePath       string
	DBPath          string
	PersonaSeedPath string
	UploadDir       string
	MaxUploadBytes  int64
	MaxBodyBytes    int64
	AllowedOrigins  []string
	ConversationLog ConversationLogConfig
}

// ConversationLogConfig controls the NDJSON chat transcript.
type ConversationLogConfig struct {
	Enabled   bool
	Path      string
	QueueSize int
}

// Option adjusts a loaded configuration before it is validated. Command-line
// flags use it to take precedence over the environment.
type Option func(*Config)

// Load reads configuration from environment variables.
func Load(opts ...Option) (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:            getEnv("PORT", "3000"),
		LogLevel:        parseLevel(getEnv("LOG_LEVEL", "info")),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-1.5-pro"),
		GatewayTimeout:  getEnvDuration("GATEWAY_TIMEOUT", 0),
		UseMockGateway:  getEnvBool("USE_MOCK_GATEWAY", false),
		StoreDriver:     strings.ToLower(getEnv("STORE_DRIVER", StoreDriverFile)),
		StatePath:       getEnv("STATE_PATH", "./data/persona.json"),
		DBPath:          getEnv("DB_PATH", "./data/persona.db"),
		PersonaSeedPath: getEnv("PERSONA_SEED_PATH", ""),
		UploadDir:       getEnv("UPLOAD_DIR", "./data/uploads"),
		MaxUploadBytes:  int64(getEnvInt("MAX_UPLOAD_BYTES", 5<<20)),
		MaxBodyBytes:    int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),
		AllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Path:      getEnv("CONVERSATION_LOG_PATH", "./data/logs/conversation.ndjson"),
			QueueSize: queueSize,
		},
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if !c.UseMockGateway && c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	switch c.StoreDriver {
	case StoreDriverFile:
		if c.StatePath == "" {
			return fmt.Errorf("STATE_PATH cannot be empty")
		}
	case StoreDriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of file, sqlite, memory (got %q)", c.StoreDriver)
	}
	if c.UploadDir == "" {
		return fmt.Errorf("UPLOAD_DIR cannot be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be > 0")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be > 0")
	}
	if c.GatewayTimeout < 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT cannot be negative")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Path == "" {
		return fmt.Errorf("CONVERSATION_LOG_PATH cannot be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
