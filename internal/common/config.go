package common

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Docs     DocsConfig
	LLM      LLMConfig
	Channel  ChannelConfig
	Pipeline PipelineConfig
}

// DatabaseConfig holds result-store configuration. The DSN scheme selects the
// driver: "postgres://..." uses pgx, anything else is treated as a sqlite path.
type DatabaseConfig struct {
	DSN         string
	DialTimeout time.Duration
}

// ServerConfig holds the websocket listener configuration.
type ServerConfig struct {
	Addr string
}

// DocsConfig holds the document-store configuration.
type DocsConfig struct {
	Root string
}

// LLMConfig holds inference-gateway configuration.
type LLMConfig struct {
	APIKey         string
	Model          string
	VisionModel    string
	BaseURL        string
	Timeout        time.Duration
	MaxPromptBytes int
	BatchSize      int
}

// ChannelConfig holds event-channel delivery settings.
type ChannelConfig struct {
	AckTimeout        time.Duration
	MaxResends        int
	HeartbeatInterval time.Duration
	SessionGrace      time.Duration
}

// PipelineConfig holds per-job execution settings.
type PipelineConfig struct {
	RetryBase   time.Duration
	MaxAttempts int
	Retention   time.Duration
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:         getEnv("DB_URL", "caseflow.db"),
			DialTimeout: getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Server: ServerConfig{
			Addr: getEnv("WS_ADDR", ":8080"),
		},
		Docs: DocsConfig{
			Root: getEnv("CASE_DOCS_DIR", "./cases"),
		},
		LLM: LLMConfig{
			APIKey:         getEnv("GEMINI_API_KEY", ""),
			Model:          getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			VisionModel:    getEnv("GEMINI_IMAGE_MODEL", ""),
			BaseURL:        getEnv("GEMINI_BASE_URL", ""),
			Timeout:        getEnvAsDuration("GEMINI_TIMEOUT", 5*time.Minute),
			MaxPromptBytes: getEnvAsInt("LLM_MAX_PROMPT_BYTES", 1<<20),
			BatchSize:      getEnvAsInt("LLM_BATCH_SIZE", 3),
		},
		Channel: ChannelConfig{
			AckTimeout:        getEnvAsDuration("CHANNEL_ACK_TIMEOUT", 10*time.Second),
			MaxResends:        getEnvAsInt("CHANNEL_MAX_RESENDS", 3),
			HeartbeatInterval: getEnvAsDuration("CHANNEL_HEARTBEAT_INTERVAL", 10*time.Second),
			SessionGrace:      getEnvAsDuration("CHANNEL_SESSION_GRACE", 2*time.Minute),
		},
		Pipeline: PipelineConfig{
			RetryBase:   getEnvAsDuration("PIPELINE_RETRY_BASE", time.Second),
			MaxAttempts: getEnvAsInt("PIPELINE_MAX_ATTEMPTS", 5),
			Retention:   getEnvAsDuration("JOB_RETENTION", 10*time.Minute),
		},
	}
}

// Validate checks the loaded configuration. A missing inference capability is
// fatal at startup, not per-job.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return errors.New("GEMINI_API_KEY is required")
	}
	if c.Database.DSN == "" {
		return errors.New("DB_URL is required")
	}
	if c.Server.Addr == "" {
		return errors.New("WS_ADDR is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
