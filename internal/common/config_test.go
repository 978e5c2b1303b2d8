package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "caseflow.db", cfg.Database.DSN)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.LLM.BatchSize)
	assert.Equal(t, 10*time.Second, cfg.Channel.AckTimeout)
	assert.Equal(t, time.Second, cfg.Pipeline.RetryBase)
	assert.Equal(t, 5, cfg.Pipeline.MaxAttempts)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/caseflow")
	t.Setenv("LLM_BATCH_SIZE", "7")
	t.Setenv("CHANNEL_ACK_TIMEOUT", "30s")
	t.Setenv("PIPELINE_MAX_ATTEMPTS", "2")

	cfg := LoadConfig()
	assert.Equal(t, "postgres://localhost/caseflow", cfg.Database.DSN)
	assert.Equal(t, 7, cfg.LLM.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Channel.AckTimeout)
	assert.Equal(t, 2, cfg.Pipeline.MaxAttempts)
}

func TestValidateRequiresAPIKey(t *testing.T) {
	cfg := LoadConfig()
	cfg.LLM.APIKey = ""

	err := cfg.Validate()
	assert.ErrorContains(t, err, "GEMINI_API_KEY")

	cfg.LLM.APIKey = "key"
	assert.NoError(t, cfg.Validate())
}
