package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"DATABASE_URL", "DB_DRIVER", "DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD", "DB_SSL_MODE",
	"host", "port", "dbname", "user", "password",
	"LLM_PROVIDER", "OLLAMA_BASE_URL", "OLLAMA_MODEL_NAME", "OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL", "LLM_TIMEOUT",
	"SCRIPT_WEBHOOK_URL", "REPORT_WEBHOOK_URL", "WEBHOOK_TOKEN", "WEBHOOK_TIMEOUT", "WEBHOOK_INSECURE",
	"MAX_VERIFY_RETRIES", "MAX_STEPS", "HISTORY_LIMIT",
	"SNAPSHOT_DB", "SNAPSHOT_CODEC", "SNAPSHOT_COMPRESSION", "SNAPSHOT_KEY",
	"LOG_LEVEL", "LOG_FORMAT", "SERVER_ADDR", "SERVER_API_KEY",
}

// clearEnv blanks every key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.LLM.OllamaBaseURL)
	assert.Equal(t, "llama3", cfg.LLM.OllamaModel)
	assert.Equal(t, 10*time.Minute, cfg.LLM.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, 2, cfg.Pipeline.MaxVerifyRetries)
	assert.Equal(t, 1000, cfg.Pipeline.MaxSteps)
	assert.Equal(t, 5, cfg.Pipeline.HistoryLimit)
	assert.Empty(t, cfg.Snapshot.DB)
	assert.Equal(t, "zstd", cfg.Snapshot.Compression)
	assert.Equal(t, ":8080", cfg.App.ServerAddr)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "host=localhost port=5432 user=postgres password= dbname=postgres sslmode=disable", cfg.DatabaseURL())
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "OpenAI")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LLM_TIMEOUT", "90")
	t.Setenv("WEBHOOK_TIMEOUT", "5s")
	t.Setenv("WEBHOOK_INSECURE", "true")
	t.Setenv("MAX_VERIFY_RETRIES", "3")
	t.Setenv("DATABASE_URL", "postgres://agent@db/soar")
	t.Setenv("DB_DRIVER", "Memory")
	t.Setenv("SCRIPT_WEBHOOK_URL", "https://st2.local/api/v1/webhooks/script")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 90*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Webhook.Timeout)
	assert.True(t, cfg.Webhook.InsecureSkipVerify)
	assert.Equal(t, 3, cfg.Pipeline.MaxVerifyRetries)
	assert.Equal(t, "postgres://agent@db/soar", cfg.DatabaseURL())
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	require.NoError(t, cfg.Validate())
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	// godotenv does not override variables that are already set, even empty
	for _, k := range []string{"host", "OLLAMA_MODEL_NAME", "HISTORY_LIMIT"} {
		require.NoError(t, os.Unsetenv(k))
	}
	t.Cleanup(func() {
		for _, k := range []string{"host", "OLLAMA_MODEL_NAME", "HISTORY_LIMIT"} {
			_ = os.Unsetenv(k)
		}
	})

	file := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(file, []byte("host=db.internal\nOLLAMA_MODEL_NAME=qwen2.5\nHISTORY_LIMIT=0\n"), 0o600))

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "qwen2.5", cfg.LLM.OllamaModel)
	assert.Equal(t, 0, cfg.Pipeline.HistoryLimit)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		msg    string
	}{
		{"zero retries", func(c *Config) { c.Pipeline.MaxVerifyRetries = 0 }, "MAX_VERIFY_RETRIES"},
		{"zero budget", func(c *Config) { c.Pipeline.MaxSteps = 0 }, "MAX_STEPS"},
		{"negative history", func(c *Config) { c.Pipeline.HistoryLimit = -1 }, "HISTORY_LIMIT"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "bedrock" }, "LLM_PROVIDER"},
		{"openai without key", func(c *Config) { c.LLM.Provider = "openai" }, "OPENAI_API_KEY"},
		{"relative webhook", func(c *Config) { c.Webhook.ReportURL = "/hooks/report" }, "REPORT_WEBHOOK_URL"},
		{"log format", func(c *Config) { c.App.LogFormat = "xml" }, "LOG_FORMAT"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "DB_DRIVER"},
		{"short snapshot key", func(c *Config) { c.Snapshot.Key = "abcd" }, "SNAPSHOT_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg := FromEnv()
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("SECAGENT_TEST_INT", "nope")
	assert.Equal(t, 7, getEnvAsInt("SECAGENT_TEST_INT", 7))

	t.Setenv("SECAGENT_TEST_DUR", "1m30s")
	assert.Equal(t, 90*time.Second, getEnvAsDuration("SECAGENT_TEST_DUR", time.Second))

	t.Setenv("SECAGENT_TEST_DUR", "soon")
	assert.Equal(t, time.Second, getEnvAsDuration("SECAGENT_TEST_DUR", time.Second))

	t.Setenv("SECAGENT_TEST_BOOL", "maybe")
	assert.False(t, getEnvAsBool("SECAGENT_TEST_BOOL", false))
}
