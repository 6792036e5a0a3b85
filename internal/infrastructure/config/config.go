// Package config loads runtime settings from the environment, after an
// optional .env file.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all configuration of the agent.
type Config struct {
	Database DatabaseConfig
	LLM      LLMConfig
	Webhook  WebhookConfig
	Pipeline PipelineConfig
	Snapshot SnapshotConfig
	App      AppConfig
}

// Incident store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type DatabaseConfig struct {
	Driver   string // postgres or memory; empty means postgres
	URL      string // takes precedence over the individual fields
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

type LLMConfig struct {
	Provider      string // ollama or openai
	OllamaBaseURL string
	OllamaModel   string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	Timeout       time.Duration
}

type WebhookConfig struct {
	ScriptURL          string
	ReportURL          string
	Token              string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

type PipelineConfig struct {
	MaxVerifyRetries int
	MaxSteps         int
	HistoryLimit     int
}

type SnapshotConfig struct {
	DB          string // sqlite path; empty keeps snapshots in memory
	Codec       string
	Compression string
	Key         string // hex AES-256 key; empty stores snapshots unencrypted
}

type AppConfig struct {
	LogLevel     string
	LogFormat    string
	ServerAddr   string
	ServerAPIKey string // empty leaves the HTTP API unauthenticated
}

// Load reads the given .env files (default ".env"; missing files are
// ignored), then the environment, and validates the result. Variables
// already set in the environment win over .env entries.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("load %s: %w", f, err)
			}
		}
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from the current environment without validating
// it. The lower-case host/port/dbname/user/password keys of older
// deployments are accepted as fallbacks for the DB_ keys.
func FromEnv() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:   strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", getEnv("host", "localhost")),
			Port:     getEnvAsInt("DB_PORT", getEnvAsInt("port", 5432)),
			Name:     getEnv("DB_NAME", getEnv("dbname", "postgres")),
			User:     getEnv("DB_USER", getEnv("user", "postgres")),
			Password: getEnv("DB_PASSWORD", getEnv("password", "")),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		LLM: LLMConfig{
			Provider:      strings.ToLower(getEnv("LLM_PROVIDER", "ollama")),
			OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:   getEnv("OLLAMA_MODEL_NAME", "llama3"),
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
			Timeout:       getEnvAsDuration("LLM_TIMEOUT", 10*time.Minute),
		},
		Webhook: WebhookConfig{
			ScriptURL:          getEnv("SCRIPT_WEBHOOK_URL", ""),
			ReportURL:          getEnv("REPORT_WEBHOOK_URL", ""),
			Token:              getEnv("WEBHOOK_TOKEN", ""),
			Timeout:            getEnvAsDuration("WEBHOOK_TIMEOUT", 30*time.Second),
			InsecureSkipVerify: getEnvAsBool("WEBHOOK_INSECURE", false),
		},
		Pipeline: PipelineConfig{
			MaxVerifyRetries: getEnvAsInt("MAX_VERIFY_RETRIES", 2),
			MaxSteps:         getEnvAsInt("MAX_STEPS", 1000),
			HistoryLimit:     getEnvAsInt("HISTORY_LIMIT", 5),
		},
		Snapshot: SnapshotConfig{
			DB:          getEnv("SNAPSHOT_DB", ""),
			Codec:       getEnv("SNAPSHOT_CODEC", "msgpack"),
			Compression: getEnv("SNAPSHOT_COMPRESSION", "zstd"),
			Key:         getEnv("SNAPSHOT_KEY", ""),
		},
		App: AppConfig{
			LogLevel:     getEnv("LOG_LEVEL", "info"),
			LogFormat:    getEnv("LOG_FORMAT", "text"),
			ServerAddr:   getEnv("SERVER_ADDR", ":8080"),
			ServerAPIKey: getEnv("SERVER_API_KEY", ""),
		},
	}
}

// Validate checks ceilings, budgets, the provider and the URLs.
func (c *Config) Validate() error {
	var problems []string
	if c.Pipeline.MaxVerifyRetries < 1 {
		problems = append(problems, fmt.Sprintf("MAX_VERIFY_RETRIES must be >= 1, got %d", c.Pipeline.MaxVerifyRetries))
	}
	if c.Pipeline.MaxSteps < 1 {
		problems = append(problems, fmt.Sprintf("MAX_STEPS must be >= 1, got %d", c.Pipeline.MaxSteps))
	}
	if c.Pipeline.HistoryLimit < 0 {
		problems = append(problems, fmt.Sprintf("HISTORY_LIMIT must be >= 0, got %d", c.Pipeline.HistoryLimit))
	}
	switch c.Database.Driver {
	case "", DriverPostgres, DriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("DB_DRIVER must be postgres or memory, got %q", c.Database.Driver))
	}
	switch c.LLM.Provider {
	case "ollama":
	case "openai":
		if c.LLM.OpenAIAPIKey == "" {
			problems = append(problems, "OPENAI_API_KEY is required for the openai provider")
		}
	default:
		problems = append(problems, fmt.Sprintf("LLM_PROVIDER must be ollama or openai, got %q", c.LLM.Provider))
	}
	if c.LLM.Timeout <= 0 {
		problems = append(problems, "LLM_TIMEOUT must be positive")
	}
	for key, raw := range map[string]string{
		"SCRIPT_WEBHOOK_URL": c.Webhook.ScriptURL,
		"REPORT_WEBHOOK_URL": c.Webhook.ReportURL,
	} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("%s is not an absolute URL: %q", key, raw))
		}
	}
	if c.Snapshot.Key != "" {
		if key, err := hex.DecodeString(c.Snapshot.Key); err != nil || len(key) != 32 {
			problems = append(problems, "SNAPSHOT_KEY must be 64 hex characters")
		}
	}
	switch c.App.LogFormat {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("LOG_FORMAT must be text or json, got %q", c.App.LogFormat))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// DatabaseURL returns DATABASE_URL or a DSN assembled from the DB_ keys.
func (c *Config) DatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if valueStr := os.Getenv(key); valueStr != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(valueStr)); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if valueStr := os.Getenv(key); valueStr != "" {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
