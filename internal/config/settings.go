package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Settings is the process-level configuration of the mohtion service
type Settings struct {
	// AnthropicAPIKey authenticates the text-generation client
	AnthropicAPIKey string

	// Model overrides the default generation model
	Model string

	// Workers is the number of concurrent bounty jobs
	// Default: 5
	Workers int

	// JobTimeout is the hard wall-clock limit per job
	// Default: 10m
	JobTimeout time.Duration

	// WorkspaceRoot holds the per-attempt working copies
	// Default: $TMPDIR/mohtion
	WorkspaceRoot string

	// DBPath is the bounty history database
	// Default: mohtion.db
	DBPath string

	LogLevel  string // Default: info
	LogFormat string // text or json, default: text

	WebhookSecret string
	ListenAddr    string // Default: :8080

	MQTTBroker string // Empty disables MQTT notifications
	MQTTTopic  string // Default: mohtion/bounties

	GitHubHost string // Default: github.com
}

// DefaultSettings returns the defaults used when no environment overrides exist
func DefaultSettings() Settings {
	return Settings{
		Workers:       5,
		JobTimeout:    10 * time.Minute,
		WorkspaceRoot: filepath.Join(os.TempDir(), "mohtion"),
		DBPath:        "mohtion.db",
		LogLevel:      "info",
		LogFormat:     "text",
		ListenAddr:    ":8080",
		MQTTTopic:     "mohtion/bounties",
		GitHubHost:    "github.com",
	}
}

// LoadDotEnv loads variables from the given .env files (default ".env") without
// overriding variables already set. Missing files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// SettingsFromEnv creates Settings from environment variables, falling back to defaults
//
// Environment variables:
//   - ANTHROPIC_API_KEY
//   - MOHTION_MODEL
//   - MOHTION_WORKERS (default: 5)
//   - MOHTION_JOB_TIMEOUT (default: 10m)
//   - MOHTION_WORKSPACE_ROOT
//   - MOHTION_DB_PATH (default: mohtion.db)
//   - MOHTION_LOG_LEVEL (default: info)
//   - MOHTION_LOG_FORMAT (default: text)
//   - MOHTION_WEBHOOK_SECRET
//   - MOHTION_LISTEN_ADDR (default: :8080)
//   - MOHTION_MQTT_BROKER, MOHTION_MQTT_TOPIC
//   - GITHUB_HOST (default: github.com)
//
// Returns an error if any environment variable has an invalid value.
func SettingsFromEnv() (Settings, error) {
	cfg := DefaultSettings()

	if err := parseEnvString("ANTHROPIC_API_KEY", &cfg.AnthropicAPIKey); err != nil {
		return cfg, err
	}
	if err := parseEnvString("MOHTION_MODEL", &cfg.Model); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("MOHTION_WORKERS", &cfg.Workers); err != nil {
		return cfg, err
	}
	if err := parseEnvDuration("MOHTION_JOB_TIMEOUT", &cfg.JobTimeout); err != nil {
		return cfg, err
	}
	if err := parseEnvString("MOHTION_WORKSPACE_ROOT", &cfg.WorkspaceRoot); err != nil {
		return cfg, err
	}
	if err := parseEnvString("MOHTION_DB_PATH", &cfg.DBPath); err != nil {
		return cfg, err
	}
	if err := parseEnvString("MOHTION_LOG_LEVEL", &cfg.LogLevel); err != nil {
		return cfg, err
	}
	if err := parseEnvString("MOHTION_LOG_FORMAT", &cfg.LogFormat); err != nil {
		return cfg, err
	}
	if err := parseEnvString("MOHTION_WEBHOOK_SECRET", &cfg.WebhookSecret); err != nil {
		return cfg, err
	}
	if err := parseEnvString("MOHTION_LISTEN_ADDR", &cfg.ListenAddr); err != nil {
		return cfg, err
	}
	if err := parseEnvString("MOHTION_MQTT_BROKER", &cfg.MQTTBroker); err != nil {
		return cfg, err
	}
	if err := parseEnvString("MOHTION_MQTT_TOPIC", &cfg.MQTTTopic); err != nil {
		return cfg, err
	}
	if err := parseEnvString("GITHUB_HOST", &cfg.GitHubHost); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid settings from environment: %w", err)
	}
	return cfg, nil
}

// Validate checks if the settings have valid values
func (s Settings) Validate() error {
	if s.Workers < 1 || s.Workers > 100 {
		return fmt.Errorf("workers must be between 1 and 100 (got %d)", s.Workers)
	}
	if s.JobTimeout <= 0 {
		return fmt.Errorf("job_timeout must be positive (got %v)", s.JobTimeout)
	}
	if s.LogFormat != "text" && s.LogFormat != "json" {
		return fmt.Errorf("log_format must be text or json (got %q)", s.LogFormat)
	}
	if s.WorkspaceRoot == "" {
		return fmt.Errorf("workspace_root is required")
	}
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a time.Duration from an environment variable
func parseEnvDuration(key string, dest *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	*dest = value
	return nil
}
