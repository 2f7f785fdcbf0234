// ABOUTME: Configuration loading and parsing for chat-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete chat-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Assistant AssistantConfig `yaml:"assistant"`
	Chat      ChatConfig      `yaml:"chat"`
	Tools     ToolsConfig     `yaml:"tools"`
	Janitor   JanitorConfig   `yaml:"janitor"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AssistantConfig holds the external assistant API configuration
type AssistantConfig struct {
	APIKey      string `yaml:"api_key"`
	AssistantID string `yaml:"assistant_id"`
	BaseURL     string `yaml:"base_url"` // optional endpoint override
}

// ChatConfig holds turn-processing timing configuration
type ChatConfig struct {
	ProcessingStaleness time.Duration `yaml:"-"`
	ThreadExpiration    time.Duration `yaml:"-"`
	RunRetryDelay       time.Duration `yaml:"-"`
	RunPollTimeout      time.Duration `yaml:"-"`
	RunPollInterval     time.Duration `yaml:"-"`
	LockTimeout         time.Duration `yaml:"-"`

	RunCreateRetries int    `yaml:"run_create_retries"`
	WelcomeMessage   string `yaml:"welcome_message"`

	// Raw string values for YAML unmarshaling
	ProcessingStalenessRaw string `yaml:"processing_staleness"`
	ThreadExpirationRaw    string `yaml:"thread_expiration"`
	RunRetryDelayRaw       string `yaml:"run_retry_delay"`
	RunPollTimeoutRaw      string `yaml:"run_poll_timeout"`
	RunPollIntervalRaw     string `yaml:"run_poll_interval"`
	LockTimeoutRaw         string `yaml:"lock_timeout"`
}

// ToolsConfig holds the internal service endpoints for tool dispatch
type ToolsConfig struct {
	JobListingsURL           string `yaml:"job_listings_url"`
	CourseRecommendationsURL string `yaml:"course_recommendations_url"`
	JobLimit                 int    `yaml:"job_limit"`

	RequestTimeout    time.Duration `yaml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout"`
}

// JanitorConfig holds retention cleanup configuration
type JanitorConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // cron expression, default hourly
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Assistant.APIKey == "" {
		return fmt.Errorf("assistant.api_key is required")
	}
	if c.Assistant.AssistantID == "" {
		return fmt.Errorf("assistant.assistant_id is required")
	}
	if c.Tools.JobListingsURL == "" {
		return fmt.Errorf("tools.job_listings_url is required")
	}
	if c.Tools.CourseRecommendationsURL == "" {
		return fmt.Errorf("tools.course_recommendations_url is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{cfg.Chat.ProcessingStalenessRaw, &cfg.Chat.ProcessingStaleness, "processing_staleness"},
		{cfg.Chat.ThreadExpirationRaw, &cfg.Chat.ThreadExpiration, "thread_expiration"},
		{cfg.Chat.RunRetryDelayRaw, &cfg.Chat.RunRetryDelay, "run_retry_delay"},
		{cfg.Chat.RunPollTimeoutRaw, &cfg.Chat.RunPollTimeout, "run_poll_timeout"},
		{cfg.Chat.RunPollIntervalRaw, &cfg.Chat.RunPollInterval, "run_poll_interval"},
		{cfg.Chat.LockTimeoutRaw, &cfg.Chat.LockTimeout, "lock_timeout"},
		{cfg.Tools.RequestTimeoutRaw, &cfg.Tools.RequestTimeout, "request_timeout"},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
