// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (prefix AGENT_, runtime override)
//  2. Config file (~/.research-agent/config.yaml)
//  3. Default values
//
// DATABASE_URL, when set, overrides the individual postgres_* settings.
// Sensitive fields (password, API key) are masked in MarshalJSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidHistoryLimit indicates the history limit is out of range.
	ErrInvalidHistoryLimit = errors.New("invalid history limit")

	// ErrInvalidLLMBaseURL indicates the completion backend URL is invalid.
	ErrInvalidLLMBaseURL = errors.New("invalid llm base url")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")
)

// Default values for the completion backend and pipeline context.
const (
	// DefaultLLMBaseURL points at a local LM Studio style OpenAI-compatible
	// server, the backend this service was developed against.
	DefaultLLMBaseURL = "http://localhost:1234/v1"

	// DefaultLLMModel is the placeholder model name used by local backends
	// that serve whatever model is currently loaded.
	DefaultLLMModel = "local-model"

	// DefaultHistoryLimit is the number of prior messages loaded as context
	// for a pipeline run.
	DefaultHistoryLimit = 10

	// MaxHistoryLimit bounds the context window to protect the backend.
	MaxHistoryLimit = 200
)

// Config stores application configuration.
type Config struct {
	// Completion backend
	LLMBaseURL  string  `mapstructure:"llm_base_url" json:"llm_base_url"`
	LLMAPIKey   string  `mapstructure:"llm_api_key" json:"llm_api_key"` // SENSITIVE: masked in MarshalJSON
	LLMModel    string  `mapstructure:"llm_model" json:"llm_model"`
	Temperature float64 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Pipeline context
	HistoryLimit int    `mapstructure:"history_limit" json:"history_limit"`
	Language     string `mapstructure:"language" json:"language"`

	// HTTP server
	ServerAddr string `mapstructure:"server_addr" json:"server_addr"`
	RateBurst  int    `mapstructure:"rate_burst" json:"rate_burst"`

	// Storage
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Load reads configuration from defaults, the optional config file and the
// environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("llm_base_url", DefaultLLMBaseURL)
	v.SetDefault("llm_api_key", "lm-studio")
	v.SetDefault("llm_model", DefaultLLMModel)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_tokens", 2000)
	v.SetDefault("history_limit", DefaultHistoryLimit)
	v.SetDefault("language", "en")
	v.SetDefault("server_addr", "127.0.0.1:8000")
	v.SetDefault("rate_burst", 60)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "agent")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_db_name", "research_agent")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetEnvPrefix("AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".research-agent"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for values that would fail at runtime.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %.2f (must be in [0, 2])", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: %d (must be positive)", ErrInvalidMaxTokens, c.MaxTokens)
	}
	if c.HistoryLimit <= 0 || c.HistoryLimit > MaxHistoryLimit {
		return fmt.Errorf("%w: %d (must be in [1, %d])", ErrInvalidHistoryLimit, c.HistoryLimit, MaxHistoryLimit)
	}
	if !strings.HasPrefix(c.LLMBaseURL, "http://") && !strings.HasPrefix(c.LLMBaseURL, "https://") {
		return fmt.Errorf("%w: %q", ErrInvalidLLMBaseURL, c.LLMBaseURL)
	}
	if strings.TrimSpace(c.PostgresHost) == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return ErrInvalidPostgresDBName
	}
	return nil
}

// MarshalJSON masks sensitive fields so configs can be logged safely.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config
	masked := alias(*c)
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "****"
	}
	if masked.LLMAPIKey != "" {
		masked.LLMAPIKey = "****"
	}
	return json.Marshal(masked)
}
