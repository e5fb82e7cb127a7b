// Package config loads the chatrelay configuration from a YAML file with
// environment-variable overrides (CHATRELAY_ prefix, dots replaced by
// underscores, e.g. CHATRELAY_LLM_API_KEY).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Server         ServerConfig  `mapstructure:"server"`
	LLM            LLMConfig     `mapstructure:"llm"`
	Store          StoreConfig   `mapstructure:"store"`
	Limits         LimitsConfig  `mapstructure:"limits"`
	AllowedUserIDs []string      `mapstructure:"allowed_user_ids"`
	// HideSystemMessages filters system entries from initialize and
	// history responses. Off by default so clients see the full transcript.
	HideSystemMessages bool   `mapstructure:"hide_system_messages"`
	LogLevel           string `mapstructure:"log_level"`
}

// ServerConfig holds the HTTP transport configuration.
type ServerConfig struct {
	Host           string          `mapstructure:"host"`
	Port           string          `mapstructure:"port"`
	RequestTimeout time.Duration   `mapstructure:"request_timeout"`
	AllowedOrigins []string        `mapstructure:"allowed_origins"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig is the per-client token bucket: RPS sustained rate,
// Burst instantaneous allowance. RPS <= 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// LLMConfig holds the completion provider configuration.
type LLMConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// StoreConfig selects and configures the session store driver.
type StoreConfig struct {
	Driver string       `mapstructure:"driver"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Dynamo DynamoConfig `mapstructure:"dynamo"`
}

// SQLiteConfig holds the sqlite driver configuration.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// DynamoConfig holds the DynamoDB driver configuration. Endpoint is only
// set when pointing at a local emulator.
type DynamoConfig struct {
	Table    string `mapstructure:"table"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// LimitsConfig holds the per-chat and per-user caps. Zero disables a cap.
type LimitsConfig struct {
	MaxMessages     int `mapstructure:"max_messages"`
	MaxChatsPerUser int `mapstructure:"max_chats_per_user"`
}

// Load reads configuration from the file named by CONFIG_PATH (default
// ./config.yaml) and applies environment overrides. A missing config file
// is not an error; defaults plus environment are enough to run.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.rate_limit.rps", 5.0)
	v.SetDefault("server.rate_limit.burst", 10)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite.path", "chats.db")
	v.SetDefault("limits.max_messages", 100)
	v.SetDefault("limits.max_chats_per_user", 20)
	v.SetDefault("log_level", "info")

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CHATRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &config, nil
}
