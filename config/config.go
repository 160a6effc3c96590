package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	// IdP integration.
	ClerkAPIURL        string `mapstructure:"CLERK_API_URL"`
	ClerkSecretKey     string `mapstructure:"CLERK_SECRET_KEY"`
	ClerkWebhookSecret string `mapstructure:"CLERK_WEBHOOK_SECRET"`

	// Session tokens presented by clients.
	SessionSigningKey string `mapstructure:"SESSION_SIGNING_KEY"`

	// How long a processed webhook delivery id is remembered. Must
	// exceed the IdP's maximum redelivery window.
	WebhookDedupTTLHours int `mapstructure:"WEBHOOK_DEDUP_TTL_HOURS"`
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/homestash/")
	v.AddConfigPath("$HOME/.homestash")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Every key needs a default (empty for secrets): AutomaticEnv only
	// resolves keys viper already knows about, so a key without one is
	// invisible to Unmarshal in an env-only deployment.
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("DATABASE_URL", "postgres://localhost:5432/homestash_dev?sslmode=disable")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("CLERK_API_URL", "")
	v.SetDefault("CLERK_SECRET_KEY", "")
	v.SetDefault("CLERK_WEBHOOK_SECRET", "")
	v.SetDefault("SESSION_SIGNING_KEY", "")
	v.SetDefault("WEBHOOK_DEDUP_TTL_HOURS", 24)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, env vars and defaults cover it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.ClerkSecretKey == "" {
		return nil, fmt.Errorf("CLERK_SECRET_KEY is required")
	}
	if cfg.ClerkWebhookSecret == "" {
		return nil, fmt.Errorf("CLERK_WEBHOOK_SECRET is required")
	}
	if cfg.SessionSigningKey == "" {
		return nil, fmt.Errorf("SESSION_SIGNING_KEY is required")
	}
	return &cfg, nil
}
