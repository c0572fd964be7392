package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the bot
type Config struct {
	DiscordToken    string        `env:"DISCORD_TOKEN,required,notEmpty"`
	GuildID         string        `env:"GUILD_ID,required,notEmpty"`
	DatabaseDSN     string        `env:"DATABASE_DSN,required,notEmpty"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	StatsCooldown   time.Duration `env:"STATS_COOLDOWN" envDefault:"3s"`
	EventQueueSize  int           `env:"EVENT_QUEUE_SIZE" envDefault:"256"`
	MigrateOnStart  bool          `env:"MIGRATE_ON_START" envDefault:"true"`
	CommitTimeout   time.Duration `env:"COMMIT_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Load loads configuration from environment variables, reading .env first if present
func Load() (*Config, error) {
	// .env is optional, the process environment wins
	_ = godotenv.Load()

	return parse()
}

func parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, envError(err)
	}

	if cfg.EventQueueSize <= 0 {
		return nil, &ConfigError{Field: "EVENT_QUEUE_SIZE", Message: "EVENT_QUEUE_SIZE must be positive"}
	}

	if cfg.StatsCooldown < 0 {
		return nil, &ConfigError{Field: "STATS_COOLDOWN", Message: "STATS_COOLDOWN must not be negative"}
	}

	if cfg.CommitTimeout <= 0 {
		return nil, &ConfigError{Field: "COMMIT_TIMEOUT", Message: "COMMIT_TIMEOUT must be positive"}
	}

	if cfg.ShutdownTimeout <= 0 {
		return nil, &ConfigError{Field: "SHUTDOWN_TIMEOUT", Message: "SHUTDOWN_TIMEOUT must be positive"}
	}

	return &cfg, nil
}

// envError maps a parse error to a ConfigError naming the first offending
// variable when the library reports one.
func envError(err error) *ConfigError {
	var agg env.AggregateError
	if errors.As(err, &agg) {
		for _, e := range agg.Errors {
			var notSet env.EnvVarIsNotSetError
			if errors.As(e, &notSet) {
				return &ConfigError{Field: notSet.Key, Message: notSet.Key + " is required", Err: err}
			}
			var empty env.EmptyVarError
			if errors.As(e, &empty) {
				return &ConfigError{Field: empty.Key, Message: empty.Key + " is required", Err: err}
			}
		}
	}
	return &ConfigError{Field: "env", Message: fmt.Sprintf("failed to parse environment: %v", err), Err: err}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	return e.Message
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err carries a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
