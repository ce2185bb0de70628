package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverBuntDB   = "buntdb"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the tutor-chat service.
type Config struct {
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	Server    ServerConfig
	Store     StoreConfig
	Redis     RedisConfig
	Tutor     TutorConfig
	Session   SessionConfig
	Quiz      QuizConfig
	RateLimit RateLimitConfig
	Speech    SpeechConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host      string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port      string `envconfig:"SERVER_PORT" default:"8080"`
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
}

// StoreConfig selects where conversations are persisted.
type StoreConfig struct {
	Driver      string `envconfig:"STORE_DRIVER" default:"buntdb"`
	BuntDBPath  string `envconfig:"BUNTDB_PATH" default:"tutor-chat.db"`
	DatabaseDSN string `envconfig:"DATABASE_DSN"`
	// QuotaBytes caps the memory driver. Zero means unlimited.
	QuotaBytes int `envconfig:"STORE_QUOTA_BYTES" default:"0"`
}

// RedisConfig holds Redis configuration. Redis backs the redis store driver and the
// shared quiz cache.
type RedisConfig struct {
	URI string `envconfig:"REDIS_URI"`
}

// TutorConfig holds the tutoring backend configuration.
type TutorConfig struct {
	BaseURL         string `envconfig:"TUTOR_BASE_URL" required:"true"`
	APIKey          string `envconfig:"TUTOR_API_KEY"`
	DefaultLanguage string `envconfig:"TUTOR_DEFAULT_LANGUAGE" default:"en-US"`
}

// SessionConfig controls how long idle sessions stay in memory.
type SessionConfig struct {
	IdleTTL       time.Duration `envconfig:"SESSION_IDLE_TTL" default:"30m"`
	SweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"1m"`
	MaxStreams    int64         `envconfig:"SESSION_MAX_STREAMS" default:"64"`
}

type QuizConfig struct {
	CacheTTL time.Duration `envconfig:"QUIZ_CACHE_TTL" default:"1h"`
}

// RateLimitConfig limits message sends per user.
type RateLimitConfig struct {
	PerSecond float64 `envconfig:"RATE_LIMIT_PER_SECOND" default:"1"`
	Burst     int     `envconfig:"RATE_LIMIT_BURST" default:"5"`
}

// SpeechConfig holds the speech service configuration. An empty URL disables speech.
type SpeechConfig struct {
	URL    string `envconfig:"SPEECH_URL"`
	APIKey string `envconfig:"SPEECH_API_KEY"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration for logical errors beyond required fields.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverBuntDB:
		if c.Store.BuntDBPath == "" {
			return errors.New("BUNTDB_PATH is required for the buntdb store")
		}
	case DriverRedis:
		if c.Redis.URI == "" {
			return errors.New("REDIS_URI is required for the redis store")
		}
	case DriverPostgres:
		if c.Store.DatabaseDSN == "" {
			return errors.New("DATABASE_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}

	if c.Store.QuotaBytes < 0 {
		return errors.New("STORE_QUOTA_BYTES must not be negative")
	}
	if c.Session.IdleTTL <= 0 || c.Session.SweepInterval <= 0 || c.Session.MaxStreams <= 0 {
		return errors.New("session TTL, sweep interval and max streams must be positive")
	}
	if c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("rate limit must be positive")
	}
	return nil
}
