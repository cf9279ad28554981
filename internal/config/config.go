// Copyright 2026 The Lectern Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Storage drivers
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Log       LogConfig
	OTel      OTelConfig
	RateLimit RateLimitConfig
	RBAC      RBACConfig
	Audit     AuditConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port           string        `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout    time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout   time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout    time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
	RequestTimeout time.Duration `envconfig:"SERVER_REQUEST_TIMEOUT" default:"30s"`
	// Development disables HTTPS-only security headers.
	Development bool `envconfig:"SERVER_DEVELOPMENT" default:"false"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver       string `envconfig:"DB_DRIVER" default:"postgres"`
	Host         string `envconfig:"DB_HOST" default:"localhost"`
	Port         string `envconfig:"DB_PORT" default:"5432"`
	User         string `envconfig:"DB_USER" default:"lectern"`
	Password     string `envconfig:"DB_PASSWORD"`
	Database     string `envconfig:"DB_NAME" default:"lectern"`
	SSLMode      string `envconfig:"DB_SSLMODE" default:"disable"`
	MaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
}

// AuthConfig holds bearer credential configuration
type AuthConfig struct {
	JWTSecret string        `envconfig:"AUTH_JWT_SECRET"`
	Issuer    string        `envconfig:"AUTH_ISSUER" default:"lectern"`
	TokenTTL  time.Duration `envconfig:"AUTH_TOKEN_TTL" default:"1h"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// OTelConfig holds tracing and metrics export configuration
type OTelConfig struct {
	Enabled        bool    `envconfig:"OTEL_ENABLED" default:"false"`
	ServiceName    string  `envconfig:"OTEL_SERVICE_NAME" default:"lectern"`
	ServiceVersion string  `envconfig:"OTEL_SERVICE_VERSION" default:"0.1.0"`
	SamplingRate   float64 `envconfig:"OTEL_SAMPLING_RATE" default:"1.0"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64 `envconfig:"RATELIMIT_RPS" default:"10"`
	Burst             int     `envconfig:"RATELIMIT_BURST" default:"20"`
	// MutationsPerMinute caps privilege mutations per acting user. Zero disables it.
	MutationsPerMinute int `envconfig:"RATELIMIT_MUTATIONS_PER_MINUTE" default:"60"`
}

// RBACConfig holds role table and administration settings
type RBACConfig struct {
	// SeedOnStart upserts the role definitions into storage when serving.
	SeedOnStart bool `envconfig:"RBAC_SEED_ON_START" default:"true"`
	// RoleOverrides builds the role table from the persisted definitions
	// instead of the compiled-in defaults.
	RoleOverrides bool `envconfig:"RBAC_ROLE_OVERRIDES" default:"false"`
	// RoleFile points at a YAML role file. When set it takes precedence over
	// both the defaults and the persisted definitions.
	RoleFile        string `envconfig:"RBAC_ROLE_FILE"`
	BulkConcurrency int    `envconfig:"RBAC_BULK_CONCURRENCY" default:"8"`
}

// AuditConfig holds the optional Redis stream audit sink
type AuditConfig struct {
	// RedisAddr enables the stream sink when set.
	RedisAddr     string `envconfig:"AUDIT_REDIS_ADDR"`
	RedisPassword string `envconfig:"AUDIT_REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"AUDIT_REDIS_DB" default:"0"`
	Stream        string `envconfig:"AUDIT_STREAM" default:"lectern:audit"`
	StreamMaxLen  int64  `envconfig:"AUDIT_STREAM_MAXLEN" default:"100000"`
}

// DefaultEnvFile is read by Load when ENV_FILE is unset.
const DefaultEnvFile = ".env"

// Load loads configuration from environment variables. Variables in the env
// file (ENV_FILE, or .env when present) fill in anything not already set.
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	var cfg Config
	sections := []any{&cfg.Server, &cfg.Database, &cfg.Auth, &cfg.Log, &cfg.OTel, &cfg.RateLimit, &cfg.RBAC, &cfg.Audit}
	for _, section := range sections {
		if err := envconfig.Process("", section); err != nil {
			return nil, fmt.Errorf("failed to read configuration: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Password == "" {
			errs = append(errs, errors.New("DB_PASSWORD is required"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be %q or %q", DriverPostgres, DriverMemory))
	}

	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must be at least 32 bytes"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("AUTH_TOKEN_TTL must be positive"))
	}
	if c.RBAC.BulkConcurrency <= 0 {
		errs = append(errs, errors.New("RBAC_BULK_CONCURRENCY must be positive"))
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("RATELIMIT_RPS and RATELIMIT_BURST must be positive"))
	}
	if c.RateLimit.MutationsPerMinute < 0 {
		errs = append(errs, errors.New("RATELIMIT_MUTATIONS_PER_MINUTE must not be negative"))
	}
	if c.Audit.RedisAddr != "" && c.Audit.Stream == "" {
		errs = append(errs, errors.New("AUDIT_STREAM is required when AUDIT_REDIS_ADDR is set"))
	}

	return errors.Join(errs...)
}

// loadEnvFile never overrides variables that are already set. A missing
// default file is not an error; a missing explicit ENV_FILE is.
func loadEnvFile() error {
	path, explicit := os.LookupEnv("ENV_FILE")
	if !explicit {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}
