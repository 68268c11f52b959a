// Package config loads application configuration from environment variables.
//
// The core settings are read with koanf from FORUM_* variables, defaulted and
// validated with go-playground/validator so a bad deployment fails at start.
// The optional redis, rate limit and cache blocks have their own loaders.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "FORUM_"

// Config holds all runtime configuration values.  Keys map from the
// environment by dropping the prefix and lower-casing, e.g.
// FORUM_DB_HOST -> db_host.
type Config struct {
	Env      string `koanf:"env" validate:"required"`
	Port     string `koanf:"port" validate:"required,numeric"`
	LogLevel string `koanf:"log_level"`

	DBUser           string        `koanf:"db_user" validate:"required"`
	DBPass           string        `koanf:"db_pass"`
	DBHost           string        `koanf:"db_host" validate:"required"`
	DBPort           string        `koanf:"db_port" validate:"required,numeric"`
	DBName           string        `koanf:"db_name" validate:"required"`
	DBMaxOpenConns   int           `koanf:"db_max_open_conns" validate:"min=1"`
	DBAcquireTimeout time.Duration `koanf:"db_acquire_timeout" validate:"gt=0"`

	// JWTSecret signs session tokens.  It must stay stable for as long as
	// any issued token is still within its TTL.
	JWTSecret  string        `koanf:"jwt_secret" validate:"required,min=16"`
	TokenTTL   time.Duration `koanf:"token_ttl" validate:"gt=0"`
	BcryptCost int           `koanf:"bcrypt_cost" validate:"min=4,max=31"`

	CORSOrigins string `koanf:"cors_origins"`
	AMQPURL     string `koanf:"amqp_url"`
	EventLogDir string `koanf:"event_log_dir"`
}

// Load reads FORUM_* variables from the process environment, fills in
// defaults and validates the result.
func Load() (Config, error) {
	k := koanf.New(".")
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Port == "" {
		c.Port = "5001"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBMaxOpenConns == 0 {
		c.DBMaxOpenConns = 10
	}
	if c.DBAcquireTimeout == 0 {
		c.DBAcquireTimeout = 5 * time.Second
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = 24 * time.Hour
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 10
	}
	if c.EventLogDir == "" {
		c.EventLogDir = "logs"
	}
}

// AllowedOrigins splits the comma separated CORS origin list.  An empty
// setting allows every origin, matching the browser client's dev setup.
func (c Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
