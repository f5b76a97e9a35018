package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables recognised by Load.
const (
	EnvPrefix  = "GATEWAY_"
	EnvConfig  = "GATEWAY_CONFIG"
	EnvEnvFile = "GATEWAY_ENV_FILE"

	defaultEnvFile = ".env"
)

// Load builds a Config by layering defaults, an optional .env file, an
// optional YAML file and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. .env file (GATEWAY_ENV_FILE, or ./.env when present); never overrides
//     variables already set in the process environment
//  3. YAML file if GATEWAY_CONFIG is set
//  4. env (prefix GATEWAY_, "__" separates nested keys)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if path := os.Getenv(EnvConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// GATEWAY_EVOLUTION__USERNAME -> evolution.username, GATEWAY_ADDR -> addr.
	// Single underscores are preserved to match koanf tags on the struct.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		if s == "config" || s == "env_file" {
			return ""
		}
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFile() error {
	path := os.Getenv(EnvEnvFile)
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: env file %s: %v", ErrLoadConfig, path, err)
	}
	return nil
}

// Validate checks invariants the rest of the gateway relies on.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.ClientQueueSize <= 0:
		return fmt.Errorf("%w: client_queue_size must be positive", ErrInvalidConfig)
	case c.EventBufferSize <= 0:
		return fmt.Errorf("%w: event_buffer_size must be positive", ErrInvalidConfig)
	case c.Cache.MaxEntries <= 0:
		return fmt.Errorf("%w: cache.max_entries must be positive", ErrInvalidConfig)
	case c.Cache.TTL <= 0:
		return fmt.Errorf("%w: cache.ttl must be positive", ErrInvalidConfig)
	case c.Evolution.MinRequestInterval < 0:
		return fmt.Errorf("%w: evolution.min_request_interval must not be negative", ErrInvalidConfig)
	case c.Evolution.MaxResponseBytes <= 0:
		return fmt.Errorf("%w: evolution.max_response_bytes must be positive", ErrInvalidConfig)
	case c.Evolution.BatchSize <= 0:
		return fmt.Errorf("%w: evolution.batch_size must be positive", ErrInvalidConfig)
	case c.Pragmatic.PingInterval <= 0:
		return fmt.Errorf("%w: pragmatic.ping_interval must be positive", ErrInvalidConfig)
	}
	return nil
}
