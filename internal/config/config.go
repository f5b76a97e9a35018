// Package config defines gateway configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) initializer to build a Config with defaults.
// - All loading functions accept context.Context as the first parameter.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"context"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// AllowedOrigins restricts WebSocket upgrades; empty allows every origin.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// ClientQueueSize bounds each downstream client's outbound frame queue.
	ClientQueueSize int `koanf:"client_queue_size"`

	// EventBufferSize bounds each provider's event channel.
	EventBufferSize int `koanf:"event_buffer_size"`

	// MaxClientMessageBytes caps inbound downstream frames.
	MaxClientMessageBytes int64 `koanf:"max_client_message_bytes"`

	Cache     CacheConfig     `koanf:"cache"`
	Evolution EvolutionConfig `koanf:"evolution"`
	Pragmatic PragmaticConfig `koanf:"pragmatic"`
}

// CacheConfig configures the upstream REST response cache.
type CacheConfig struct {
	TTL        time.Duration `koanf:"ttl"`
	MaxEntries int           `koanf:"max_entries"`

	// Redis is an optional shared second tier; empty address disables it.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	RedisPrefix   string `koanf:"redis_prefix"`
}

// EvolutionConfig configures the snapshot + authenticated stream provider.
type EvolutionConfig struct {
	Enabled  bool   `koanf:"enabled"`
	BaseURL  string `koanf:"base_url"`
	LiveURL  string `koanf:"live_url"`
	CasinoID string `koanf:"casino_id"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`

	StatePath    string   `koanf:"state_path"`
	LivePath     string   `koanf:"live_path"`
	Vertical     string   `koanf:"vertical"`
	GameProvider string   `koanf:"game_provider"`
	Exclude      []string `koanf:"exclude"`

	MinRequestInterval time.Duration `koanf:"min_request_interval"`
	RequestTimeout     time.Duration `koanf:"request_timeout"`
	MaxResponseBytes   int64         `koanf:"max_response_bytes"`
	BatchSize          int           `koanf:"batch_size"`
	RefreshInterval    time.Duration `koanf:"refresh_interval"`

	ReconnectDelay       time.Duration `koanf:"reconnect_delay"`
	MaxReconnectAttempts int           `koanf:"max_reconnect_attempts"`
}

// Configured reports whether credentials and endpoints are present.
func (c EvolutionConfig) Configured() bool {
	return c.BaseURL != "" && c.CasinoID != "" && c.Username != "" && c.Password != ""
}

// PragmaticConfig configures the discovery-only stream provider.
type PragmaticConfig struct {
	Enabled  bool   `koanf:"enabled"`
	URL      string `koanf:"url"`
	CasinoID string `koanf:"casino_id"`

	SubscribeDelay time.Duration `koanf:"subscribe_delay"`
	PingInterval   time.Duration `koanf:"ping_interval"`

	ReconnectInitial     time.Duration `koanf:"reconnect_initial"`
	ReconnectMax         time.Duration `koanf:"reconnect_max"`
	MaxReconnectAttempts int           `koanf:"max_reconnect_attempts"`
}

// ProviderEnabled reports whether the named adapter should be built.
// Unknown names are disabled.
func (c *Config) ProviderEnabled(name string) bool {
	switch strings.ToLower(name) {
	case "evolution":
		return c.Evolution.Enabled
	case "pragmatic":
		return c.Pragmatic.Enabled
	}
	return false
}

// New creates a Config populated with defaults. The context is reserved for
// loaders that need it and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":9080",
		ClientQueueSize:       256,
		EventBufferSize:       1024,
		MaxClientMessageBytes: 4096,
		Cache: CacheConfig{
			TTL:         30 * time.Second,
			MaxEntries:  100,
			RedisPrefix: "tablewire:",
		},
		Evolution: EvolutionConfig{
			Enabled:              true,
			StatePath:            "/api/lobby/v1/{casinoId}/state",
			LivePath:             "/api/lobby/v1/{casinoId}/live",
			Vertical:             "live",
			GameProvider:         "evolution",
			MinRequestInterval:   time.Second,
			RequestTimeout:       10 * time.Second,
			MaxResponseBytes:     10 << 20,
			BatchSize:            50,
			ReconnectDelay:       5 * time.Second,
			MaxReconnectAttempts: 5,
		},
		Pragmatic: PragmaticConfig{
			Enabled:              true,
			SubscribeDelay:       time.Second,
			PingInterval:         30 * time.Second,
			ReconnectInitial:     time.Second,
			ReconnectMax:         30 * time.Second,
			MaxReconnectAttempts: 10,
		},
	}
}
