// Package config loads the feed server settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-querysync/internal/cacheinfra"
)

// Config holds the server configuration.
type Config struct {
	Addr        string `env:"ADDR" envDefault:":3000"`
	DatabaseDSN string `env:"DATABASE_DSN" envDefault:"file::memory:?cache=shared"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Seed        bool   `env:"SEED" envDefault:"true"`

	CacheCapacity           int `env:"CACHE_CAPACITY" envDefault:"10000"`
	CacheShards             int `env:"CACHE_SHARDS" envDefault:"256"`
	CacheEvictionPercentage int `env:"CACHE_EVICTION_PERCENTAGE" envDefault:"10"`

	PageCacheTTL    time.Duration `env:"PAGE_CACHE_TTL" envDefault:"1h"`
	SessionLifetime time.Duration `env:"SESSION_LIFETIME" envDefault:"12h"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Cache().Validate(); err != nil {
		return Config{}, err
	}
	if cfg.PageCacheTTL <= 0 {
		return Config{}, &cacheinfra.ConfigError{Field: "PageCacheTTL", Message: "must be greater than 0"}
	}
	if cfg.SessionLifetime <= 0 {
		return Config{}, &cacheinfra.ConfigError{Field: "SessionLifetime", Message: "must be greater than 0"}
	}
	if _, err := cfg.Level(); err != nil {
		return Config{}, &cacheinfra.ConfigError{Field: "LogLevel", Message: err.Error()}
	}
	return cfg, nil
}

// Cache returns the entry store configuration.
func (c Config) Cache() cacheinfra.Config {
	cache := cacheinfra.DefaultConfig()
	cache.Capacity = c.CacheCapacity
	cache.NumShards = c.CacheShards
	cache.EvictionPercentage = c.CacheEvictionPercentage
	return cache
}

// Level parses LogLevel.
func (c Config) Level() (zerolog.Level, error) {
	return zerolog.ParseLevel(c.LogLevel)
}
