package cacheinfra

import (
	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the sturdyc backed entry store.
type Config struct {
	// Capacity bounds the number of entries sturdyc keeps in memory. An entry
	// dropped to respect it is refetched on its next read and stays visible
	// to invalidation. Must be greater than 0.
	Capacity int

	// NumShards determines the number of sturdyc shards for concurrent access.
	// Must be greater than 0. Default: 256
	NumShards int

	// EvictionPercentage specifies what percentage of entries to evict
	// when the store reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// LockStripes is the number of stripes used to serialize writes per
	// signature. Must be greater than 0. Default: 64
	LockStripes int
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		EvictionPercentage: 10,
		LockStripes:        64,
	}
}

// ToSturdycOptions converts the Config to sturdyc.Option slice.
// Capacity, NumShards and EvictionPercentage are passed directly to
// sturdyc.New. Entries never expire by age, so the background sweeper is
// always off.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	return []sturdyc.Option{sturdyc.WithNoContinuousEvictions()}
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}
	if c.LockStripes <= 0 {
		return &ConfigError{Field: "LockStripes", Message: "must be greater than 0"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
