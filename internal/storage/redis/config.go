package redis

import "time"

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// IdentityTTL is the idle lifetime of a session identity, refreshed on every write
	IdentityTTL time.Duration
	ImageTTL    time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379",
		PoolSize:     4,
		MinIdleConns: 1,
		IdentityTTL:  12 * time.Hour,
		ImageTTL:     time.Hour,
	}
}
