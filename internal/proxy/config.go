// Package proxy serves the built single-page app and forwards API calls to the scoring backend.
package proxy

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// APIPrefix is stripped from requests before they reach the backend
const APIPrefix = "/proxy-api"

// Config holds configuration for the proxy router
type Config struct {
	BackendURL string
	BuildDir   string

	// RateLimit is requests per second per client IP; zero disables limiting
	RateLimit float64
	RateBurst int
	// RateIdle is how long an idle client's bucket is kept
	RateIdle time.Duration

	// TrustForwarded keys clients by X-Real-IP when set by a front proxy
	TrustForwarded bool
	// TLS adds Strict-Transport-Security to responses
	TLS bool
}

// DefaultConfig returns defaults for local use
func DefaultConfig() Config {
	return Config{
		BackendURL: "http://localhost:8000",
		BuildDir:   "build",
		RateBurst:  20,
		RateIdle:   10 * time.Minute,
	}
}

func (c Config) backend() (*url.URL, error) {
	if c.BackendURL == "" {
		return nil, errors.New("backend url is required")
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return nil, fmt.Errorf("parsing backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url must be http or https: %q", c.BackendURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("backend url has no host: %q", c.BackendURL)
	}
	return u, nil
}

// Validate checks the configuration
func (c Config) Validate() error {
	if _, err := c.backend(); err != nil {
		return err
	}
	if c.BuildDir == "" {
		return errors.New("build dir is required")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative: %v", c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("rate burst must be at least 1: %d", c.RateBurst)
	}
	return nil
}
