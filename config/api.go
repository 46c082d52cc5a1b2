package config

import (
	"strings"
	"time"
)

const (
	defaultAPIURL     = "http://localhost:2699"
	defaultAPITimeout = 15 * time.Second
	maxAPITimeout     = 5 * time.Minute
)

// APIConfig controls how the client reaches the CivicWatch API.
type APIConfig struct {
	// BaseURL is the API origin. Paths from AuthConfig are appended to it.
	BaseURL string `env:"API_URL" envDefault:"http://localhost:2699"`

	// Timeout bounds every HTTP request including token refresh.
	Timeout time.Duration `env:"API_TIMEOUT" envDefault:"15s"`

	UserAgent string `env:"API_USER_AGENT" envDefault:"civicwatch-cli"`
}

// Sanitize trims the base URL and clamps the timeout.
func (c *APIConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = defaultAPIURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultAPITimeout
	}
	if c.Timeout > maxAPITimeout {
		c.Timeout = maxAPITimeout
	}
	c.UserAgent = strings.TrimSpace(c.UserAgent)
}
