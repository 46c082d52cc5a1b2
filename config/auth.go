package config

import (
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
)

const (
	defaultLoginPath           = "/api/v1/auth/login"
	defaultProfilePath         = "/api/v1/auth/profile"
	defaultLivenessPath        = "/api/v1/auth/is-authed"
	defaultRefreshPath         = "/api/v1/auth/refresh"
	defaultAccessTokenExpr     = "data.accessToken || accessToken"
	defaultRefreshTokenExpr    = "data.refreshToken || refreshToken"
	defaultRefreshMinInterval  = 5 * time.Second
	defaultLivenessMaxAttempts = 3
	maxLivenessAttempts        = 10
	defaultLivenessInterval    = time.Minute
	minLivenessInterval        = time.Second
)

// AuthConfig groups the session endpoints and refresh policy.
type AuthConfig struct {
	LoginPath    string `env:"AUTH_LOGIN_PATH"    envDefault:"/api/v1/auth/login"`
	ProfilePath  string `env:"AUTH_PROFILE_PATH"  envDefault:"/api/v1/auth/profile"`
	LivenessPath string `env:"AUTH_LIVENESS_PATH" envDefault:"/api/v1/auth/is-authed"`

	// RefreshPath is shared by the request interceptor and explicit refreshes.
	// Set it to /refresh for the legacy endpoint.
	RefreshPath string `env:"AUTH_REFRESH_PATH" envDefault:"/api/v1/auth/refresh"`

	// JMESPath expressions locating the tokens in a refresh response.
	RefreshAccessTokenExpr  string `env:"AUTH_REFRESH_ACCESS_TOKEN_EXPR"  envDefault:"data.accessToken || accessToken"`
	RefreshRefreshTokenExpr string `env:"AUTH_REFRESH_REFRESH_TOKEN_EXPR" envDefault:"data.refreshToken || refreshToken"`

	// RefreshMinInterval throttles unforced refreshes.
	RefreshMinInterval time.Duration `env:"AUTH_REFRESH_MIN_INTERVAL" envDefault:"5s"`

	// LivenessMaxAttempts bounds re-checks after a liveness-triggered refresh.
	LivenessMaxAttempts int `env:"AUTH_LIVENESS_MAX_ATTEMPTS" envDefault:"3"`

	// LivenessInterval is the default period of the watch command.
	LivenessInterval time.Duration `env:"AUTH_LIVENESS_INTERVAL" envDefault:"1m"`
}

// Sanitize normalises paths, clamps intervals and replaces invalid expressions with defaults.
func (c *AuthConfig) Sanitize() {
	c.LoginPath = normalizePath(c.LoginPath, defaultLoginPath)
	c.ProfilePath = normalizePath(c.ProfilePath, defaultProfilePath)
	c.LivenessPath = normalizePath(c.LivenessPath, defaultLivenessPath)
	c.RefreshPath = normalizePath(c.RefreshPath, defaultRefreshPath)

	c.RefreshAccessTokenExpr = validExpr(c.RefreshAccessTokenExpr, defaultAccessTokenExpr)
	c.RefreshRefreshTokenExpr = validExpr(c.RefreshRefreshTokenExpr, defaultRefreshTokenExpr)

	if c.RefreshMinInterval <= 0 {
		c.RefreshMinInterval = defaultRefreshMinInterval
	}
	if c.LivenessMaxAttempts <= 0 {
		c.LivenessMaxAttempts = defaultLivenessMaxAttempts
	}
	if c.LivenessMaxAttempts > maxLivenessAttempts {
		c.LivenessMaxAttempts = maxLivenessAttempts
	}
	if c.LivenessInterval <= 0 {
		c.LivenessInterval = defaultLivenessInterval
	}
	if c.LivenessInterval < minLivenessInterval {
		c.LivenessInterval = minLivenessInterval
	}
}

func normalizePath(p, fallback string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return fallback
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func validExpr(expr, fallback string) string {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return fallback
	}
	if _, err := jmespath.Compile(expr); err != nil {
		return fallback
	}
	return expr
}
