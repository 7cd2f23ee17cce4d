package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// MockConfig configures the stand-in upstream API used for local development.
type MockConfig struct {
	App  AppConfig
	Auth AuthConfig

	// SeedFile is an optional YAML directory seed; the built-in seed is used when empty.
	SeedFile string `envconfig:"MOCKAPI_SEED"`
}

type AuthConfig struct {
	JWTSecret       string        `envconfig:"JWT_SECRET"`
	JWTIssuer       string        `envconfig:"JWT_ISSUER"`
	JWTAudience     string        `envconfig:"JWT_AUDIENCE"`
	AccessTokenTTL  time.Duration `envconfig:"JWT_ACCESS_TTL"`
	RefreshTokenTTL time.Duration `envconfig:"JWT_REFRESH_TTL"`

	// RotateRefresh makes /auth/refresh return a new refresh token as well.
	RotateRefresh bool `envconfig:"JWT_ROTATE_REFRESH" default:"false"`
}

func LoadMock() (MockConfig, error) {
	var c MockConfig
	if err := envconfig.Process("", &c); err != nil {
		return MockConfig{}, fmt.Errorf("config: %w", err)
	}
	c.App.Env = strings.TrimSpace(c.App.Env)
	if err := c.Validate(); err != nil {
		return MockConfig{}, err
	}
	return c, nil
}

func (c *MockConfig) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	} else if c.App.Env == "production" {
		errs = append(errs, errors.New("the mock API must not run with APP_ENV=production"))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		// Default: short-lived access tokens.
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		// Default: longer-lived refresh tokens.
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	return joinErrors(errs)
}
