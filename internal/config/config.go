package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration required by the dashboard process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	API     APIConfig
	Session SessionConfig
	Landing LandingConfig
	DB      DBConfig
	Redis   RedisConfig
}

type AppConfig struct {
	Env  string `envconfig:"APP_ENV"`
	Port int    `envconfig:"APP_PORT" default:"8080"`

	// CORSOrigins lists browser origins allowed to call the dashboard with
	// credentials. Empty disables CORS handling.
	CORSOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`
}

// APIConfig describes the upstream REST API the dashboard fronts.
type APIConfig struct {
	BaseURL        string        `envconfig:"API_BASE_URL"`
	Timeout        time.Duration `envconfig:"API_TIMEOUT" default:"15s"`
	RefreshTimeout time.Duration `envconfig:"API_REFRESH_TIMEOUT" default:"10s"`

	// NetworkRetries bounds retries of connection-level failures only.
	// Zero keeps the single-attempt behavior; HTTP statuses are never retried.
	NetworkRetries int     `envconfig:"API_NETWORK_RETRIES" default:"0"`
	RateLimitRPS   float64 `envconfig:"API_RATE_LIMIT_RPS" default:"0"`
}

type SessionConfig struct {
	// Backend accepts: memory, redis, postgres
	Backend      string        `envconfig:"SESSION_BACKEND" default:"memory"`
	TTL          time.Duration `envconfig:"SESSION_TTL" default:"720h"`
	CookieName   string        `envconfig:"SESSION_COOKIE_NAME" default:"dash_sid"`
	CookieSecure bool          `envconfig:"SESSION_COOKIE_SECURE" default:"true"`
	RedisPrefix  string        `envconfig:"SESSION_REDIS_PREFIX" default:"dashboard:session:"`
}

// LandingConfig controls where the workspace resolver sends users.
type LandingConfig struct {
	AdminPath string `envconfig:"LANDING_ADMIN_PATH" default:"/admin/dashboard"`
	UserPath  string `envconfig:"LANDING_USER_PATH" default:"/dashboard"`

	// AdminRoles is the authoritative vocabulary for "admin" memberships.
	// Matching is case-insensitive.
	AdminRoles []string `envconfig:"LANDING_ADMIN_ROLES" default:"admin,owner"`
}

type DBConfig struct {
	Host     string `envconfig:"DB_HOST"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER"`
	Password string `envconfig:"DB_PASSWORD"`
	Name     string `envconfig:"DB_NAME"`

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string `envconfig:"DB_SSLMODE"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	c.App.Env = strings.TrimSpace(c.App.Env)
	c.Session.Backend = strings.ToLower(strings.TrimSpace(c.Session.Backend))
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	for _, o := range c.App.CORSOrigins {
		if o == "*" {
			errs = append(errs, errors.New("CORS_ALLOWED_ORIGINS cannot be * because the session cookie is sent"))
		}
	}

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("API_BASE_URL is required"))
	} else if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", c.API.BaseURL))
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = 15 * time.Second
	}
	if c.API.RefreshTimeout <= 0 {
		c.API.RefreshTimeout = 10 * time.Second
	}
	if c.API.NetworkRetries < 0 || c.API.NetworkRetries > 5 {
		errs = append(errs, fmt.Errorf("API_NETWORK_RETRIES must be between 0 and 5, got %d", c.API.NetworkRetries))
	}
	if c.API.RateLimitRPS < 0 {
		errs = append(errs, errors.New("API_RATE_LIMIT_RPS cannot be negative"))
	}

	if c.Session.TTL <= 0 {
		c.Session.TTL = 30 * 24 * time.Hour
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "dash_sid"
	}
	switch c.Session.Backend {
	case "", "memory":
		c.Session.Backend = "memory"
		if c.IsProduction() {
			errs = append(errs, errors.New("SESSION_BACKEND=memory is not allowed in production"))
		}
	case "redis":
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required for SESSION_BACKEND=redis"))
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	case "postgres":
		errs = append(errs, c.validateDB()...)
	default:
		errs = append(errs, fmt.Errorf("SESSION_BACKEND must be one of memory, redis, postgres, got %q", c.Session.Backend))
	}

	if !strings.HasPrefix(c.Landing.AdminPath, "/") || !strings.HasPrefix(c.Landing.UserPath, "/") {
		errs = append(errs, errors.New("LANDING_ADMIN_PATH and LANDING_USER_PATH must be absolute paths"))
	}
	roles := c.Landing.AdminRoles[:0]
	for _, r := range c.Landing.AdminRoles {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	c.Landing.AdminRoles = roles
	if len(c.Landing.AdminRoles) == 0 {
		errs = append(errs, errors.New("LANDING_ADMIN_ROLES must name at least one role"))
	}

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
