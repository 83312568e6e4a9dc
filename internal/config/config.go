// Package config reads console settings from VOUCHR_* environment variables, with
// command-line flags taking precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config is the full console configuration.
type Config struct {
	Addr            string
	UpstreamURL     string
	IdentityURL     string
	IdentityAPIKey  string
	JWTSecret       string
	UserInfoURL     string
	PostgresDSN     string
	RoutesFile      string
	AccessCookie    string
	RefreshCookie   string
	SecureCookies   bool
	GuardFallback   string
	RateBurst       int
	RatePerSec      int
	MaxBodyBytes    int64
	LogLevel        string
	ShutdownTimeout time.Duration
}

// Load parses args over the environment returned by getenv.
func Load(args []string, getenv func(string) string) (Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}
	envInt := func(key string, def int) (int, error) {
		raw := env(key, "")
		if raw == "" {
			return def, nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("config: %s: %w", key, err)
		}
		return n, nil
	}

	burst, err := envInt("VOUCHR_RATE_BURST", 60)
	if err != nil {
		return Config{}, err
	}
	perSec, err := envInt("VOUCHR_RATE_PER_SEC", 30)
	if err != nil {
		return Config{}, err
	}
	maxBody, err := envInt("VOUCHR_MAX_BODY_BYTES", 1<<20)
	if err != nil {
		return Config{}, err
	}
	shutdown, err := time.ParseDuration(env("VOUCHR_SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("config: VOUCHR_SHUTDOWN_TIMEOUT: %w", err)
	}
	secure, err := strconv.ParseBool(env("VOUCHR_SECURE_COOKIES", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("config: VOUCHR_SECURE_COOKIES: %w", err)
	}

	var cfg Config
	fs := flag.NewFlagSet("console", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", env("VOUCHR_ADDR", ":8080"), "listen address")
	fs.StringVar(&cfg.UpstreamURL, "upstream", env("VOUCHR_UPSTREAM_URL", ""), "console frontend URL")
	fs.StringVar(&cfg.IdentityURL, "identity-url", env("VOUCHR_IDENTITY_URL", ""), "identity provider auth URL")
	fs.StringVar(&cfg.IdentityAPIKey, "identity-api-key", env("VOUCHR_IDENTITY_API_KEY", ""), "identity provider API key")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", env("VOUCHR_JWT_SECRET", ""), "access token signing secret")
	fs.StringVar(&cfg.UserInfoURL, "user-info-url", env("VOUCHR_USER_INFO_URL", ""), "base URL serving /user-info")
	fs.StringVar(&cfg.PostgresDSN, "dsn", env("VOUCHR_PG_DSN", ""), "PostgreSQL DSN")
	fs.StringVar(&cfg.RoutesFile, "routes", env("VOUCHR_ROUTES_FILE", ""), "route classification YAML (embedded default when empty)")
	fs.StringVar(&cfg.AccessCookie, "access-cookie", env("VOUCHR_ACCESS_COOKIE", "sb-access-token"), "access token cookie name")
	fs.StringVar(&cfg.RefreshCookie, "refresh-cookie", env("VOUCHR_REFRESH_COOKIE", "sb-refresh-token"), "refresh token cookie name")
	fs.BoolVar(&cfg.SecureCookies, "secure-cookies", secure, "mark rotated session cookies Secure")
	fs.StringVar(&cfg.GuardFallback, "guard-fallback", env("VOUCHR_GUARD_FALLBACK", "/dashboard"), "redirect target for denied module pages")
	fs.IntVar(&cfg.RateBurst, "rate-burst", burst, "rate limit burst per client")
	fs.IntVar(&cfg.RatePerSec, "rate-per-sec", perSec, "rate limit per client per second")
	fs.Int64Var(&cfg.MaxBodyBytes, "max-body-bytes", int64(maxBody), "request body limit")
	fs.StringVar(&cfg.LogLevel, "log-level", env("VOUCHR_LOG_LEVEL", "info"), "log level")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", shutdown, "graceful shutdown timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate checks required settings.
func (c Config) Validate() error {
	var errs []error
	for name, raw := range map[string]string{"identity url": c.IdentityURL, "user-info url": c.UserInfoURL} {
		if raw == "" {
			errs = append(errs, fmt.Errorf("config: %s is required", name))
			continue
		}
		if err := absoluteURL(raw); err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", name, err))
		}
	}
	if c.UpstreamURL != "" {
		if err := absoluteURL(c.UpstreamURL); err != nil {
			errs = append(errs, fmt.Errorf("config: upstream url: %w", err))
		}
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("config: jwt secret is required"))
	}
	if !strings.HasPrefix(c.GuardFallback, "/") {
		errs = append(errs, errors.New("config: guard fallback must be an absolute path"))
	}
	if c.RateBurst <= 0 || c.RatePerSec <= 0 || c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("config: rate and body limits must be positive"))
	}
	return errors.Join(errs...)
}

func absoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute URL", raw)
	}
	return nil
}
