// Package config loads gymdesk settings from the environment, after an
// optional .env file. Load is called once at startup; the result is read-only.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Backend selects where identities and records live.
type Backend string

// Backends.
const (
	BackendLocal  Backend = "local"
	BackendHosted Backend = "hosted"
)

// Defaults.
const (
	DefaultAddr        = ":8080"
	DefaultDBPath      = "gymdesk.db"
	DefaultTokenTTL    = time.Hour
	DefaultRateLimit   = 10
	DefaultHostedRPS   = 10
	DefaultSlowRequest = 200 * time.Millisecond
	DefaultSlowQuery   = 50 * time.Millisecond
	DefaultEmailFrom   = "Gymdesk <noreply@gymdesk.local>"
	DefaultResetURL    = "http://localhost:8080/reset-password"

	// devJWTSecret signs local tokens in development when no secret is set.
	devJWTSecret = "gymdesk-development-secret-do-not-use"

	minJWTSecretLength = 32
	csrfKeyLength      = 32
)

// Config holds every runtime setting.
type Config struct {
	Env     string
	Addr    string
	DBPath  string
	Backend Backend

	HostedURL     string
	HostedAnonKey string
	HostedRPS     float64 // outbound requests per second; <= 0 disables the limit

	JWTSecret []byte
	TokenTTL  time.Duration
	CSRFKey   []byte

	ResendAPIKey string
	EmailFrom    string
	ResetURL     string

	StrictGuard bool
	RateLimit   float64 // inbound requests per second per IP; <= 0 disables
	SlowRequest time.Duration
	SlowQuery   time.Duration
	LogLevel    slog.Level
}

// IsProduction reports whether the server runs in production.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Load reads .env (if present) and the environment.
// PRE: none
// POST: returns a validated Config, or an error naming every problem found
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var problems []string
	bad := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	cfg := &Config{
		Env:           strings.ToLower(strings.TrimSpace(envOrDefault("GYMDESK_ENV", EnvDevelopment))),
		Addr:          envOrDefault("GYMDESK_ADDR", DefaultAddr),
		DBPath:        envOrDefault("GYMDESK_DB_PATH", DefaultDBPath),
		Backend:       Backend(strings.ToLower(strings.TrimSpace(envOrDefault("GYMDESK_BACKEND", string(BackendLocal))))),
		HostedURL:     strings.TrimRight(os.Getenv("GYMDESK_HOSTED_URL"), "/"),
		HostedAnonKey: os.Getenv("GYMDESK_HOSTED_ANON_KEY"),
		ResendAPIKey:  os.Getenv("GYMDESK_RESEND_API_KEY"),
		EmailFrom:     envOrDefault("GYMDESK_EMAIL_FROM", DefaultEmailFrom),
		ResetURL:      envOrDefault("GYMDESK_RESET_URL", DefaultResetURL),
	}

	var err error
	if cfg.HostedRPS, err = envFloat("GYMDESK_HOSTED_RPS", DefaultHostedRPS); err != nil {
		bad("%v", err)
	}
	if cfg.RateLimit, err = envFloat("GYMDESK_RATE_LIMIT", DefaultRateLimit); err != nil {
		bad("%v", err)
	}
	if cfg.TokenTTL, err = envDuration("GYMDESK_TOKEN_TTL", DefaultTokenTTL); err != nil {
		bad("%v", err)
	}
	if cfg.SlowRequest, err = envDuration("GYMDESK_SLOW_REQUEST", DefaultSlowRequest); err != nil {
		bad("%v", err)
	}
	if cfg.SlowQuery, err = envDuration("GYMDESK_SLOW_QUERY", DefaultSlowQuery); err != nil {
		bad("%v", err)
	}
	if cfg.StrictGuard, err = envBool("GYMDESK_STRICT_GUARD", false); err != nil {
		bad("%v", err)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(envOrDefault("LOG_LEVEL", "INFO"))); err != nil {
		bad("LOG_LEVEL: %v", err)
	}

	switch cfg.Env {
	case EnvDevelopment, EnvProduction:
	default:
		bad("GYMDESK_ENV must be %q or %q, got %q", EnvDevelopment, EnvProduction, cfg.Env)
	}

	switch cfg.Backend {
	case BackendLocal:
	case BackendHosted:
		if cfg.HostedURL == "" {
			bad("GYMDESK_HOSTED_URL is required for the hosted backend")
		}
		if cfg.HostedAnonKey == "" {
			bad("GYMDESK_HOSTED_ANON_KEY is required for the hosted backend")
		}
	default:
		bad("GYMDESK_BACKEND must be %q or %q, got %q", BackendLocal, BackendHosted, cfg.Backend)
	}

	secret := os.Getenv("GYMDESK_JWT_SECRET")
	switch {
	case secret == "" && cfg.IsProduction():
		bad("GYMDESK_JWT_SECRET is required in production")
	case secret == "":
		slog.Warn("config_event", "event", "dev_jwt_secret", "reason", "GYMDESK_JWT_SECRET not set")
		secret = devJWTSecret
	case cfg.IsProduction() && len(secret) < minJWTSecretLength:
		bad("GYMDESK_JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}
	cfg.JWTSecret = []byte(secret)

	cfg.CSRFKey, err = csrfKey(os.Getenv("GYMDESK_CSRF_KEY"), cfg.IsProduction())
	if err != nil {
		bad("%v", err)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

// csrfKey decodes a 64-character hex key. Development falls back to a random
// key, which invalidates form tokens on every restart.
func csrfKey(raw string, production bool) ([]byte, error) {
	if raw == "" {
		if production {
			return nil, errors.New("GYMDESK_CSRF_KEY is required in production")
		}
		key := make([]byte, csrfKeyLength)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate csrf key: %w", err)
		}
		slog.Warn("config_event", "event", "random_csrf_key", "reason", "GYMDESK_CSRF_KEY not set")
		return key, nil
	}
	key, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil || len(key) != csrfKeyLength {
		return nil, fmt.Errorf("GYMDESK_CSRF_KEY must be %d hex characters", csrfKeyLength*2)
	}
	return key, nil
}

// SetupLogger installs a JSON slog handler at level as the default logger.
func SetupLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return f, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback, fmt.Errorf("%s must be a positive duration like 1h, got %q", key, v)
	}
	return d, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("%s must be true or false, got %q", key, v)
	}
	return b, nil
}
