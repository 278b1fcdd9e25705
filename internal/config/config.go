package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Gateway GatewayConfig
	Dialer  DialerConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

// GatewayConfig describes the external telephony gateway.
// The gateway is opaque: we only issue dial commands and consume webhooks.
type GatewayConfig struct {
	BaseURL string

	// CallerID is the verified E.164 number used as From on dial commands.
	CallerID string

	// WebhookSecret signs inbound event webhooks (HMAC-SHA256).
	WebhookSecret string

	DialTimeout time.Duration

	// Capabilities lists optional gateway features enabled for this
	// deployment (call_transfer, call_recording, ...). Anything not listed
	// fails fast instead of half-working.
	Capabilities []string
}

// DialerConfig tunes the campaign engine.
// Duration env vars are optional; defaults applied in Validate().
type DialerConfig struct {
	// LockTTL must exceed the maximum plausible call duration plus wrap-up time.
	LockTTL time.Duration

	// RingTimeout forces a session to Failed(timeout) when no progress arrives.
	RingTimeout time.Duration

	// RetryBackoffBase doubles per attempt and is capped at RetryBackoffCap.
	RetryBackoffBase time.Duration
	RetryBackoffCap  time.Duration

	// MaxAttempts retires a contact as exhausted once reached.
	MaxAttempts int

	// MaxConcurrentCalls bounds in-flight calls per agent.
	MaxConcurrentCalls int

	// Pull loop poll interval bounds when the queue is empty.
	PullMinInterval time.Duration
	PullMaxInterval time.Duration

	// SweepInterval drives the expired-lock reclamation scan.
	SweepInterval time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")

	c.Gateway.BaseURL = strings.TrimSpace(os.Getenv("GATEWAY_BASE_URL"))
	c.Gateway.CallerID = strings.TrimSpace(os.Getenv("GATEWAY_CALLER_ID"))
	c.Gateway.WebhookSecret = os.Getenv("GATEWAY_WEBHOOK_SECRET")
	c.Gateway.DialTimeout = mustDuration("GATEWAY_DIAL_TIMEOUT")
	c.Gateway.Capabilities = splitList(os.Getenv("GATEWAY_CAPABILITIES"))

	c.Dialer.LockTTL = mustDuration("DIALER_LOCK_TTL")
	c.Dialer.RingTimeout = mustDuration("DIALER_RING_TIMEOUT")
	c.Dialer.RetryBackoffBase = mustDuration("DIALER_BACKOFF_BASE")
	c.Dialer.RetryBackoffCap = mustDuration("DIALER_BACKOFF_CAP")
	c.Dialer.PullMinInterval = mustDuration("DIALER_PULL_MIN_INTERVAL")
	c.Dialer.PullMaxInterval = mustDuration("DIALER_PULL_MAX_INTERVAL")
	c.Dialer.SweepInterval = mustDuration("DIALER_SWEEP_INTERVAL")
	if v := strings.TrimSpace(os.Getenv("DIALER_MAX_ATTEMPTS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("DIALER_MAX_ATTEMPTS must be an integer, got %q", v))
		}
		c.Dialer.MaxAttempts = n
	}
	if v := strings.TrimSpace(os.Getenv("DIALER_MAX_CONCURRENT_CALLS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("DIALER_MAX_CONCURRENT_CALLS must be an integer, got %q", v))
		}
		c.Dialer.MaxConcurrentCalls = n
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
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

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		// Default: short-lived access tokens.
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	if c.Gateway.BaseURL == "" {
		errs = append(errs, errors.New("GATEWAY_BASE_URL is required"))
	}
	if c.Gateway.CallerID == "" {
		errs = append(errs, errors.New("GATEWAY_CALLER_ID is required"))
	}
	if c.IsProduction() && c.Gateway.WebhookSecret == "" {
		errs = append(errs, errors.New("GATEWAY_WEBHOOK_SECRET is required in production"))
	}
	if c.Gateway.DialTimeout <= 0 {
		c.Gateway.DialTimeout = 10 * time.Second
	}

	if c.Dialer.LockTTL <= 0 {
		// Must outlast the longest plausible call plus wrap-up.
		c.Dialer.LockTTL = 2 * time.Hour
	}
	if c.Dialer.RingTimeout <= 0 {
		c.Dialer.RingTimeout = 45 * time.Second
	}
	if c.Dialer.RetryBackoffBase <= 0 {
		c.Dialer.RetryBackoffBase = 5 * time.Minute
	}
	if c.Dialer.RetryBackoffCap <= 0 {
		c.Dialer.RetryBackoffCap = 24 * time.Hour
	}
	if c.Dialer.RetryBackoffCap < c.Dialer.RetryBackoffBase {
		errs = append(errs, errors.New("DIALER_BACKOFF_CAP must be >= DIALER_BACKOFF_BASE"))
	}
	if c.Dialer.MaxAttempts <= 0 {
		c.Dialer.MaxAttempts = 5
	}
	if c.Dialer.MaxConcurrentCalls <= 0 {
		c.Dialer.MaxConcurrentCalls = 1
	}
	if c.Dialer.PullMinInterval <= 0 {
		c.Dialer.PullMinInterval = 1 * time.Second
	}
	if c.Dialer.PullMaxInterval <= 0 {
		c.Dialer.PullMaxInterval = 30 * time.Second
	}
	if c.Dialer.PullMaxInterval < c.Dialer.PullMinInterval {
		errs = append(errs, errors.New("DIALER_PULL_MAX_INTERVAL must be >= DIALER_PULL_MIN_INTERVAL"))
	}
	if c.Dialer.SweepInterval <= 0 {
		c.Dialer.SweepInterval = 30 * time.Second
	}

	return joinErrors(errs)
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

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
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
