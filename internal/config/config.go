package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Env      string
	HTTPAddr string
	BaseURL  string

	DBDSN       string
	JWTSecret   string
	TokenPepper string

	LogLevel string

	SessionDays         int
	InviteTTL           time.Duration
	InviteRetentionDays int
	LoginRatePerMin     int
	EmailConfirmation   bool

	// SlackWebhookURL enables invite notifications when set.
	SlackWebhookURL string
	SlackTimeoutMS  int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Env = strings.TrimSpace(os.Getenv("SC_ENV"))
	if cfg.Env == "" {
		return nil, fmt.Errorf("SC_ENV is required")
	}
	if cfg.Env != "dev" && cfg.Env != "prod" {
		return nil, fmt.Errorf("SC_ENV must be one of: dev, prod (got: %s)", cfg.Env)
	}

	cfg.HTTPAddr = getEnvOrDefault("SC_HTTP_ADDR", ":8080")

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("SC_BASE_URL")), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("SC_BASE_URL is required")
	}

	cfg.DBDSN = strings.TrimSpace(os.Getenv("SC_DB_DSN"))
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("SC_DB_DSN is required")
	}

	cfg.JWTSecret = os.Getenv("SC_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("SC_JWT_SECRET is required")
	}
	if cfg.Env == "prod" && len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("SC_JWT_SECRET must be at least 32 characters (currently %d)", len(cfg.JWTSecret))
	}

	cfg.TokenPepper = os.Getenv("SC_TOKEN_PEPPER")
	if cfg.TokenPepper == "" {
		return nil, fmt.Errorf("SC_TOKEN_PEPPER is required")
	}
	if cfg.Env == "prod" && len(cfg.TokenPepper) < 32 {
		return nil, fmt.Errorf("SC_TOKEN_PEPPER must be at least 32 characters (currently %d)", len(cfg.TokenPepper))
	}

	cfg.LogLevel = getEnvOrDefault("SC_LOG_LEVEL", "info")
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("SC_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", cfg.LogLevel)
	}

	var err error
	cfg.SessionDays, err = getEnvIntOrDefault("SC_SESSION_DAYS", 7)
	if err != nil {
		return nil, err
	}
	if cfg.SessionDays <= 0 {
		return nil, fmt.Errorf("SC_SESSION_DAYS must be positive (got: %d)", cfg.SessionDays)
	}

	cfg.InviteTTL, err = getEnvDurationOrDefault("SC_INVITE_TTL", 72*time.Hour)
	if err != nil {
		return nil, err
	}
	if cfg.InviteTTL <= 0 {
		return nil, fmt.Errorf("SC_INVITE_TTL must be positive (got: %s)", cfg.InviteTTL)
	}

	cfg.InviteRetentionDays, err = getEnvIntOrDefault("SC_INVITE_RETENTION_DAYS", 30)
	if err != nil {
		return nil, err
	}
	if cfg.InviteRetentionDays < 0 {
		return nil, fmt.Errorf("SC_INVITE_RETENTION_DAYS must not be negative (got: %d)", cfg.InviteRetentionDays)
	}

	cfg.LoginRatePerMin, err = getEnvIntOrDefault("SC_LOGIN_RATE_PER_MIN", 10)
	if err != nil {
		return nil, err
	}
	if cfg.LoginRatePerMin <= 0 {
		return nil, fmt.Errorf("SC_LOGIN_RATE_PER_MIN must be positive (got: %d)", cfg.LoginRatePerMin)
	}

	cfg.EmailConfirmation, err = getEnvBoolOrDefault("SC_EMAIL_CONFIRMATION", true)
	if err != nil {
		return nil, err
	}

	cfg.SlackWebhookURL = strings.TrimSpace(os.Getenv("SC_SLACK_WEBHOOK_URL"))

	cfg.SlackTimeoutMS, err = getEnvIntOrDefault("SC_SLACK_TIMEOUT_MS", 2000)
	if err != nil {
		return nil, err
	}
	if cfg.SlackTimeoutMS <= 0 {
		return nil, fmt.Errorf("SC_SLACK_TIMEOUT_MS must be positive (got: %d)", cfg.SlackTimeoutMS)
	}

	return cfg, nil
}

// IsDev returns true if running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// RedactedValues returns a map of config values with secrets redacted.
func (c *Config) RedactedValues() map[string]string {
	return map[string]string{
		"SC_ENV":                   c.Env,
		"SC_HTTP_ADDR":             c.HTTPAddr,
		"SC_BASE_URL":              c.BaseURL,
		"SC_DB_DSN":                redactDSN(c.DBDSN),
		"SC_JWT_SECRET":            "[REDACTED]",
		"SC_TOKEN_PEPPER":          "[REDACTED]",
		"SC_LOG_LEVEL":             c.LogLevel,
		"SC_SESSION_DAYS":          strconv.Itoa(c.SessionDays),
		"SC_INVITE_TTL":            c.InviteTTL.String(),
		"SC_INVITE_RETENTION_DAYS": strconv.Itoa(c.InviteRetentionDays),
		"SC_LOGIN_RATE_PER_MIN":    strconv.Itoa(c.LoginRatePerMin),
		"SC_EMAIL_CONFIRMATION":    strconv.FormatBool(c.EmailConfirmation),
		"SC_SLACK_WEBHOOK_URL":     redactWebhook(c.SlackWebhookURL),
		"SC_SLACK_TIMEOUT_MS":      strconv.Itoa(c.SlackTimeoutMS),
	}
}

func redactDSN(dsn string) string {
	if start := strings.Index(dsn, "://"); start != -1 {
		if end := strings.Index(dsn[start+3:], "@"); end != -1 {
			return dsn[:start+3] + "[REDACTED]" + dsn[start+3+end:]
		}
	}
	return dsn
}

func redactWebhook(u string) string {
	if u == "" {
		return ""
	}
	return "[REDACTED]"
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration such as 72h (got: %q)", key, value)
	}
	return parsed, nil
}

func getEnvBoolOrDefault(key string, defaultValue bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false (got: %q)", key, value)
	}
	return parsed, nil
}
