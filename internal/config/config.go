package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is empty")
	ErrInvalidSessionTTL  = errors.New("session TTL must be positive")
	ErrInvalidRateLimit   = errors.New("login rate limit and burst must be positive")
)

const (
	DefaultPort               = "5050"
	DefaultSessionTTL         = 6 * time.Hour
	DefaultLegacyDataPath     = "data/data.json"
	DefaultLoginRatePerMinute = 10
	DefaultLoginRateBurst     = 5
	DefaultActivityBufferSize = 256
)

// Config holds everything the dashboard server needs at startup.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	// Admin credential pair. AdminPasswordHash wins over AdminPassword when both are set.
	AdminUsername     string
	AdminPassword     string
	AdminPasswordHash string

	LegacyDataPath string

	SessionTTL    time.Duration
	SecureCookies bool

	AllowedOrigins []string

	LoginRatePerMinute float64
	LoginRateBurst     int

	LogLevel  string
	LogFormat string

	ActivityBufferSize int
}

// fileConfig mirrors Config for the optional YAML file. Durations are kept as
// strings so "6h" and "90m" read naturally.
type fileConfig struct {
	Port               string   `yaml:"port"`
	DatabaseURL        string   `yaml:"database_url"`
	RedisURL           string   `yaml:"redis_url"`
	AdminUsername      string   `yaml:"admin_username"`
	AdminPassword      string   `yaml:"admin_password"`
	AdminPasswordHash  string   `yaml:"admin_password_hash"`
	LegacyDataPath     string   `yaml:"legacy_data_path"`
	SessionTTL         string   `yaml:"session_ttl"`
	SecureCookies      *bool    `yaml:"secure_cookies"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	LoginRatePerMinute float64  `yaml:"login_rate_per_minute"`
	LoginRateBurst     int      `yaml:"login_rate_burst"`
	LogLevel           string   `yaml:"log_level"`
	LogFormat          string   `yaml:"log_format"`
	ActivityBufferSize int      `yaml:"activity_buffer_size"`
}

func Defaults() Config {
	return Config{
		Port:               DefaultPort,
		LegacyDataPath:     DefaultLegacyDataPath,
		SessionTTL:         DefaultSessionTTL,
		LoginRatePerMinute: DefaultLoginRatePerMinute,
		LoginRateBurst:     DefaultLoginRateBurst,
		LogLevel:           "info",
		LogFormat:          "json",
		ActivityBufferSize: DefaultActivityBufferSize,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// DASHBOARD_CONFIG (if any), then environment variables.
//
// Environment variables:
//   - PORT, DATABASE_URL, REDIS_URL
//   - ADMIN_USERNAME, ADMIN_PASSWORD, ADMIN_PASSWORD_HASH
//   - LEGACY_DATA_PATH: flat-file user store (default: data/data.json)
//   - SESSION_TTL: Go duration (default: 6h)
//   - COOKIE_SECURE: "true" to mark the session cookie Secure
//   - ALLOWED_ORIGINS: comma separated CORS allow-list
//   - LOGIN_RATE_PER_MINUTE, LOGIN_RATE_BURST
//   - LOG_LEVEL, LOG_FORMAT ("json" or "console")
//   - ACTIVITY_BUFFER_SIZE
func Load() (Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("DASHBOARD_CONFIG")); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.mergeEnv(); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.Port, fc.Port)
	setString(&c.DatabaseURL, fc.DatabaseURL)
	setString(&c.RedisURL, fc.RedisURL)
	setString(&c.AdminUsername, fc.AdminUsername)
	setString(&c.AdminPassword, fc.AdminPassword)
	setString(&c.AdminPasswordHash, fc.AdminPasswordHash)
	setString(&c.LegacyDataPath, fc.LegacyDataPath)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)

	if fc.SessionTTL != "" {
		ttl, err := time.ParseDuration(fc.SessionTTL)
		if err != nil {
			return fmt.Errorf("parse session_ttl: %w", err)
		}
		c.SessionTTL = ttl
	}
	if fc.SecureCookies != nil {
		c.SecureCookies = *fc.SecureCookies
	}
	if len(fc.AllowedOrigins) > 0 {
		c.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.LoginRatePerMinute > 0 {
		c.LoginRatePerMinute = fc.LoginRatePerMinute
	}
	if fc.LoginRateBurst > 0 {
		c.LoginRateBurst = fc.LoginRateBurst
	}
	if fc.ActivityBufferSize > 0 {
		c.ActivityBufferSize = fc.ActivityBufferSize
	}
	return nil
}

func (c *Config) mergeEnv() error {
	setString(&c.Port, env("PORT"))
	setString(&c.DatabaseURL, env("DATABASE_URL"))
	setString(&c.RedisURL, env("REDIS_URL"))
	setString(&c.AdminUsername, env("ADMIN_USERNAME"))
	setString(&c.AdminPassword, os.Getenv("ADMIN_PASSWORD"))
	setString(&c.AdminPasswordHash, env("ADMIN_PASSWORD_HASH"))
	setString(&c.LegacyDataPath, env("LEGACY_DATA_PATH"))
	setString(&c.LogLevel, strings.ToLower(env("LOG_LEVEL")))
	setString(&c.LogFormat, strings.ToLower(env("LOG_FORMAT")))

	if v := env("SESSION_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse SESSION_TTL: %w", err)
		}
		c.SessionTTL = ttl
	}
	if v := env("COOKIE_SECURE"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse COOKIE_SECURE: %w", err)
		}
		c.SecureCookies = secure
	}
	if v := env("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if v := env("LOGIN_RATE_PER_MINUTE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse LOGIN_RATE_PER_MINUTE: %w", err)
		}
		c.LoginRatePerMinute = rate
	}
	if v := env("LOGIN_RATE_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse LOGIN_RATE_BURST: %w", err)
		}
		c.LoginRateBurst = burst
	}
	if v := env("ACTIVITY_BUFFER_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse ACTIVITY_BUFFER_SIZE: %w", err)
		}
		c.ActivityBufferSize = size
	}
	return nil
}

// Validate checks that the configuration can start a server.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.SessionTTL <= 0 {
		return ErrInvalidSessionTTL
	}
	if c.LoginRatePerMinute <= 0 || c.LoginRateBurst <= 0 {
		return ErrInvalidRateLimit
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
