package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Database Configuration
	Database DatabaseConfig

	// Redis Configuration
	Redis RedisConfig

	// HTTP Configuration
	HTTP HTTPConfig

	// Session Configuration
	Session SessionConfig

	// Two-factor Configuration
	TwoFactor TwoFactorConfig

	// Logging Configuration
	Logging LoggingConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Address string // Redis address (host:port), empty keeps sessions in the database
}

// HTTPConfig holds the listener and browser access settings
type HTTPConfig struct {
	Address     string
	CORSOrigins []string
}

// SessionConfig holds session lifetime and cookie settings
type SessionConfig struct {
	TTL           time.Duration // Lifetime of a verified session
	PendingTTL    time.Duration // Time allowed to enter the second factor
	CookieName    string
	CookieSecure  bool
	PurgeSchedule string // Cron spec for removing expired sessions
}

// TwoFactorConfig holds TOTP settings
type TwoFactorConfig struct {
	Issuer      string // Shown by authenticator apps
	MaxAttempts int    // Rejected codes allowed per pending login
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // json, console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	sessionTTL, err := durationEnv("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	pendingTTL, err := durationEnv("PENDING_2FA_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	cookieSecure, err := boolEnv("COOKIE_SECURE", false)
	if err != nil {
		return nil, err
	}
	maxAttempts, err := positiveIntEnv("TOTP_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}

	return &Config{
		Database: DatabaseConfig{
			URL: stringEnv("DATABASE_URL", "gestor.sqlite"),
		},
		Redis: RedisConfig{
			Address: os.Getenv("REDIS_ADDRESS"),
		},
		HTTP: HTTPConfig{
			Address:     stringEnv("HTTP_ADDRESS", ":8080"),
			CORSOrigins: listEnv("CORS_ORIGINS", []string{"http://localhost:5173"}),
		},
		Session: SessionConfig{
			TTL:           sessionTTL,
			PendingTTL:    pendingTTL,
			CookieName:    stringEnv("SESSION_COOKIE_NAME", "gestor_session"),
			CookieSecure:  cookieSecure,
			PurgeSchedule: stringEnv("SESSION_PURGE_SCHEDULE", "@every 15m"),
		},
		TwoFactor: TwoFactorConfig{
			Issuer:      stringEnv("TOTP_ISSUER", "Gestor"),
			MaxAttempts: maxAttempts,
		},
		Logging: LoggingConfig{
			// Defaults suitable for production
			Level:  stringEnv("LOG_LEVEL", "info"),
			Format: stringEnv("LOG_FORMAT", "json"),
		},
	}, nil
}

func stringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: expected a positive duration like 30m or 24h", key, v)
	}
	return d, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: expected true or false", key, v)
	}
	return b, nil
}

func positiveIntEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: expected a positive number", key, v)
	}
	return n, nil
}

func listEnv(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
