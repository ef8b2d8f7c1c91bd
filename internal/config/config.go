package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/authgate/authgate-go/internal/session"
)

const devSecret = "dev-secret-change-in-production"

// ErrProductionSecret is returned when production runs with the development JWT secret.
var ErrProductionSecret = errors.New("JWT_SECRET must be set in production environment")

type Config struct {
	Port           string
	Env            string
	LogLevel       slog.Level
	StoreDriver    string
	DatabaseDSN    string
	JWTSecret      string
	CookieSecure   session.SecureMode
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "memory")),
		DatabaseDSN: getEnv("DATABASE_DSN", "file:authgate.db?_time_format=sqlite"),
		JWTSecret:   getEnv("JWT_SECRET", devSecret),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	mode, err := session.ParseSecureMode(getEnv("COOKIE_SECURE", "auto"))
	if err != nil {
		return Config{}, fmt.Errorf("COOKIE_SECURE: %w", err)
	}
	cfg.CookieSecure = mode

	if cfg.RateLimitRPS, err = strconv.ParseFloat(getEnv("AUTH_RATE_LIMIT_RPS", "5"), 64); err != nil {
		return Config{}, fmt.Errorf("AUTH_RATE_LIMIT_RPS: %w", err)
	}
	if cfg.RateLimitBurst, err = strconv.Atoi(getEnv("AUTH_RATE_LIMIT_BURST", "10")); err != nil {
		return Config{}, fmt.Errorf("AUTH_RATE_LIMIT_BURST: %w", err)
	}

	if cfg.IsProduction() && cfg.JWTSecret == devSecret {
		return Config{}, ErrProductionSecret
	}

	return cfg, nil
}

// IsProduction reports whether ENV is production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimRight(strings.TrimSpace(p), "/"); p != "" {
			out = append(out, p)
		}
	}
	return out
}
