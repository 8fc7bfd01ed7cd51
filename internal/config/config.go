package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	LogLevel    slog.Level

	StaticTokens   []string
	JWTSecret      string
	AllowedOrigins []string

	BookingRatePerMinute int
	ShutdownTimeout      time.Duration

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

// LoadDotEnv reads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func FromEnv() Config {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	rpm, err := strconv.Atoi(envOr("BOOKING_RATE_PER_MINUTE", "30"))
	if err != nil || rpm <= 0 {
		rpm = 30
	}
	shutdown := 10 * time.Second
	if v := os.Getenv("SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			shutdown = d
		}
	}
	return Config{
		Port:                 envOr("PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		LogLevel:             lvl,
		StaticTokens:         splitList(os.Getenv("STATIC_TOKENS")),
		JWTSecret:            os.Getenv("JWT_HMAC_SECRET"),
		AllowedOrigins:       splitList(envOr("CORS_ALLOWED_ORIGINS", "*")),
		BookingRatePerMinute: rpm,
		ShutdownTimeout:      shutdown,
		GoogleClientID:       os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:   os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:    os.Getenv("GOOGLE_REDIRECT_URL"),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
