// Package config loads process configuration from the environment.
//
// A .env file in the working directory is read first when present; real
// environment variables win over it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minSecretLength = 16

type Config struct {
	Port int

	DBDriver    string // "sqlite" or "postgres"
	DBPath      string // sqlite file
	DatabaseURL string // postgres DSN

	ActivationSecret string
	AccessSecret     string
	RefreshSecret    string

	ClientURL    string
	BcryptCost   int
	CookieSecure bool
	LogLevel     slog.Level

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	ShutdownTimeout time.Duration
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// Load reads the configuration. A missing or short token secret is an error;
// the server must not start without all three.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []error

	port, err := getIntEnv("PORT", 8080)
	errs = append(errs, err)
	cost, err := getIntEnv("BCRYPT_COST", 12)
	errs = append(errs, err)
	secure, err := getBoolEnv("COOKIE_SECURE", false)
	errs = append(errs, err)
	shutdown, err := getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second)
	errs = append(errs, err)

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	cfg := &Config{
		Port:               port,
		DBDriver:           strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBPath:             getEnv("DB_PATH", "data/accounts.db"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		ActivationSecret:   getEnv("ACTIVATION_TOKEN_SECRET", ""),
		AccessSecret:       getEnv("ACCESS_TOKEN_SECRET", ""),
		RefreshSecret:      getEnv("REFRESH_TOKEN_SECRET", ""),
		ClientURL:          strings.TrimRight(getEnv("CLIENT_URL", "http://localhost:3000"), "/"),
		BcryptCost:         cost,
		CookieSecure:       secure,
		LogLevel:           level,
		GitHubClientID:     getEnv("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
		GitHubCallbackURL:  getEnv("GITHUB_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/github/callback", port)),
		ShutdownTimeout:    shutdown,
	}

	errs = append(errs, cfg.validate())
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	secrets := map[string]string{
		"ACTIVATION_TOKEN_SECRET": c.ActivationSecret,
		"ACCESS_TOKEN_SECRET":     c.AccessSecret,
		"REFRESH_TOKEN_SECRET":    c.RefreshSecret,
	}
	for _, name := range []string{"ACTIVATION_TOKEN_SECRET", "ACCESS_TOKEN_SECRET", "REFRESH_TOKEN_SECRET"} {
		switch v := secrets[name]; {
		case v == "":
			errs = append(errs, fmt.Errorf("%s is required", name))
		case len(v) < minSecretLength:
			errs = append(errs, fmt.Errorf("%s must be at least %d characters", name, minSecretLength))
		}
	}
	if c.ActivationSecret != "" && (c.ActivationSecret == c.AccessSecret || c.ActivationSecret == c.RefreshSecret) ||
		c.AccessSecret != "" && c.AccessSecret == c.RefreshSecret {
		errs = append(errs, errors.New("token secrets must be distinct"))
	}

	switch c.DBDriver {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when DB_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver))
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getIntEnv(key string, fallback int) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not an integer", key, val)
	}
	return parsed, nil
}

func getBoolEnv(key string, fallback bool) (bool, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not a boolean", key, val)
	}
	return parsed, nil
}

func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not a duration", key, val)
	}
	return parsed, nil
}
