// Package config reads the server's settings from the environment.
//
// An optional .env file is loaded first (ENV_FILE overrides the path).
// Variables already set in the process environment win over the file, so a
// deployment can ship a .env with defaults and override single keys.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type DBConfig struct {
	Driver string // "sqlite" or "postgres"
	Path   string // SQLite file, ":memory:" for throwaway databases
	URL    string // Postgres DSN
}

type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	// RedirectURL is where the browser goes after sign-in, usually the
	// frontend's origin.
	RedirectURL string
}

// Enabled reports whether sign-in is configured.
func (c GitHubConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type AssistConfig struct {
	BaseURL       string
	APIKey        string
	Model         string
	Timeout       time.Duration
	RatePerMinute int
}

func (c AssistConfig) Enabled() bool {
	return c.BaseURL != ""
}

type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicBaseURL   string
}

func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

type RunnerConfig struct {
	Enabled  bool
	Image    string
	PoolSize int
}

type Config struct {
	Port        int
	Environment string
	LogFormat   string // "json" or "text"
	LogLevel    string
	JWTSecret   string
	CORSOrigins []string
	// WriteRatePerMinute limits mutating API calls per caller.
	WriteRatePerMinute int

	DB     DBConfig
	GitHub GitHubConfig
	Assist AssistConfig
	S3     S3Config
	Runner RunnerConfig
}

// IsProduction reports whether ENV is "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads every setting. Malformed numbers and durations are reported
// together rather than one at a time.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
	}

	var errs []error
	p := parser{errs: &errs}

	cfg := &Config{
		Port:        p.int("PORT", 8080),
		Environment: getEnv("ENV", "development"),
		LogFormat:   strings.ToLower(getEnv("LOG_FORMAT", "text")),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),

		WriteRatePerMinute: p.int("WRITE_RATE_PER_MINUTE", 120),
		DB: DBConfig{
			Driver: strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			Path:   getEnv("DB_PATH", "data/devxboard.db"),
			URL:    getEnv("DATABASE_URL", ""),
		},
		GitHub: GitHubConfig{
			ClientID:     getEnv("GITHUB_CLIENT_ID", ""),
			ClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
			CallbackURL:  getEnv("GITHUB_CALLBACK_URL", ""),
			RedirectURL:  getEnv("AUTH_REDIRECT_URL", "/"),
		},
		Assist: AssistConfig{
			BaseURL:       getEnv("ASSIST_BASE_URL", ""),
			APIKey:        getEnv("ASSIST_API_KEY", ""),
			Model:         getEnv("ASSIST_MODEL", "gpt-4o-mini"),
			Timeout:       p.duration("ASSIST_TIMEOUT", 20*time.Second),
			RatePerMinute: p.int("ASSIST_RATE_PER_MINUTE", 10),
		},
		S3: S3Config{
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "auto"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("S3_BUCKET", ""),
			PublicBaseURL:   getEnv("S3_PUBLIC_BASE_URL", ""),
		},
		Runner: RunnerConfig{
			Enabled:  p.bool("RUNNER_ENABLED", false),
			Image:    getEnv("RUNNER_IMAGE", "python:3.12-alpine"),
			PoolSize: p.int("RUNNER_POOL_SIZE", 3),
		},
	}

	if cfg.GitHub.CallbackURL == "" {
		cfg.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	switch cfg.DB.Driver {
	case "sqlite":
	case "postgres":
		if cfg.DB.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when DB_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.DB.Driver))
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", cfg.LogFormat))
	}
	if cfg.IsProduction() && cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// getEnv returns the variable or fallback when it is unset.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// parser collects conversion errors so Load can report all of them.
type parser struct {
	errs *[]error
}

func (p parser) int(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < 0 {
		*p.errs = append(*p.errs, fmt.Errorf("%s must be a non-negative integer, got %q", key, raw))
		return fallback
	}
	return v
}

func (p parser) duration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		*p.errs = append(*p.errs, fmt.Errorf("%s must be a positive duration like 20s, got %q", key, raw))
		return fallback
	}
	return v
}

func (p parser) bool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s must be true or false, got %q", key, raw))
		return fallback
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
