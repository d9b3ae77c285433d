package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points ENV_FILE at an empty directory and clears every key Load
// reads, so the developer's own environment cannot leak into a test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENV_FILE", filepath.Join(dir, ".env"))
	for _, key := range []string{
		"PORT", "ENV", "LOG_FORMAT", "LOG_LEVEL", "DB_DRIVER", "DB_PATH", "DATABASE_URL",
		"JWT_SECRET", "GITHUB_CLIENT_ID", "GITHUB_CLIENT_SECRET", "GITHUB_CALLBACK_URL",
		"CORS_ALLOWED_ORIGINS", "ASSIST_BASE_URL", "ASSIST_API_KEY", "ASSIST_MODEL",
		"ASSIST_TIMEOUT", "ASSIST_RATE_PER_MINUTE", "S3_ENDPOINT", "S3_REGION",
		"S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY", "S3_BUCKET", "S3_PUBLIC_BASE_URL",
		"RUNNER_ENABLED", "RUNNER_IMAGE", "RUNNER_POOL_SIZE", "AUTH_REDIRECT_URL",
		"WRITE_RATE_PER_MINUTE",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "data/devxboard.db", cfg.DB.Path)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 20*time.Second, cfg.Assist.Timeout)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSOrigins)
	assert.Equal(t, "http://localhost:8080/auth/github/callback", cfg.GitHub.CallbackURL)
	assert.False(t, cfg.GitHub.Enabled())
	assert.False(t, cfg.Assist.Enabled())
	assert.False(t, cfg.S3.Enabled())
	assert.False(t, cfg.Runner.Enabled)
	assert.Equal(t, "/", cfg.GitHub.RedirectURL)
	assert.Equal(t, 120, cfg.WriteRatePerMinute)
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	dir := isolate(t)
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"PORT=9000\nASSIST_BASE_URL=http://llm.local/v1\nASSIST_TIMEOUT=5s\nCORS_ALLOWED_ORIGINS=https://a.dev, https://b.dev\n",
	), 0o600))
	t.Setenv("PORT", "9100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port, "process environment wins over the file")
	assert.True(t, cfg.Assist.Enabled())
	assert.Equal(t, 5*time.Second, cfg.Assist.Timeout)
	assert.Equal(t, []string{"https://a.dev", "https://b.dev"}, cfg.CORSOrigins)
}

func TestLoad_ReportsEveryBadValue(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "eighty")
	t.Setenv("ASSIST_TIMEOUT", "soon")
	t.Setenv("RUNNER_ENABLED", "maybe")
	t.Setenv("DB_DRIVER", "mysql")

	_, err := Load()
	require.Error(t, err)
	for _, key := range []string{"PORT", "ASSIST_TIMEOUT", "RUNNER_ENABLED", "DB_DRIVER"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestLoad_PostgresNeedsURL(t *testing.T) {
	isolate(t)
	t.Setenv("DB_DRIVER", "postgres")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://localhost/devxboard?sslmode=disable")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DB.Driver)
}

func TestLoad_ProductionNeedsSecret(t *testing.T) {
	isolate(t)
	t.Setenv("ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}
