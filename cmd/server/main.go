// Command server runs the DevXBoard API.
//
// Configuration comes from the environment (and an optional .env file); see
// internal/config. Optional integrations such as GitHub sign-in, the
// assistant, cover uploads and the code runner are only started when
// configured.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/devxboard/internal/assist"
	"github.com/sakif/devxboard/internal/auth"
	"github.com/sakif/devxboard/internal/config"
	"github.com/sakif/devxboard/internal/repository/sqlstore"
	"github.com/sakif/devxboard/internal/runner/docker"
	"github.com/sakif/devxboard/internal/server"
	"github.com/sakif/devxboard/internal/storage"
	"github.com/sakif/devxboard/internal/unfurl"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	dsn := cfg.DB.URL
	if cfg.DB.Driver == string(sqlstore.DialectSQLite) {
		dsn = cfg.DB.Path
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return err
			}
		}
	}
	db, err := sqlstore.Open(sqlstore.Dialect(cfg.DB.Driver), dsn, logger)
	if err != nil {
		return err
	}

	secret := cfg.JWTSecret
	if secret == "" {
		// Development only; config.Load refuses production without a secret.
		secret = randomSecret()
		logger.Warn("JWT_SECRET not set, using a random secret; sessions end on restart")
	}
	tokens, err := auth.NewTokenService(secret, 0)
	if err != nil {
		db.Close()
		return err
	}

	deps := server.Deps{
		DB:       db,
		Tokens:   tokens,
		Unfurler: unfurl.New(0),
	}

	if cfg.GitHub.Enabled() {
		deps.Identity = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL)
	} else {
		logger.Warn("GITHUB_CLIENT_ID/SECRET not set, sign-in is disabled")
	}

	if cfg.Assist.Enabled() {
		deps.Completer = assist.NewClient(assist.Config{
			BaseURL: cfg.Assist.BaseURL,
			APIKey:  cfg.Assist.APIKey,
			Model:   cfg.Assist.Model,
			Timeout: cfg.Assist.Timeout,
		})
	}

	if cfg.S3.Enabled() {
		deps.Covers = storage.NewCoverStore(storage.Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Bucket:          cfg.S3.Bucket,
			PublicBaseURL:   cfg.S3.PublicBaseURL,
		})
	}

	if cfg.Runner.Enabled {
		runnerCfg := docker.DefaultConfig()
		runnerCfg.Image = cfg.Runner.Image
		runnerCfg.PoolSize = cfg.Runner.PoolSize

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		sandbox, err := docker.New(ctx, runnerCfg, logger)
		cancel()
		if err != nil {
			logger.Warn("code runner unavailable, run requests will get 503",
				slog.String("error", err.Error()),
			)
		} else {
			defer sandbox.Close()
			deps.Runner = sandbox
		}
	}

	srv, err := server.New(server.Config{
		Port:               cfg.Port,
		CORSOrigins:        cfg.CORSOrigins,
		AuthRedirectURL:    cfg.GitHub.RedirectURL,
		SecureCookies:      cfg.IsProduction(),
		AssistPerMinute:    cfg.Assist.RatePerMinute,
		WriteRatePerMinute: cfg.WriteRatePerMinute,
	}, deps, logger)
	if err != nil {
		db.Close()
		return err
	}

	// Start blocks until SIGINT/SIGTERM and closes the database on the way out.
	return srv.Start()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
