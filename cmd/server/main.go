// Package main is the entry point for the EcoCity 2050 backend.
//
// main stays minimal:
//  1. Load configuration (environment, optional .env)
//  2. Build the logger
//  3. Hand both to internal/server and block until shutdown
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/ecocity-backend/internal/config"
	"github.com/sakif/ecocity-backend/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if cfg.KakaoClientID == "" || cfg.KakaoRedirectURL == "" {
		logger.Warn("KAKAO_CLIENT_ID or KAKAO_REDIRECT_URL not set; kakao login will return configuration errors")
	}
	if cfg.OpenAIAPIKey == "" {
		logger.Warn("OPENAI_API_KEY not set; /name-city will return configuration errors")
	}
	if cfg.Debug {
		logger.Warn("DEBUG is on; auth cookies are sent without the Secure flag")
	}

	// The data directory is created on first start (like `mkdir -p`).
	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
