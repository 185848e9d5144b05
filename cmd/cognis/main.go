// Package main is the cognis command: onboarding, one-shot agent prompts,
// status, and the WebSocket gateway.
//
// Environment:
//
//   - COGNIS_CONFIG: config file path (default ~/.cognis/config.json)
//   - COGNIS_LOG_LEVEL: debug, info, warn or error
//   - COGNIS_CONVERSATION_STORE: sqlite (default), bolt or file
//   - COGNIS_CONVERSATION_SQLITE_PATH: override the SQLite database path
//
// A .env file in the working directory or in ~/.cognis is loaded first.
package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/haasonsaas/cognis/internal/observability"
)

// Populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	loadDotEnv()
	slog.SetDefault(observability.NewLogger(observability.LogConfig{
		Level: os.Getenv("COGNIS_LOG_LEVEL"),
	}))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// loadDotEnv loads .env files that exist. Variables already set win.
func loadDotEnv() {
	candidates := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".cognis", ".env"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			slog.Warn("failed to load env file", "path", path, "error", err)
		}
	}
}
