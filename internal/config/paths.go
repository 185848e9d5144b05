package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/cognis/internal/fsutil"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "COGNIS_CONFIG"

// DefaultPath returns $COGNIS_CONFIG or ~/.cognis/config.json.
func DefaultPath() string {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return fsutil.ExpandHome(p)
	}
	return filepath.Join(homeDir(), ".cognis", "config.json")
}

// ResolveWorkspace expands a leading ~ and falls back to ~/.cognis/workspace
// when raw is blank.
func ResolveWorkspace(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return filepath.Join(homeDir(), ".cognis", "workspace")
	}
	return filepath.Clean(fsutil.ExpandHome(raw))
}

// Workspace is the resolved workspace directory for c.
func (c *Config) Workspace() string {
	return ResolveWorkspace(c.Agents.Defaults.Workspace)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return home
}
