package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/cognis/internal/fsutil"
)

// Save writes cfg atomically. YAML paths get YAML, everything else pretty
// JSON with a trailing newline. The file holds credentials, so it is 0600.
func Save(path string, cfg *Config) error {
	data, err := Marshal(path, cfg)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, 0o600)
}

// Marshal encodes cfg in the format implied by path's extension.
func Marshal(path string, cfg *Config) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Marshal(cfg)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return append(data, '\n'), nil
}

// OnboardResult reports what Onboard did.
type OnboardResult struct {
	ConfigPath        string
	WorkspacePath     string
	CreatedConfig     bool
	OverwrittenConfig bool
}

// Onboard creates the config file, replaces it with defaults when overwrite
// is set, or otherwise re-saves it so new default keys appear. The workspace
// templates are created if missing.
func Onboard(path string, overwrite bool) (OnboardResult, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath()
	}
	_, statErr := os.Stat(path)
	created := errors.Is(statErr, fs.ErrNotExist)

	var cfg *Config
	if created || overwrite {
		cfg = Defaults()
	} else {
		loaded, err := Load(path)
		if err != nil {
			return OnboardResult{}, err
		}
		cfg = loaded
	}
	if err := Save(path, cfg); err != nil {
		return OnboardResult{}, fmt.Errorf("save config: %w", err)
	}

	workspace := cfg.Workspace()
	if err := EnsureWorkspaceTemplates(workspace); err != nil {
		return OnboardResult{}, err
	}
	return OnboardResult{
		ConfigPath:        path,
		WorkspacePath:     workspace,
		CreatedConfig:     created,
		OverwrittenConfig: !created && overwrite,
	}, nil
}

var workspaceTemplates = []struct {
	name    string
	content string
}{
	{"AGENTS.md", "# Agent Instructions\n\nYou are a precise AI assistant.\n"},
	{"SOUL.md", "# Soul\n\nI am Cognis.\n"},
	{"USER.md", "# User\n\nAdd user preferences here.\n"},
	{filepath.Join("memory", "MEMORY.md"), "# Long-term Memory\n\n"},
}

// EnsureWorkspaceTemplates writes the starter files into workspace. Files
// that already exist are left alone.
func EnsureWorkspaceTemplates(workspace string) error {
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	for _, tmpl := range workspaceTemplates {
		path := filepath.Join(workspace, tmpl.name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := fsutil.WriteFileAtomic(path, []byte(tmpl.content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", tmpl.name, err)
		}
	}
	return nil
}
