package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

const includeKey = "$include"

// Load reads path and merges it onto Defaults. A missing file yields the
// defaults unchanged.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Defaults(), nil
	}
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	base, err := defaultsRaw()
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(mergeMaps(base, normalizeKeys(raw)))
	if err != nil {
		return nil, err
	}
	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load that logs and falls back to the defaults when the
// file cannot be read or parsed.
func LoadOrDefault(path string, logger *slog.Logger) *Config {
	cfg, err := Load(path)
	if err == nil {
		return cfg
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("config load failed, using defaults", "path", path, "error", err)
	return Defaults()
}

// LoadRaw reads a configuration file into a merged raw map, resolving
// $include directives. Environment references are expanded before parsing.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	return loadRawRecursive(path, map[string]bool{})
}

func loadRawRecursive(path string, seen map[string]bool) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[absPath] {
		return nil, fmt.Errorf("config include cycle detected at %s", absPath)
	}
	seen[absPath] = true
	defer delete(seen, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	raw, err := parseRawBytes([]byte(expandEnv(string(data))), absPath)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", absPath, err)
	}

	includes, err := extractIncludes(raw)
	if err != nil {
		return nil, err
	}
	merged := map[string]any{}
	baseDir := filepath.Dir(absPath)
	for _, inc := range includes {
		if strings.TrimSpace(inc) == "" {
			continue
		}
		incPath := inc
		if !filepath.IsAbs(incPath) {
			incPath = filepath.Join(baseDir, incPath)
		}
		incRaw, err := loadRawRecursive(incPath, seen)
		if err != nil {
			return nil, err
		}
		merged = mergeMaps(merged, incRaw)
	}
	return mergeMaps(merged, raw), nil
}

// expandEnv substitutes $VAR and ${VAR} references, leaving the $include
// directive intact. Unset variables expand to "".
func expandEnv(text string) string {
	return os.Expand(text, func(name string) string {
		if name == includeKey[1:] {
			return includeKey
		}
		return os.Getenv(name)
	})
}

// parseRawBytes reads .json and .json5 files with a JSON5 parser (comments,
// trailing commas) and everything else as a single YAML document.
func parseRawBytes(data []byte, pathHint string) (map[string]any, error) {
	format := strings.ToLower(filepath.Ext(pathHint))
	if format == ".json" || format == ".json5" {
		var raw map[string]any
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		if raw == nil {
			raw = map[string]any{}
		}
		return raw, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil && err != io.EOF {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("expected single document")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func extractIncludes(raw map[string]any) ([]string, error) {
	val, ok := raw[includeKey]
	if !ok || val == nil {
		return nil, nil
	}
	delete(raw, includeKey)

	switch typed := val.(type) {
	case string:
		return []string{typed}, nil
	case []any:
		paths := make([]string, 0, len(typed))
		for _, entry := range typed {
			value, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("include entries must be strings")
			}
			paths = append(paths, value)
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("include must be a string or list of strings")
	}
}

// mergeMaps deep-merges src into dst. Nested maps merge key by key; any
// other value in src replaces the one in dst.
func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		if valueMap, ok := value.(map[string]any); ok {
			if existing, ok := dst[key].(map[string]any); ok {
				dst[key] = mergeMaps(existing, valueMap)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}

// normalizeKeys rewrites snake_case and kebab-case keys to camelCase. When
// both spellings are present the camelCase one wins. Header maps keep their
// keys verbatim.
func normalizeKeys(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	var aliases []string
	for key, value := range raw {
		canonical := camelKey(key)
		if canonical != key {
			aliases = append(aliases, key)
			continue
		}
		out[key] = normalizeValue(key, value)
	}
	for _, key := range aliases {
		canonical := camelKey(key)
		if _, exists := out[canonical]; exists {
			continue
		}
		out[canonical] = normalizeValue(canonical, raw[key])
	}
	return out
}

func normalizeValue(key string, value any) any {
	nested, ok := value.(map[string]any)
	if !ok || key == "extraHeaders" {
		return value
	}
	return normalizeKeys(nested)
}

func camelKey(key string) string {
	if !strings.ContainsAny(key, "_-") || strings.HasPrefix(key, "$") {
		return key
	}
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' })
	if len(parts) == 0 {
		return key
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, part := range parts[1:] {
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

func defaultsRaw() (map[string]any, error) {
	payload, err := yaml.Marshal(Defaults())
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func decodeRawConfig(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(payload, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
