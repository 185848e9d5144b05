package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrWorkspaceNotConfigured is returned when a tool needs a workspace and none is set.
	ErrWorkspaceNotConfigured = errors.New("workspace is not configured")
	// ErrPathEscapesWorkspace is returned when a path resolves outside the workspace.
	ErrPathEscapesWorkspace = errors.New("path escapes workspace")
)

// Tool is something the model can call.
//
// Execute returns the text handed back to the model. A returned error is
// reported to the model as "Error executing tool '<name>': <message>".
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, args map[string]any, tc *ToolContext) (string, error)
}

// RunMetadata identifies the caller of a run for audit attribution.
type RunMetadata struct {
	ClientID string
	TaskID   string
}

// ToolContext is passed to every tool execution.
type ToolContext struct {
	Workspace string
	Metadata  RunMetadata
}

// ResolvePath resolves a caller-supplied path against the workspace and
// rejects anything that normalises to a location outside it.
func (tc *ToolContext) ResolvePath(p string) (string, error) {
	if tc == nil || strings.TrimSpace(tc.Workspace) == "" {
		return "", ErrWorkspaceNotConfigured
	}
	return ResolveWorkspacePath(tc.Workspace, p)
}

// ResolveWorkspacePath is the workspace guard used by the filesystem and
// vision tools and the gateway file routes.
func ResolveWorkspacePath(workspace, p string) (string, error) {
	if strings.TrimSpace(workspace) == "" {
		return "", ErrWorkspaceNotConfigured
	}
	root, err := filepath.Abs(workspace)
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}
	root = filepath.Clean(root)

	var resolved string
	if filepath.IsAbs(p) {
		resolved = filepath.Clean(p)
	} else {
		resolved = filepath.Join(root, p)
	}
	if resolved != root && !strings.HasPrefix(resolved, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesWorkspace, p)
	}
	return resolved, nil
}

// Argument helpers shared by tool implementations. Values arrive from decoded
// JSON, so numbers are float64 but strings are tolerated.

// StringArg returns args[key] as a trimmed string, or "".
func StringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strings.TrimSpace(formatNumber(val))
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// RawStringArg returns args[key] as a string without trimming.
func RawStringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// IntArg returns args[key] as an int, or def when absent or unparsable.
func IntArg(args map[string]any, key string, def int) int {
	switch val := args[key].(type) {
	case float64:
		return int(val)
	case int:
		return val
	case int64:
		return int(val)
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return int(n)
		}
	case string:
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(val), "%d", &n); err == nil {
			return n
		}
	}
	return def
}

// FloatArg returns args[key] as a float64 and whether it was present.
func FloatArg(args map[string]any, key string) (float64, bool) {
	switch val := args[key].(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(val), "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// BoolArg returns args[key] as a bool, or def.
func BoolArg(args map[string]any, key string, def bool) bool {
	switch val := args[key].(type) {
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "1":
			return true
		case "false", "no", "0":
			return false
		}
	}
	return def
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
