// Package files exposes the workspace to the model. Every path goes through
// the workspace guard, so nothing outside the workspace can be read or
// written.
package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/haasonsaas/cognis/internal/agent"
	"github.com/haasonsaas/cognis/internal/tools"
)

// Tool reads, writes and lists workspace files.
type Tool struct{}

func NewTool() *Tool { return &Tool{} }

func (t *Tool) Name() string { return "filesystem" }

func (t *Tool) Description() string {
	return "Read, write, or list files in workspace"
}

func (t *Tool) Schema() json.RawMessage {
	return tools.Schema(map[string]any{
		"action":  tools.Enum("read, write or list", "read", "write", "list"),
		"path":    tools.Prop("string", "Path relative to the workspace."),
		"content": tools.Prop("string", "File content for write."),
	}, "action", "path")
}

func (t *Tool) Execute(_ context.Context, args map[string]any, tc *agent.ToolContext) (string, error) {
	action := agent.StringArg(args, "action")
	pathArg := agent.StringArg(args, "path")
	if action == "" || pathArg == "" {
		return tools.Errorf("action and path are required"), nil
	}
	target, err := tc.ResolvePath(pathArg)
	if err != nil {
		return tools.Errorf("%s", err), nil
	}
	switch action {
	case "read":
		return readFile(target)
	case "write":
		return writeFile(target, agent.RawStringArg(args, "content"))
	case "list":
		return listDir(target)
	default:
		return tools.Unsupported(action), nil
	}
}

func readFile(target string) (string, error) {
	info, err := os.Stat(target)
	if errors.Is(err, os.ErrNotExist) {
		return tools.Errorf("file not found: %s", target), nil
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return tools.Errorf("path is a directory: %s", target), nil
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return string(data), nil
}

func writeFile(target, content string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return "Wrote " + target, nil
}

func listDir(target string) (string, error) {
	info, err := os.Stat(target)
	if errors.Is(err, os.ErrNotExist) {
		return tools.Errorf("path not found: %s", target), nil
	}
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return tools.Errorf("path is not a directory: %s", target), nil
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		return "", fmt.Errorf("list directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		kind := "file"
		if e.IsDir() {
			kind = "dir"
		}
		lines = append(lines, kind+" "+e.Name())
	}
	return strings.Join(lines, "\n"), nil
}
