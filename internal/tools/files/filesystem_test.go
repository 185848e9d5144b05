package files

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/cognis/internal/agent"
)

func TestFilesystemTool(t *testing.T) {
	ws := t.TempDir()
	tc := &agent.ToolContext{Workspace: ws}
	tool := NewTool()
	ctx := context.Background()

	out, err := tool.Execute(ctx, map[string]any{"action": "write", "path": "notes/a.txt", "content": "hello"}, tc)
	if err != nil || out != "Wrote "+filepath.Join(ws, "notes", "a.txt") {
		t.Fatalf("write = %q, %v", out, err)
	}
	if err := os.Mkdir(filepath.Join(ws, "notes", "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"read", map[string]any{"action": "read", "path": "notes/a.txt"}, "hello"},
		{"list", map[string]any{"action": "list", "path": "notes"}, "file a.txt\ndir sub"},
		{"missing args", map[string]any{"action": "read"}, "Error: action and path are required"},
		{"read missing", map[string]any{"action": "read", "path": "nope.txt"}, "Error: file not found: " + filepath.Join(ws, "nope.txt")},
		{"read dir", map[string]any{"action": "read", "path": "notes"}, "Error: path is a directory: " + filepath.Join(ws, "notes")},
		{"list file", map[string]any{"action": "list", "path": "notes/a.txt"}, "Error: path is not a directory: " + filepath.Join(ws, "notes", "a.txt")},
		{"unsupported", map[string]any{"action": "delete", "path": "x"}, "Error: unsupported action: delete"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tool.Execute(ctx, tt.args, tc)
			if err != nil {
				t.Fatalf("err = %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFilesystemToolGuardsWorkspace(t *testing.T) {
	tool := NewTool()
	ctx := context.Background()

	out, _ := tool.Execute(ctx, map[string]any{"action": "read", "path": "../../etc/passwd"}, &agent.ToolContext{Workspace: t.TempDir()})
	if !strings.HasPrefix(out, "Error: path escapes workspace") {
		t.Fatalf("escape = %q", out)
	}
	out, _ = tool.Execute(ctx, map[string]any{"action": "read", "path": "a"}, &agent.ToolContext{})
	if out != "Error: workspace is not configured" {
		t.Fatalf("no workspace = %q", out)
	}
}
