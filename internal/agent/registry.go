package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/cognis/pkg/models"
)

type registeredTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

// ToolRegistry maps tool names to tools. Registering a name twice replaces
// the earlier tool.
type ToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]registeredTool
	logger *slog.Logger
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:  make(map[string]registeredTool),
		logger: slog.Default().With("component", "tools"),
	}
}

// Register adds or replaces a tool. A parameter schema that does not compile
// is logged and argument validation is skipped for that tool.
func (r *ToolRegistry) Register(tool Tool) {
	if tool == nil {
		return
	}
	entry := registeredTool{tool: tool}
	if raw := tool.Schema(); len(raw) > 0 {
		compiled, err := jsonschema.CompileString(tool.Name()+".schema.json", string(raw))
		if err != nil {
			r.logger.Warn("tool schema does not compile", "tool", tool.Name(), "error", err)
		} else {
			entry.schema = compiled
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = entry
}

// Get returns the tool registered under name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tools[name]
	return entry.tool, ok
}

// Names lists registered tool names in sorted order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions describes every tool for the model, sorted by name.
func (r *ToolRegistry) Definitions() []models.ToolDefinition {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]models.ToolDefinition, 0, len(names))
	for _, name := range names {
		t := r.tools[name].tool
		defs = append(defs, models.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return defs
}

// Validate checks args against the tool's parameter schema.
func (r *ToolRegistry) Validate(name string, args map[string]any) error {
	r.mu.RLock()
	entry, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("tool %q is not registered", name)
	}
	if entry.schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	if err := entry.schema.Validate(decoded); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// Execute validates args and runs the named tool.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args map[string]any, tc *ToolContext) (string, error) {
	tool, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("tool %q is not registered", name)
	}
	if err := r.Validate(name, args); err != nil {
		return "", err
	}
	if args == nil {
		args = map[string]any{}
	}
	return tool.Execute(ctx, args, tc)
}
