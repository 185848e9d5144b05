package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/cognis/pkg/models"
)

// toolCallBuffer assembles streamed tool calls. Fragments are keyed by call
// id; a fragment without an id reuses the id last seen at its index, and
// falls back to "call_<index>".
type toolCallBuffer struct {
	order   []string
	calls   map[string]*pendingCall
	byIndex map[int]string
}

type pendingCall struct {
	name string
	args strings.Builder
}

func newToolCallBuffer() *toolCallBuffer {
	return &toolCallBuffer{calls: map[string]*pendingCall{}, byIndex: map[int]string{}}
}

// add merges one fragment. index < 0 means the dialect carries no index.
func (b *toolCallBuffer) add(index int, id, name, argsFragment string) {
	id = strings.TrimSpace(id)
	if id != "" && index >= 0 {
		b.byIndex[index] = id
	}
	if id == "" && index >= 0 {
		id = b.byIndex[index]
	}
	if id == "" {
		if index < 0 {
			index = 0
		}
		id = fmt.Sprintf("call_%d", index)
	}
	call, ok := b.calls[id]
	if !ok {
		call = &pendingCall{}
		b.calls[id] = call
		b.order = append(b.order, id)
	}
	if strings.TrimSpace(name) != "" {
		call.name = name
	}
	call.args.WriteString(argsFragment)
}

// finish decodes buffered arguments in first-seen order.
func (b *toolCallBuffer) finish() []models.ToolCall {
	if len(b.order) == 0 {
		return nil
	}
	out := make([]models.ToolCall, 0, len(b.order))
	for _, id := range b.order {
		call := b.calls[id]
		out = append(out, models.ToolCall{
			ID:        id,
			Name:      call.name,
			Arguments: parseArguments(call.args.String()),
		})
	}
	return out
}

// parseArguments decodes a JSON object; blank or malformed input is an
// empty map.
func parseArguments(raw string) map[string]any {
	out := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}
