package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/haasonsaas/cognis/internal/observability"
	"github.com/haasonsaas/cognis/pkg/models"
)

// Audit event types emitted around tool calls.
const (
	EventToolStarted   = "tool_started"
	EventToolSucceeded = "tool_succeeded"
	EventToolFailed    = "tool_failed"
)

// mcpToolName is the bridge tool whose output carries provider metadata.
const mcpToolName = "mcp"

var phonePattern = regexp.MustCompile(`^\+?[0-9()\-\s]{7,}$`)

var nonDigits = regexp.MustCompile(`[^0-9]`)

// executeTool runs one call. Unknown tools produce an error string without
// audit events; known tools always record tool_started followed by exactly
// one of tool_succeeded or tool_failed.
func (r *Runtime) executeTool(ctx context.Context, call models.ToolCall, tc *ToolContext) string {
	if _, ok := r.tools.Get(call.Name); !ok {
		return fmt.Sprintf("Error: Tool '%s' not found", call.Name)
	}

	ctx, span := r.tracer.TraceToolExecution(ctx, call.Name)
	defer span.End()

	started := r.now()
	r.recordToolEvent(EventToolStarted, call, tc.Metadata, started, nil, "")

	output, err := r.safeExecute(ctx, call, tc)
	elapsed := r.now().Sub(started)
	if err != nil {
		r.logger.WarnContext(ctx, "tool failed", "tool", call.Name, "error", err)
		observability.RecordError(span, err)
		r.metrics.RecordToolExecution(call.Name, "failed", elapsed)
		msg := err.Error()
		if strings.TrimSpace(msg) == "" {
			msg = "execution_error"
		}
		r.recordToolEvent(EventToolFailed, call, tc.Metadata, started, nil, msg)
		return fmt.Sprintf("Error executing tool '%s': %s", call.Name, err.Error())
	}

	r.metrics.RecordToolExecution(call.Name, "succeeded", elapsed)
	r.recordToolEvent(EventToolSucceeded, call, tc.Metadata, started, &output, "")
	return output
}

func (r *Runtime) safeExecute(ctx context.Context, call models.ToolCall, tc *ToolContext) (output string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return r.tools.Execute(ctx, call.Name, call.Arguments, tc)
}

func (r *Runtime) recordToolEvent(eventType string, call models.ToolCall, meta RunMetadata, started time.Time, output *string, errMsg string) {
	if r.audit == nil {
		return
	}
	attrs := map[string]any{}
	if id := strings.TrimSpace(meta.ClientID); id != "" {
		attrs["client_id"] = id
	}
	if id := strings.TrimSpace(meta.TaskID); id != "" {
		attrs["task_id"] = id
	}
	attrs["tool_name"] = call.Name
	elapsed := r.now().Sub(started).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	attrs["duration_ms"] = elapsed
	attrs["input_chars"] = len(call.ArgumentsJSON())
	if strings.TrimSpace(errMsg) != "" {
		attrs["error"] = errMsg
	}
	if output != nil {
		attrs["output_chars"] = len(*output)
		if eventType == EventToolSucceeded {
			for k, v := range mcpMetadata(call, *output) {
				attrs[k] = v
			}
		}
	}
	if err := r.audit.Record(eventType, attrs); err != nil {
		r.logger.Debug("failed to record tool audit event", "error", err)
	}
}

// mcpMetadata lifts delivery details out of an MCP bridge response.
func mcpMetadata(call models.ToolCall, output string) map[string]any {
	if call.Name != mcpToolName {
		return nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(output), &parsed); err != nil {
		return nil
	}
	meta := map[string]any{}
	if v, ok := parsed["http_status"]; ok && v != nil {
		meta["mcp_http_status"] = v
	}
	if v, ok := parsed["http_ok"]; ok && v != nil {
		meta["mcp_http_ok"] = v
	}
	if tool := StringArg(call.Arguments, "tool"); tool != "" {
		meta["mcp_tool"] = tool
	}
	if data, ok := parsed["data"].(map[string]any); ok {
		if v, ok := data["sid"]; ok && v != nil {
			meta["provider_sid"] = stringify(v)
		}
		if v, ok := data["status"]; ok && v != nil {
			meta["provider_status"] = stringify(v)
		}
		if v, ok := data["to"]; ok && v != nil {
			meta["provider_to"] = maskPhone(stringify(v))
		}
	}
	return meta
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if f, ok := v.(float64); ok {
		return formatNumber(f)
	}
	return fmt.Sprint(v)
}

// maskPhone keeps only the last four digits of phone-like values.
func maskPhone(value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" || !phonePattern.MatchString(raw) {
		return raw
	}
	digits := nonDigits.ReplaceAllString(raw, "")
	if len(digits) <= 4 {
		return "***" + digits
	}
	return "***" + digits[len(digits)-4:]
}
