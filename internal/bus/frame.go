package bus

import (
	"strings"
	"unicode"

	"github.com/haasonsaas/cognis/pkg/models"
)

// Frame types produced by the mapper.
const (
	FrameNotification   = "notification"
	FrameDailyBrief     = "daily_brief"
	FrameGoalCheckin    = "goal_checkin"
	FrameWorkflowResult = "workflow_result"
)

// Workflow markers that prefix bus message content.
const (
	MarkerDailyBrief     = "[workflow:daily_brief]"
	MarkerGoalCheckin    = "[workflow:goal_checkin]"
	MarkerWorkflowResult = "[workflow:workflow_result]"
)

var workflowMarkers = []struct {
	marker    string
	frameType string
}{
	{MarkerDailyBrief, FrameDailyBrief},
	{MarkerGoalCheckin, FrameGoalCheckin},
	{MarkerWorkflowResult, FrameWorkflowResult},
}

// Frame is the outbound websocket shape of a bus message. ChatID is set
// only when the frame is addressed to one client.
type Frame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	ChatID  string `json:"chat_id,omitempty"`
}

// Addressed returns a copy of f sent to chatID.
func (f Frame) Addressed(chatID string) Frame {
	f.ChatID = chatID
	return f
}

// MapMessage turns a bus message into a frame. Workflow markers select the
// frame type and are stripped along with any leading whitespace after them;
// anything else is a notification carrying the raw content.
func MapMessage(msg models.ChatMessage) Frame {
	raw := msg.Content
	for _, wf := range workflowMarkers {
		if rest, ok := strings.CutPrefix(raw, wf.marker); ok {
			return Frame{Type: wf.frameType, Content: strings.TrimLeftFunc(rest, unicode.IsSpace)}
		}
	}
	return Frame{Type: FrameNotification, Content: raw}
}

// Tag prefixes content with a workflow marker.
func Tag(marker, content string) string {
	return marker + "\n" + content
}
