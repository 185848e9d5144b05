package gateway

import (
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	inboundSchemaOnce sync.Once
	inboundSchema     *jsonschema.Schema
	inboundSchemaErr  error
)

const inboundFrameSchema = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": { "type": "string", "minLength": 1 },
    "client_id": { "type": ["string", "null"] },
    "content": { "type": ["string", "null"] },
    "msg_id": { "type": ["string", "null"] },
    "metadata": {
      "type": ["object", "null"],
      "additionalProperties": { "type": "string" }
    }
  },
  "additionalProperties": true
}`

// inboundFrame is a client-to-server WebSocket message.
type inboundFrame struct {
	Type     string            `json:"type"`
	ClientID string            `json:"client_id,omitempty"`
	Content  string            `json:"content,omitempty"`
	MsgID    string            `json:"msg_id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// decodeInbound validates raw against the inbound schema and decodes it.
func decodeInbound(raw []byte) (inboundFrame, error) {
	inboundSchemaOnce.Do(func() {
		inboundSchema, inboundSchemaErr = jsonschema.CompileString("ws_inbound", inboundFrameSchema)
	})
	if inboundSchemaErr != nil {
		return inboundFrame{}, inboundSchemaErr
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return inboundFrame{}, err
	}
	if err := inboundSchema.Validate(payload); err != nil {
		return inboundFrame{}, err
	}
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return inboundFrame{}, err
	}
	return frame, nil
}
