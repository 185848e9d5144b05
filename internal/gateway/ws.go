package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haasonsaas/cognis/internal/agent"
	"github.com/haasonsaas/cognis/internal/audit"
	"github.com/haasonsaas/cognis/internal/bus"
	"github.com/haasonsaas/cognis/internal/observability"
	"github.com/haasonsaas/cognis/pkg/models"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsSendBuffer      = 256
	wsWorkBuffer      = 16
	wsPongWait        = 60 * time.Second
	wsPingPeriod      = 45 * time.Second
	wsWriteWait       = 10 * time.Second
)

// wsSendWait is how long sendFrame waits on a full buffer.
var wsSendWait = wsWriteWait

// outboundFrame is a server-to-client WebSocket message. Content is a
// pointer so an empty reply still carries "content":"".
type outboundFrame struct {
	Type      string  `json:"type"`
	Content   *string `json:"content,omitempty"`
	ChatID    string  `json:"chat_id,omitempty"`
	MsgID     string  `json:"msg_id,omitempty"`
	ID        string  `json:"id,omitempty"`
	MessageID string  `json:"message_id,omitempty"`
	IsTyping  *bool   `json:"is_typing,omitempty"`
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool     { return &b }

type wsSession struct {
	server   *Server
	conn     *websocket.Conn
	clientID string
	send     chan []byte
	work     chan inboundFrame
	ctx      context.Context
	cancel   context.CancelFunc
	once     sync.Once
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  8192,
		WriteBufferSize: 8192,
		// With a token the query parameter authenticates the client and any
		// page may connect. Without one, browsers are held to the CORS list.
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return s.cfg.Token != "" || origin == "" || allowedOrigin(origin)
		},
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if s.cfg.Token != "" && query.Get("token") != s.cfg.Token {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	clientID := strings.TrimSpace(query.Get("client_id"))
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "client_id_required")
		return
	}

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "client_id", clientID, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	session := &wsSession{
		server:   s,
		conn:     conn,
		clientID: clientID,
		send:     make(chan []byte, wsSendBuffer),
		work:     make(chan inboundFrame, wsWorkBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.register(session)
	s.metrics.ConnectionOpened()
	s.logger.Debug("websocket connected", "client_id", clientID)

	go session.writeLoop()
	go session.workLoop()
	session.readLoop()
	session.close()
}

func (s *Server) register(session *wsSession) {
	s.clientsMu.Lock()
	s.clients[session.clientID] = session
	s.clientsMu.Unlock()
}

func (s *Server) unregister(session *wsSession) {
	s.clientsMu.Lock()
	if s.clients[session.clientID] == session {
		delete(s.clients, session.clientID)
	}
	s.clientsMu.Unlock()
}

// broadcast sends a bus message to every connected client, unaddressed.
func (s *Server) broadcast(msg models.ChatMessage) {
	frame := bus.MapMessage(msg)
	s.metrics.RecordBusFrame(frame.Type)

	s.clientsMu.RLock()
	sessions := make([]*wsSession, 0, len(s.clients))
	for _, session := range s.clients {
		sessions = append(sessions, session)
	}
	s.clientsMu.RUnlock()

	for _, session := range sessions {
		session.sendFrame(frame)
	}
}

func (ws *wsSession) close() {
	ws.once.Do(func() {
		ws.cancel()
		_ = ws.conn.Close()
		ws.server.unregister(ws)
		ws.server.metrics.ConnectionClosed()
		ws.server.logger.Debug("websocket closed", "client_id", ws.clientID)
	})
}

func (ws *wsSession) readLoop() {
	ws.conn.SetReadLimit(wsMaxPayloadBytes)
	_ = ws.conn.SetReadDeadline(time.Now().Add(wsPongWait)) //nolint:errcheck
	ws.conn.SetPongHandler(func(string) error {
		return ws.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		messageType, data, err := ws.conn.ReadMessage()
		if err != nil {
			ws.server.logger.Debug("websocket read ended", "client_id", ws.clientID, "error", err)
			return
		}
		_ = ws.conn.SetReadDeadline(time.Now().Add(wsPongWait)) //nolint:errcheck
		if messageType != websocket.TextMessage {
			continue
		}
		frame, err := decodeInbound(data)
		if err != nil {
			ws.server.logger.Debug("invalid websocket frame", "client_id", ws.clientID, "error", err)
			continue
		}
		switch frame.Type {
		case "ping":
			ws.sendFrame(outboundFrame{Type: "pong"})
		case "message":
			select {
			case ws.work <- frame:
			case <-ws.ctx.Done():
				return
			}
		}
	}
}

func (ws *wsSession) writeLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ws.ctx.Done():
			return
		case msg := <-ws.send:
			_ = ws.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck
			if err := ws.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				ws.server.logger.Debug("websocket write failed", "client_id", ws.clientID, "error", err)
				ws.cancel()
				return
			}
		case <-ticker.C:
			_ = ws.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck
			if err := ws.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				ws.cancel()
				return
			}
		}
	}
}

// workLoop runs agent turns one at a time, in arrival order.
func (ws *wsSession) workLoop() {
	for {
		select {
		case <-ws.ctx.Done():
			return
		case frame := <-ws.work:
			ws.handleMessage(frame)
		}
	}
}

// sendFrame queues v for the writer. A full buffer waits up to the write
// deadline, then the session is closed: a client that misses a frame would
// see a truncated reply stream.
func (ws *wsSession) sendFrame(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		ws.server.logger.Debug("encode websocket frame failed", "error", err)
		return
	}
	select {
	case ws.send <- data:
		return
	default:
	}
	timer := time.NewTimer(wsSendWait)
	defer timer.Stop()
	select {
	case ws.send <- data:
	case <-ws.ctx.Done():
	case <-timer.C:
		ws.server.logger.Warn("websocket client too slow, closing session", "client_id", ws.clientID)
		ws.close()
	}
}

func (ws *wsSession) ack(msgID string) {
	if strings.TrimSpace(msgID) == "" {
		return
	}
	ws.sendFrame(outboundFrame{Type: "ack", MsgID: msgID})
}

// handleMessage runs one agent turn and streams the reply. The frame order
// is fixed: typing on, deltas or a single message, typing off, pending bus
// messages, then the ack.
func (ws *wsSession) handleMessage(frame inboundFrame) {
	s := ws.server
	content := strings.TrimSpace(frame.Content)
	if content == "" || s.runner == nil {
		ws.ack(frame.MsgID)
		return
	}

	taskID := uuid.NewString()
	started := time.Now()
	s.recordEvent(audit.EventUserActivity, map[string]any{"client_id": ws.clientID, "channel": "ws"})
	s.recordEvent(audit.EventTaskStarted, map[string]any{
		"task_id":     taskID,
		"client_id":   ws.clientID,
		"input_chars": utf8.RuneCountInString(content),
		"channel":     "ws",
	})
	s.metrics.RecordTask("started")
	ws.sendFrame(outboundFrame{Type: "typing", ChatID: ws.clientID, IsTyping: boolPtr(true)})

	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	// A disconnect closes the socket but the turn still finishes and is
	// recorded; only the run timeout stops it.
	runCtx, cancelRun := context.WithTimeout(context.WithoutCancel(ws.ctx), s.cfg.RunTimeout)
	defer cancelRun()
	ctx, span := s.tracer.TraceTask(runCtx, ws.clientID, taskID)
	result, err := s.runner.Run(ctx, content, s.Settings(), agent.RunMetadata{ClientID: ws.clientID, TaskID: taskID})
	if err == nil && result == nil {
		err = errNoResult
	}

	reply := ""
	if err != nil {
		observability.RecordError(span, err)
		reply = "Error: " + err.Error()
	} else {
		reply = result.Content
	}
	span.End()

	responseID := uuid.NewString()
	streamed := false
	if strings.TrimSpace(reply) != "" {
		for _, chunk := range chunkText(reply, s.cfg.ChunkSize) {
			ws.sendFrame(outboundFrame{Type: "text_delta", Content: strPtr(chunk), ChatID: ws.clientID, MessageID: responseID})
			streamed = true
		}
	}
	if !streamed {
		ws.sendFrame(outboundFrame{Type: "message", Content: strPtr(reply), ChatID: ws.clientID, ID: responseID})
	}
	ws.sendFrame(outboundFrame{Type: "typing", ChatID: ws.clientID, IsTyping: boolPtr(false)})
	ws.drainBus()

	duration := time.Since(started).Milliseconds()
	if err != nil {
		s.metrics.RecordTask("failed")
		s.recordEvent(audit.EventTaskFailed, map[string]any{
			"task_id":     taskID,
			"client_id":   ws.clientID,
			"duration_ms": duration,
			"error":       err.Error(),
		})
		s.logger.Warn("agent run failed", "client_id", ws.clientID, "task_id", taskID, "error", err)
	} else {
		s.metrics.RecordTask("succeeded")
		attrs := map[string]any{
			"task_id":      taskID,
			"client_id":    ws.clientID,
			"duration_ms":  duration,
			"output_chars": utf8.RuneCountInString(reply),
		}
		if cost, ok := costUSD(result.Usage); ok {
			attrs["cost_usd"] = cost
		}
		s.recordEvent(audit.EventTaskSucceeded, attrs)
	}
	ws.ack(frame.MsgID)
}

// drainBus delivers every pending bus message to this client only.
func (ws *wsSession) drainBus() {
	// Pending messages stay queued for the broadcast pump once the client
	// is gone.
	if ws.server.bus == nil || ws.ctx.Err() != nil {
		return
	}
	for {
		msg, ok := ws.server.bus.Poll()
		if !ok {
			return
		}
		frame := bus.MapMessage(msg).Addressed(ws.clientID)
		ws.server.metrics.RecordBusFrame(frame.Type)
		ws.sendFrame(frame)
	}
}

// chunkText splits s into runs of size runes.
func chunkText(s string, size int) []string {
	size = max(1, size)
	runes := []rune(s)
	chunks := make([]string, 0, len(runes)/size+1)
	for i := 0; i < len(runes); i += size {
		chunks = append(chunks, string(runes[i:min(len(runes), i+size)]))
	}
	return chunks
}

func costUSD(usage map[string]any) (float64, bool) {
	switch v := usage["cost_usd"].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}
