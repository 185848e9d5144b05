// Package gateway serves the HTTP and WebSocket surface: uploads,
// transcription, payment policy, the audit dashboard, and streamed agent
// replies over /ws. A background pump broadcasts bus messages to every
// connected client.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/cognis/internal/agent"
	"github.com/haasonsaas/cognis/internal/audit"
	"github.com/haasonsaas/cognis/internal/observability"
	"github.com/haasonsaas/cognis/internal/payments"
	"github.com/haasonsaas/cognis/internal/voice"
	"github.com/haasonsaas/cognis/pkg/models"
)

var errNoResult = errors.New("agent returned no result")

const (
	DefaultChunkSize = 80
	// DefaultRunTimeout bounds one agent turn started from a WebSocket.
	DefaultRunTimeout = 5 * time.Minute
	drainPollInterval = 50 * time.Millisecond
	busPollInterval  = 250 * time.Millisecond
)

// AgentRunner runs one agent turn.
type AgentRunner interface {
	Run(ctx context.Context, userPrompt string, settings agent.Settings, meta agent.RunMetadata) (*models.AgentResult, error)
}

// Bus is the read side of the message bus.
type Bus interface {
	Poll() (models.ChatMessage, bool)
}

// PaymentLedger is the subset of the ledger served over HTTP.
type PaymentLedger interface {
	Policy() (payments.Policy, error)
	UpdatePolicy(p payments.Policy) (payments.Policy, error)
	Summary() (payments.Summary, error)
}

// AuditLog records task events and serves the dashboard.
type AuditLog interface {
	Record(eventType string, attrs map[string]any) error
	Recent(limit int) ([]audit.Event, error)
	Summary() (audit.DashboardSummary, error)
}

// Config holds the listener and WebSocket settings.
type Config struct {
	Host      string
	Port      int
	Workspace string
	// Token, when non-empty, must match the token query parameter on /ws.
	Token     string
	ChunkSize int
	// RunTimeout defaults to DefaultRunTimeout.
	RunTimeout time.Duration
}

// Deps are the collaborators. Any of them may be nil; the routes that need
// a missing one answer 503 and the WebSocket only acks.
type Deps struct {
	Runner      AgentRunner
	Settings    agent.Settings
	Bus         Bus
	Transcriber voice.Transcriber
	Payments    PaymentLedger
	Audit       AuditLog
	Metrics     *observability.Metrics
	Gatherer    prometheus.Gatherer
	Tracer      *observability.Tracer
	Logger      *slog.Logger
}

// Server is the gateway. Create it with New.
type Server struct {
	cfg        Config
	workspace  string
	uploadsDir string
	tempDir    string

	runner      AgentRunner
	settings    atomic.Pointer[agent.Settings]
	bus         Bus
	transcriber voice.Transcriber
	payments    PaymentLedger
	audit       AuditLog
	metrics     *observability.Metrics
	gatherer    prometheus.Gatherer
	tracer      *observability.Tracer
	logger      *slog.Logger

	clientsMu sync.RWMutex
	clients   map[string]*wsSession
	inflight  atomic.Int64

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func New(cfg Config, deps Deps) *Server {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	workspace, err := filepath.Abs(cfg.Workspace)
	if err != nil {
		workspace = filepath.Clean(cfg.Workspace)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	transcriber := deps.Transcriber
	if transcriber == nil {
		transcriber = voice.Noop{}
	}
	s := &Server{
		cfg:         cfg,
		workspace:   workspace,
		uploadsDir:  filepath.Join(workspace, "uploads"),
		tempDir:     filepath.Join(workspace, ".cognis", "tmp"),
		runner:      deps.Runner,
		bus:         deps.Bus,
		transcriber: transcriber,
		payments:    deps.Payments,
		audit:       deps.Audit,
		metrics:     deps.Metrics,
		gatherer:    deps.Gatherer,
		tracer:      deps.Tracer,
		logger:      logger.With("component", "gateway"),
		clients:     make(map[string]*wsSession),
	}
	s.SetSettings(deps.Settings)
	return s
}

// SetSettings replaces the agent settings used for subsequent turns.
func (s *Server) SetSettings(settings agent.Settings) {
	settings = settings.Normalized()
	s.settings.Store(&settings)
}

// Settings returns the current agent settings.
func (s *Server) Settings() agent.Settings {
	return *s.settings.Load()
}

// Start listens on the configured address, serves in the background and
// starts the bus pump. Port 0 picks a free port; see Addr.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return errors.New("gateway already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.httpServer = server
	s.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
	s.startPumpLocked(ctx)

	s.logger.Info("gateway listening", "addr", listener.Addr().String())
	return nil
}

// StartPump starts only the bus pump, for servers mounted elsewhere.
func (s *Server) StartPump(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startPumpLocked(ctx)
}

func (s *Server) startPumpLocked(ctx context.Context) {
	if s.cancel != nil || s.bus == nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pumpBus(ctx)
	}()
}

// Addr is the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the pump, closes every WebSocket, waits for in-flight agent
// turns and drains HTTP requests. ctx bounds the whole wait.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	server := s.httpServer
	s.cancel = nil
	s.httpServer = nil
	s.listener = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.clientsMu.Lock()
	sessions := make([]*wsSession, 0, len(s.clients))
	for _, session := range s.clients {
		sessions = append(sessions, session)
	}
	s.clientsMu.Unlock()
	for _, session := range sessions {
		session.close()
	}
	if err := s.waitForRuns(ctx); err != nil {
		return err
	}

	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// waitForRuns blocks until no agent turn is running or ctx ends.
func (s *Server) waitForRuns(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for s.inflight.Load() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for agent runs: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// pumpBus broadcasts every pending bus message to all clients, then sleeps.
func (s *Server) pumpBus(ctx context.Context) {
	ticker := time.NewTicker(busPollInterval)
	defer ticker.Stop()
	for {
		for {
			msg, ok := s.bus.Poll()
			if !ok {
				break
			}
			s.broadcast(msg)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) recordEvent(eventType string, attrs map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(eventType, attrs); err != nil {
		s.logger.Debug("audit record failed", "type", eventType, "error", err)
	}
}
