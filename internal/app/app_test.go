package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/haasonsaas/cognis/internal/agent"
	"github.com/haasonsaas/cognis/internal/agent/providers"
	"github.com/haasonsaas/cognis/internal/config"
	"github.com/haasonsaas/cognis/internal/cron"
	"github.com/haasonsaas/cognis/internal/sessions"
	"github.com/haasonsaas/cognis/internal/voice"
)

func fileBackend(key string) string {
	if key == sessions.EnvBackend {
		return sessions.BackendFile
	}
	return ""
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	if cfg == nil {
		cfg = config.Defaults()
	}
	a, err := New(context.Background(), cfg, Options{
		ConfigPath: t.TempDir() + "/config.json",
		Workspace:  t.TempDir(),
		Getenv:     fileBackend,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestNewWiresTools(t *testing.T) {
	a := newTestApp(t, nil)

	want := []string{"cron", "filesystem", "mcp", "memory", "message", "notify", "payments", "profile", "workflow"}
	got := a.Tools.Names()
	for _, name := range want {
		if !slices.Contains(got, name) {
			t.Errorf("tool %q not registered (have %v)", name, got)
		}
	}
	if slices.Contains(got, "view_image") {
		t.Error("view_image registered without a vision-capable provider")
	}
	if a.ConversationBackend != sessions.BackendFile {
		t.Errorf("backend = %q", a.ConversationBackend)
	}
	if _, ok := a.Transcriber.(voice.Noop); !ok {
		t.Errorf("transcriber = %T, want voice.Noop", a.Transcriber)
	}
}

func TestVisionFollowsProviders(t *testing.T) {
	tests := []struct {
		name      string
		configure func(*config.Config)
		wantModel string
		wantBase  string
		wantOK    bool
	}{
		{"none", func(*config.Config) {}, "", "", false},
		{"openai", func(c *config.Config) { c.Providers.OpenAI.APIKey = "sk-a" }, "gpt-4o", OpenAIBase, true},
		{"openrouter", func(c *config.Config) { c.Providers.OpenRouter.APIKey = "sk-b" }, "openai/gpt-4o", OpenRouterBase, true},
		{"openrouter custom base", func(c *config.Config) {
			c.Providers.OpenRouter.APIKey = "sk-b"
			c.Providers.OpenRouter.APIBase = "http://proxy.local/v1"
		}, "openai/gpt-4o", "http://proxy.local/v1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			tt.configure(cfg)
			got, ok := visionConfig(cfg)
			if ok != tt.wantOK || got.Model != tt.wantModel || got.APIBase != tt.wantBase {
				t.Fatalf("visionConfig = %+v, %v", got, ok)
			}
		})
	}
}

func TestBuildProvidersDisablesUnconfiguredSlots(t *testing.T) {
	cfg := config.Defaults()
	cfg.Providers.OpenAI.APIKey = "sk-test"
	base := buildProviders(context.Background(), cfg, slog.Default())

	for _, slot := range config.Slots() {
		if _, ok := base[slot]; !ok {
			t.Errorf("slot %s missing", slot)
		}
	}
	if _, ok := base[config.SlotOpenAI].(*providers.OpenAICompatProvider); !ok {
		t.Errorf("openai = %T", base[config.SlotOpenAI])
	}
	disabled, ok := base[config.SlotAnthropic].(*providers.DisabledProvider)
	if !ok || disabled.Reason() != "missing API key" {
		t.Fatalf("anthropic = %T", base[config.SlotAnthropic])
	}
	if _, ok := base[config.SlotBedrock].(*providers.DisabledProvider); !ok {
		t.Errorf("bedrock = %T", base[config.SlotBedrock])
	}
	resp := disabled.Chat(context.Background(), "m", nil, nil)
	if !strings.HasPrefix(resp.Content, agent.ErrorPrefix) || len(resp.ToolCalls) != 0 {
		t.Fatalf("disabled reply = %+v", resp)
	}
}

func TestAskWithEchoProvider(t *testing.T) {
	a := newTestApp(t, nil)
	result, err := a.Ask(context.Background(), "hello there", "echo", "")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if result.Content != "[echo] hello there" {
		t.Fatalf("content = %q", result.Content)
	}
	turns, err := a.Conversations.List(context.Background())
	if err != nil || len(turns) != 1 {
		t.Fatalf("turns = %d, %v", len(turns), err)
	}

	if _, err := a.Ask(context.Background(), "x", "nope", ""); err == nil {
		t.Fatal("unknown provider should fail")
	}
}

func TestDailyDigestSeededOnce(t *testing.T) {
	a := newTestApp(t, nil)
	again, err := New(context.Background(), a.Config, Options{Workspace: a.Workspace, Getenv: fileBackend})
	if err != nil {
		t.Fatal(err)
	}
	defer again.Close(context.Background())

	jobs, err := again.Cron.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].Name != cron.DailyDigestName || jobs[0].EverySeconds != cron.DailyDigestSeconds {
		t.Fatalf("jobs = %+v", jobs)
	}
	if st := again.Status(false); st.CronJobs != 1 || st.ConversationBackend != sessions.BackendFile {
		t.Fatalf("status = %+v", st)
	}
}

func TestHandleCronJobPublishes(t *testing.T) {
	a := newTestApp(t, nil)
	a.HandleCronJob(context.Background(), cron.Job{Name: "ping", Message: "Stand up and stretch"})

	msg, ok := a.Bus.Poll()
	if !ok || msg.Content != "Stand up and stretch" {
		t.Fatalf("bus message = %+v, %v", msg, ok)
	}
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Agents.Defaults.Provider = "anthropic"
	cfg.Agents.Defaults.MaxToolIterations = 0

	s := Settings(cfg)
	if s.Provider != "anthropic" || s.MaxToolIterations != 20 || s.SystemPrompt != SystemPrompt {
		t.Fatalf("settings = %+v", s)
	}
}

func TestGatewayServesMetrics(t *testing.T) {
	a := newTestApp(t, nil)
	srv := a.NewGateway(0)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("metrics missing runtime collectors:\n%.300s", body)
	}
	if srv.Settings().Model != config.Defaults().Agents.Defaults.Model {
		t.Fatalf("gateway settings = %+v", srv.Settings())
	}
}
