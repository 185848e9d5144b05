package app

import (
	"strings"

	"github.com/haasonsaas/cognis/internal/agent"
	"github.com/haasonsaas/cognis/internal/config"
	crontool "github.com/haasonsaas/cognis/internal/tools/cron"
	"github.com/haasonsaas/cognis/internal/tools/files"
	mcptool "github.com/haasonsaas/cognis/internal/tools/mcp"
	memorytool "github.com/haasonsaas/cognis/internal/tools/memory"
	"github.com/haasonsaas/cognis/internal/tools/message"
	paymentstool "github.com/haasonsaas/cognis/internal/tools/payments"
	profiletool "github.com/haasonsaas/cognis/internal/tools/profile"
	"github.com/haasonsaas/cognis/internal/tools/reminders"
	"github.com/haasonsaas/cognis/internal/tools/vision"
	workflowtool "github.com/haasonsaas/cognis/internal/tools/workflow"
)

func (a *App) buildTools() *agent.ToolRegistry {
	reg := agent.NewToolRegistry()
	reg.Register(files.NewTool())
	reg.Register(memorytool.NewTool(a.Memory))
	reg.Register(profiletool.NewTool(a.Profile))
	reg.Register(crontool.NewTool(a.Cron))
	reg.Register(reminders.NewNotifyTool(a.Bus, a.Cron))
	reg.Register(message.NewTool(a.Bus))
	reg.Register(paymentstool.NewTool(a.Payments))
	reg.Register(workflowtool.NewTool(a.Workflow, a.Cron))
	reg.Register(mcptool.NewTool(a.MCP))
	if cfg, ok := visionConfig(a.Config); ok {
		reg.Register(vision.NewTool(cfg))
	}
	return reg
}

// visionConfig prefers the openai slot, then openrouter. Without either
// view_image is not registered.
func visionConfig(cfg *config.Config) (vision.Config, bool) {
	pick := func(pc config.ProviderConfig, defaultBase, model string) vision.Config {
		base := strings.TrimSpace(pc.APIBase)
		if base == "" {
			base = defaultBase
		}
		return vision.Config{APIKey: pc.APIKey, APIBase: base, Model: model}
	}
	switch {
	case cfg.Providers.OpenAI.Configured():
		return pick(cfg.Providers.OpenAI, OpenAIBase, vision.DefaultModel), true
	case cfg.Providers.OpenRouter.Configured():
		return pick(cfg.Providers.OpenRouter, OpenRouterBase, "openai/"+vision.DefaultModel), true
	}
	return vision.Config{}, false
}
