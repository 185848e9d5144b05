package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/haasonsaas/cognis/internal/agent"
	"github.com/haasonsaas/cognis/internal/agent/providers"
	"github.com/haasonsaas/cognis/internal/config"
	"github.com/haasonsaas/cognis/internal/voice"
)

// Default API roots per slot when apiBase is blank.
const (
	OpenRouterBase    = "https://openrouter.ai/api/v1"
	OpenAIBase        = "https://api.openai.com/v1"
	GitHubCopilotBase = "https://api.githubcopilot.com"
)

const missingKey = "missing API key"

// buildProviders returns one concrete provider per slot plus the offline
// echo provider. Unconfigured slots are disabled so fallback chains skip
// them in a fixed order.
func buildProviders(ctx context.Context, cfg *config.Config, logger *slog.Logger) map[string]agent.LLMProvider {
	p := cfg.Providers
	out := map[string]agent.LLMProvider{
		config.SlotOpenRouter:    openAICompat(config.SlotOpenRouter, p.OpenRouter, OpenRouterBase),
		config.SlotOpenAI:        openAICompat(config.SlotOpenAI, p.OpenAI, OpenAIBase),
		config.SlotGitHubCopilot: openAICompat(config.SlotGitHubCopilot, p.GitHubCopilot, GitHubCopilotBase),
		config.SlotBedrockOpenAI: openAICompat(config.SlotBedrockOpenAI, p.BedrockOpenAI, ""),
		"echo":                   providers.NewEchoProvider("echo"),
	}

	if p.Anthropic.Configured() {
		out[config.SlotAnthropic] = providers.NewAnthropicProvider(providers.AnthropicConfig{
			Name:      config.SlotAnthropic,
			APIKey:    p.Anthropic.APIKey,
			APIBase:   p.Anthropic.APIBase,
			MaxTokens: cfg.Agents.Defaults.MaxTokens,
		})
	} else {
		out[config.SlotAnthropic] = providers.NewDisabledProvider(config.SlotAnthropic, missingKey)
	}

	if p.OpenAICodex.Configured() {
		out[config.SlotOpenAICodex] = providers.NewCodexProvider(providers.CodexConfig{
			Name:        config.SlotOpenAICodex,
			AccessToken: p.OpenAICodex.APIKey,
			AccountID:   p.OpenAICodex.AccountID,
			Endpoint:    p.OpenAICodex.APIBase,
		})
	} else {
		out[config.SlotOpenAICodex] = providers.NewDisabledProvider(config.SlotOpenAICodex, missingKey)
	}

	out[config.SlotBedrock] = bedrock(ctx, p.Bedrock, logger)
	return out
}

func openAICompat(name string, pc config.ProviderConfig, defaultBase string) agent.LLMProvider {
	if !pc.Configured() {
		return providers.NewDisabledProvider(name, missingKey)
	}
	base := strings.TrimSpace(pc.APIBase)
	if base == "" {
		base = defaultBase
	}
	return providers.NewOpenAICompatProvider(providers.OpenAICompatConfig{
		Name:         name,
		APIKey:       pc.APIKey,
		APIBase:      base,
		ExtraHeaders: pc.ExtraHeaders,
	})
}

func bedrock(ctx context.Context, pc config.ProviderConfig, logger *slog.Logger) agent.LLMProvider {
	if !pc.ConfiguredForBedrock() {
		return providers.NewDisabledProvider(config.SlotBedrock, "missing AWS region or credentials")
	}
	p, err := providers.NewBedrockProvider(ctx, providers.BedrockConfig{
		Name:            config.SlotBedrock,
		Region:          pc.Region,
		APIBase:         pc.APIBase,
		AccessKeyID:     pc.AccessKeyID,
		SecretAccessKey: pc.SecretAccessKey,
		SessionToken:    pc.SessionToken,
		Profile:         pc.Profile,
	})
	if err != nil {
		logger.Warn("bedrock provider disabled", "error", err)
		return providers.NewDisabledProvider(config.SlotBedrock, err.Error())
	}
	return p
}

// buildTranscriber uses Whisper when the openai slot has a key.
func buildTranscriber(cfg *config.Config) voice.Transcriber {
	openai := cfg.Providers.OpenAI
	if !openai.Configured() {
		return voice.Noop{}
	}
	base := strings.TrimSpace(openai.APIBase)
	if base == "" {
		base = OpenAIBase
	}
	return voice.NewOpenAITranscriber(voice.OpenAIConfig{APIKey: openai.APIKey, APIBase: base})
}
