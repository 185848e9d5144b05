// Package config loads ~/.cognis/config.json (or .json5/.yaml) onto the
// built-in defaults. Documents are deep-merged onto the serialised defaults,
// so a config file only needs the keys it changes. Unknown keys are ignored.
package config

import "strings"

// Config is the root configuration document.
type Config struct {
	Version       int                 `json:"version" yaml:"version"`
	Agents        AgentsConfig        `json:"agents" yaml:"agents"`
	Providers     ProvidersConfig     `json:"providers" yaml:"providers"`
	Tools         ToolsConfig         `json:"tools" yaml:"tools"`
	Gateway       GatewayConfig       `json:"gateway" yaml:"gateway"`
	MCP           MCPConfig           `json:"mcp" yaml:"mcp"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

type AgentsConfig struct {
	Defaults AgentDefaults `json:"defaults" yaml:"defaults"`
}

// AgentDefaults selects the workspace, provider and model for agent runs.
type AgentDefaults struct {
	Workspace         string  `json:"workspace" yaml:"workspace"`
	Provider          string  `json:"provider" yaml:"provider"`
	Model             string  `json:"model" yaml:"model"`
	MaxTokens         int     `json:"maxTokens" yaml:"maxTokens"`
	Temperature       float64 `json:"temperature" yaml:"temperature"`
	MaxToolIterations int     `json:"maxToolIterations" yaml:"maxToolIterations"`
}

// ProviderConfig holds credentials and endpoint overrides for one slot. The
// AWS fields only matter for the bedrock slot.
type ProviderConfig struct {
	APIKey          string            `json:"apiKey" yaml:"apiKey"`
	APIBase         string            `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	AuthMethod      string            `json:"authMethod,omitempty" yaml:"authMethod,omitempty"`
	AccountID       string            `json:"accountId,omitempty" yaml:"accountId,omitempty"`
	ExtraHeaders    map[string]string `json:"extraHeaders,omitempty" yaml:"extraHeaders,omitempty"`
	Region          string            `json:"region,omitempty" yaml:"region,omitempty"`
	AccessKeyID     string            `json:"accessKeyId,omitempty" yaml:"accessKeyId,omitempty"`
	SecretAccessKey string            `json:"secretAccessKey,omitempty" yaml:"secretAccessKey,omitempty"`
	SessionToken    string            `json:"sessionToken,omitempty" yaml:"sessionToken,omitempty"`
	Profile         string            `json:"profile,omitempty" yaml:"profile,omitempty"`
}

// Configured reports whether the slot has an API key.
func (p ProviderConfig) Configured() bool {
	return strings.TrimSpace(p.APIKey) != ""
}

// ConfiguredForBedrock reports whether AWS credentials can be resolved: a
// region, a named profile, or a static key pair.
func (p ProviderConfig) ConfiguredForBedrock() bool {
	return strings.TrimSpace(p.Region) != "" ||
		strings.TrimSpace(p.Profile) != "" ||
		(strings.TrimSpace(p.AccessKeyID) != "" && strings.TrimSpace(p.SecretAccessKey) != "")
}

type ProvidersConfig struct {
	OpenRouter    ProviderConfig `json:"openrouter" yaml:"openrouter"`
	OpenAI        ProviderConfig `json:"openai" yaml:"openai"`
	Anthropic     ProviderConfig `json:"anthropic" yaml:"anthropic"`
	OpenAICodex   ProviderConfig `json:"openaiCodex" yaml:"openaiCodex"`
	GitHubCopilot ProviderConfig `json:"githubCopilot" yaml:"githubCopilot"`
	Bedrock       ProviderConfig `json:"bedrock" yaml:"bedrock"`
	BedrockOpenAI ProviderConfig `json:"bedrockOpenai" yaml:"bedrockOpenai"`
}

// Provider slot names as used by the router.
const (
	SlotOpenRouter    = "openrouter"
	SlotOpenAI        = "openai"
	SlotAnthropic     = "anthropic"
	SlotOpenAICodex   = "openai_codex"
	SlotGitHubCopilot = "github_copilot"
	SlotBedrock       = "bedrock"
	SlotBedrockOpenAI = "bedrock_openai"
)

// Slots lists every provider slot in a stable order.
func Slots() []string {
	return []string{SlotOpenRouter, SlotOpenAI, SlotAnthropic, SlotOpenAICodex, SlotGitHubCopilot, SlotBedrock, SlotBedrockOpenAI}
}

// Slot returns the configuration for a slot name. Dashes and case are
// ignored, so "openai-codex" finds the codex slot.
func (p ProvidersConfig) Slot(name string) (ProviderConfig, bool) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_") {
	case SlotOpenRouter:
		return p.OpenRouter, true
	case SlotOpenAI:
		return p.OpenAI, true
	case SlotAnthropic:
		return p.Anthropic, true
	case SlotOpenAICodex:
		return p.OpenAICodex, true
	case SlotGitHubCopilot:
		return p.GitHubCopilot, true
	case SlotBedrock:
		return p.Bedrock, true
	case SlotBedrockOpenAI:
		return p.BedrockOpenAI, true
	}
	return ProviderConfig{}, false
}

// ConfiguredSlots lists slots that can serve requests.
func (p ProvidersConfig) ConfiguredSlots() []string {
	var out []string
	for _, name := range Slots() {
		slot, _ := p.Slot(name)
		if slot.Configured() || (name == SlotBedrock && slot.ConfiguredForBedrock()) {
			out = append(out, name)
		}
	}
	return out
}

type ToolsConfig struct {
	Web WebToolsConfig `json:"web" yaml:"web"`
}

type WebToolsConfig struct {
	Search WebSearchConfig `json:"search" yaml:"search"`
}

type WebSearchConfig struct {
	APIKey     string `json:"apiKey" yaml:"apiKey"`
	MaxResults int    `json:"maxResults" yaml:"maxResults"`
}

// GatewayConfig configures the HTTP/WebSocket server.
type GatewayConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	// Token, when set, must match the token query parameter on /ws.
	Token string `json:"token" yaml:"token"`
	// ChunkSize is the text_delta size in characters.
	ChunkSize int `json:"chunkSize" yaml:"chunkSize"`
}

type MCPConfig struct {
	BaseURL string `json:"baseUrl" yaml:"baseUrl"`
}

type ObservabilityConfig struct {
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

type TracingConfig struct {
	Endpoint     string  `json:"endpoint" yaml:"endpoint"`
	SamplingRate float64 `json:"samplingRate" yaml:"samplingRate"`
	Insecure     bool    `json:"insecure" yaml:"insecure"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Version: CurrentVersion,
		Agents: AgentsConfig{Defaults: AgentDefaults{
			Workspace:         "~/.cognis/workspace",
			Provider:          SlotOpenRouter,
			Model:             "anthropic/claude-opus-4-5",
			MaxTokens:         8192,
			Temperature:       0.7,
			MaxToolIterations: 20,
		}},
		Tools: ToolsConfig{Web: WebToolsConfig{Search: WebSearchConfig{MaxResults: 5}}},
		Gateway: GatewayConfig{
			Host:      "0.0.0.0",
			Port:      8787,
			ChunkSize: 80,
		},
		MCP:           MCPConfig{BaseURL: "http://127.0.0.1:8791"},
		Observability: ObservabilityConfig{Metrics: MetricsConfig{Enabled: true}},
	}
}
