package providers

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/haasonsaas/cognis/internal/agent"
)

// ErrUnknownProvider is returned when an explicitly requested provider is
// not registered.
var ErrUnknownProvider = errors.New("unknown provider")

// Registry maps normalized provider names to providers. Names match
// case-insensitively and treat '-' and '_' alike. Re-registering a name
// replaces the earlier provider.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]agent.LLMProvider
}

func NewRegistry() *Registry {
	return &Registry{providers: map[string]agent.LLMProvider{}}
}

// NormalizeName lower-cases name and maps '-' to '_'.
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
}

func (r *Registry) Register(p agent.LLMProvider) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[NormalizeName(p.Name())] = p
}

func (r *Registry) Find(name string) (agent.LLMProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[NormalizeName(name)]
	return p, ok
}

// Names lists registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Router resolves the provider for a run from an explicit name or a model
// hint.
type Router struct {
	registry *Registry
}

func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// Resolve implements agent.ProviderResolver. An explicit preferred name
// must be registered. Otherwise the model hint picks the slot:
//
//	bedrock/...      bedrock
//	*codex*          openai_codex
//	*copilot*/github github_copilot
//	*claude*         anthropic
//	*gpt*, openai/   openai
//	anything else    openrouter
func (r *Router) Resolve(preferred, model string) (agent.LLMProvider, error) {
	if strings.TrimSpace(preferred) != "" {
		p, ok := r.registry.Find(preferred)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, preferred)
		}
		return p, nil
	}
	name := RouteModel(model)
	p, ok := r.registry.Find(name)
	if !ok {
		return nil, fmt.Errorf("provider %s is not registered", name)
	}
	return p, nil
}

// RouteModel returns the provider slot a model hint maps to.
func RouteModel(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "bedrock/"):
		return "bedrock"
	case strings.Contains(m, "codex"):
		return "openai_codex"
	case strings.Contains(m, "copilot"), strings.Contains(m, "github"):
		return "github_copilot"
	case strings.Contains(m, "claude"):
		return "anthropic"
	case strings.Contains(m, "gpt"), strings.HasPrefix(m, "openai/"):
		return "openai"
	default:
		return "openrouter"
	}
}

// FallbackChains lists, per routed slot, the members of its fallback chain.
var FallbackChains = map[string][]string{
	"openrouter":     {"openrouter", "openai", "anthropic"},
	"openai":         {"openai", "openrouter", "anthropic"},
	"anthropic":      {"anthropic", "openrouter", "openai"},
	"openai_codex":   {"openai_codex", "openai", "openrouter", "anthropic"},
	"github_copilot": {"github_copilot", "openai", "openrouter", "anthropic"},
	"bedrock":        {"bedrock", "openrouter", "openai", "anthropic"},
}

// BuildFallbackRegistry wraps the concrete slots in base into the fallback
// chains above and registers them, plus any slot without a chain, in a new
// registry. Missing members are skipped.
func BuildFallbackRegistry(base map[string]agent.LLMProvider, logger *slog.Logger) *Registry {
	reg := NewRegistry()
	for name, p := range base {
		if _, chained := FallbackChains[NormalizeName(name)]; !chained {
			reg.Register(p)
		}
	}
	for name, members := range FallbackChains {
		var chain []agent.LLMProvider
		for _, member := range members {
			if p, ok := lookup(base, member); ok {
				chain = append(chain, p)
			}
		}
		if len(chain) > 0 {
			reg.Register(NewFallbackProvider(name, chain, logger))
		}
	}
	return reg
}

func lookup(base map[string]agent.LLMProvider, name string) (agent.LLMProvider, bool) {
	for k, p := range base {
		if NormalizeName(k) == name {
			return p, true
		}
	}
	return nil, false
}
