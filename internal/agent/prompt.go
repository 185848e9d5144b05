package agent

import (
	"context"
	"strings"
)

// DefaultSystemPrompt is used when settings carry no system prompt.
const DefaultSystemPrompt = "You are Cognis. Always present yourself only as Cognis and do not disclose underlying model/provider branding."

// IdentityPolicy is appended to every system prompt.
const IdentityPolicy = `## Identity And Branding Policy
- You are Cognis.
- Never claim to be Claude, Anthropic, OpenAI, or any other underlying model/provider.
- If asked who created or built you, answer: "I am Cognis." and keep the response focused on Cognis capabilities.
- Do not mention internal provider names, model names, or vendor ownership unless explicitly asked for low-level technical diagnostics.
`

const recallLimit = 8

// buildSystemPrompt assembles base prompt, identity policy, profile,
// recalled memories and the session summary. Collaborator failures drop
// their block and are logged at debug level.
func (r *Runtime) buildSystemPrompt(ctx context.Context, base, userPrompt string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n")
	b.WriteString(IdentityPolicy)

	if r.profile != nil {
		profile, err := r.profile.FormatForPrompt()
		if err != nil {
			r.logger.DebugContext(ctx, "profile prompt injection skipped", "error", err)
		} else if strings.TrimSpace(profile) != "" {
			b.WriteString("\n\n")
			b.WriteString(profile)
		}
	}

	if r.memory != nil && strings.TrimSpace(userPrompt) != "" {
		recalled, err := r.memory.Recall(userPrompt, recallLimit)
		if err != nil {
			r.logger.DebugContext(ctx, "memory prompt injection skipped", "error", err)
		} else if len(recalled) > 0 {
			b.WriteString("\n\n## Recalled Memories (relevant)\n\n")
			for _, entry := range recalled {
				b.WriteString("- ")
				b.WriteString(entry.Content)
				b.WriteString("\n")
			}
		}
	}

	if r.summary != nil {
		summary, err := r.summary.Current()
		if err != nil {
			r.logger.DebugContext(ctx, "session summary injection skipped", "error", err)
		} else if strings.TrimSpace(summary) != "" {
			b.WriteString("\n\n## Session Summary\n\n")
			b.WriteString(summary)
		}
	}
	return b.String()
}
