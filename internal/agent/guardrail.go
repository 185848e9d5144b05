package agent

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// GuardrailMessage replaces an unverified external-action claim.
	GuardrailMessage = "I could not verify execution of that external action yet. " +
		"I need to run the relevant tool first and confirm its result before I can say it was sent/completed."

	guardrailRetryNote = "External actions must be executed via tools before confirmation. " +
		"If the user asked to send/pay/order/call, call the required tool now."
)

var externalActionIntents = []string{
	"send a text", "text my", "sms", "send message", "message my",
	"call ", "pay ", "purchase ", "buy ", "order ", "book ", "request ride", "uber", "lyft", "twilio",
}

var completionClaims = []string{
	"text sent", "message sent", "sent to", "done", "i sent", "i've sent", "completed", "payment sent", "order placed",
}

// needsToolVerification reports whether an assistant reply claims an external
// action that the run never executed a tool for.
func needsToolVerification(userPrompt, content string, executedTool bool) bool {
	if executedTool {
		return false
	}
	prompt := normalizeGuardText(userPrompt)
	reply := normalizeGuardText(content)
	if prompt == "" || reply == "" {
		return false
	}
	return containsAny(prompt, externalActionIntents) && containsAny(reply, completionClaims)
}

// A Caser must not be shared between goroutines.
func normalizeGuardText(s string) string {
	return strings.TrimSpace(cases.Lower(language.Und).String(s))
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}
