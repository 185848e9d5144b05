package memory

import (
	"regexp"
	"strings"
)

// Candidate is a memory proposed by an extractor.
type Candidate struct {
	Content string
	Tags    []string
}

const maxCandidates = 5

var (
	namePattern       = regexp.MustCompile(`(?i)\bmy name is ([A-Za-z][A-Za-z0-9_' -]{1,40})`)
	locationPattern   = regexp.MustCompile(`(?i)\b(?:i live in|i am in|i'm in|i am from|i'm from) ([A-Za-z][A-Za-z0-9,' -]{1,60})`)
	preferencePattern = regexp.MustCompile(`(?i)\b(?:i prefer|i like|i love) ([^.\n!?]{3,100})`)
	reminderPattern   = regexp.MustCompile(`(?i)\bremind me to ([^.\n!?]{3,120})`)
	sentenceSplit     = regexp.MustCompile(`[.!?\n]+`)
	whitespaceRun     = regexp.MustCompile(`\s+`)
)

var memorySignals = []string{"prefer", "goal", "always", "never", "deadline", "meeting", "timezone", "important"}

// HeuristicExtractor pulls profile facts, preferences, reminders and
// signal sentences out of a user prompt.
type HeuristicExtractor struct{}

func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

type candidateSet struct {
	order []Candidate
	seen  map[string]struct{}
}

func (c *candidateSet) add(cand Candidate) {
	key := strings.ToLower(cand.Content)
	if _, ok := c.seen[key]; ok {
		return
	}
	c.seen[key] = struct{}{}
	c.order = append(c.order, cand)
}

// Extract returns at most five candidates, deduplicated by lower-cased
// content. The assistant response is not inspected.
func (HeuristicExtractor) Extract(prompt, _ string) []Candidate {
	input := strings.TrimSpace(prompt)
	if input == "" {
		return nil
	}
	set := &candidateSet{seen: map[string]struct{}{}}

	addMatches(set, namePattern, input, func(v string) Candidate {
		return Candidate{Content: "User name is " + v, Tags: []string{"profile", "name"}}
	})
	addMatches(set, locationPattern, input, func(v string) Candidate {
		return Candidate{Content: "User location is " + v, Tags: []string{"profile", "location"}}
	})
	addMatches(set, preferencePattern, input, func(v string) Candidate {
		return Candidate{Content: "User preference: " + v, Tags: []string{"preference"}}
	})
	addMatches(set, reminderPattern, input, func(v string) Candidate {
		return Candidate{Content: "User task: " + v, Tags: []string{"task"}}
	})

	for _, part := range sentenceSplit.Split(input, -1) {
		sentence := strings.TrimSpace(part)
		if sentence == "" {
			continue
		}
		n := len([]rune(sentence))
		if n >= 12 && n <= 180 && hasMemorySignal(strings.ToLower(sentence)) {
			set.add(Candidate{Content: sentence, Tags: []string{"fact"}})
		}
		if len(set.order) >= maxCandidates {
			break
		}
	}

	if len(set.order) > maxCandidates {
		return set.order[:maxCandidates]
	}
	return set.order
}

func addMatches(set *candidateSet, re *regexp.Regexp, input string, build func(string) Candidate) {
	for _, m := range re.FindAllStringSubmatch(input, -1) {
		if len(set.order) >= maxCandidates {
			return
		}
		if v := collapseSpace(m[1]); v != "" {
			set.add(build(v))
		}
	}
}

func hasMemorySignal(lowered string) bool {
	for _, s := range memorySignals {
		if strings.Contains(lowered, s) {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
}
