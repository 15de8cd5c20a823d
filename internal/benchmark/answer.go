package benchmark

import (
	"regexp"
	"strings"
)

// wikilinkPattern matches [[target]], [[target|alias]] and [[target#heading]].
var wikilinkPattern = regexp.MustCompile(`\[\[([^\[\]|#]+)(?:[|#][^\[\]]*)?\]\]`)

var nextStepMarkers = []string{"next step", "recommend"}

// extractEvidence merges the agent's evidence with wikilink citations found
// in the answer, keeping first-seen order and dropping duplicates.
func extractEvidence(reported []string, answer string) []string {
	seen := make(map[string]struct{}, len(reported))
	out := make([]string, 0, len(reported))
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range reported {
		add(id)
	}
	for _, m := range wikilinkPattern.FindAllStringSubmatch(answer, -1) {
		add(m[1])
	}
	return out
}

// hasNextStep reports whether answer proposes a follow-up action, either
// with a generic marker or by mentioning the expected next step.
func hasNextStep(answer, expected string) bool {
	lower := strings.ToLower(answer)
	for _, marker := range nextStepMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	expected = strings.ToLower(strings.TrimSpace(expected))
	return expected != "" && strings.Contains(lower, expected)
}
