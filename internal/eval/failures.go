package eval

import (
	"sort"
	"strings"

	"github.com/haasonsaas/ragbench/pkg/models"
)

const unknownFailure = "unknown"

// FailureModes counts failed traces by the text before the first colon of
// their error message.
func FailureModes(traces []models.QueryTrace) map[string]int {
	modes := make(map[string]int)
	for _, tr := range traces {
		if !tr.Failed() {
			continue
		}
		modes[failureMode(tr.Error)]++
	}
	return modes
}

func failureMode(msg string) string {
	head, _, _ := strings.Cut(msg, ":")
	head = strings.TrimSpace(head)
	if head == "" {
		return unknownFailure
	}
	return head
}

// FailureMode is one histogram bucket.
type FailureMode struct {
	Mode  string
	Count int
}

// SortedFailureModes orders buckets by descending count, then name.
func SortedFailureModes(modes map[string]int) []FailureMode {
	out := make([]FailureMode, 0, len(modes))
	for mode, count := range modes {
		out = append(out, FailureMode{Mode: mode, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Mode < out[j].Mode
	})
	return out
}
