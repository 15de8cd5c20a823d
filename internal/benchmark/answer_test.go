package benchmark

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractEvidence(t *testing.T) {
	tests := []struct {
		name     string
		reported []string
		answer   string
		want     []string
	}{
		{
			name:   "wikilinks only",
			answer: "See [[deploy-guide]] and [[runbooks/rollback|the rollback doc]].",
			want:   []string{"deploy-guide", "runbooks/rollback"},
		},
		{
			name:     "reported first and deduplicated",
			reported: []string{"ci", " deploy-guide "},
			answer:   "Per [[deploy-guide#Steps]] and [[ci]] and [[new]]",
			want:     []string{"ci", "deploy-guide", "new"},
		},
		{
			name:   "no citations",
			answer: "I could not find anything [[ ]].",
			want:   []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, extractEvidence(tt.reported, tt.answer)); diff != "" {
				t.Errorf("extractEvidence() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHasNextStep(t *testing.T) {
	tests := []struct {
		answer   string
		expected string
		want     bool
	}{
		{answer: "The Next Step is to rebuild.", want: true},
		{answer: "Next steps: archive it.", want: true},
		{answer: "I recommend pruning old notes.", want: true},
		{answer: "Ping the owner about it.", expected: "ping the OWNER", want: true},
		{answer: "Done.", expected: "ping the owner", want: false},
		{answer: "Done.", expected: "  ", want: false},
	}
	for _, tt := range tests {
		if got := hasNextStep(tt.answer, tt.expected); got != tt.want {
			t.Errorf("hasNextStep(%q, %q) = %v, want %v", tt.answer, tt.expected, got, tt.want)
		}
	}
}
