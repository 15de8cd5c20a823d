package models

import "encoding/json"

// Fallback reasons recorded on a trace.
const (
	FallbackNone          = ""
	FallbackLowConfidence = "low_confidence"
	FallbackZeroResults   = "zero_results"
)

// QueryTrace records how a single golden query was executed. Every field is
// always serialized; absent values use empty strings and empty lists.
type QueryTrace struct {
	ID         string     `json:"id"`
	Query      string     `json:"query"`
	Type       QueryType  `json:"type"`
	Difficulty Difficulty `json:"difficulty"`

	// RoutedType is the type chosen by the router, which may differ from Type.
	RoutedType   QueryType `json:"routed_type"`
	Strategy     string    `json:"strategy"`
	UsedFastPath bool      `json:"used_fast_path"`

	ToolsUsed      []string `json:"tools_used"`
	RetrievedNotes []string `json:"retrieved_notes"`
	Answer         string   `json:"answer"`
	Evidence       []string `json:"evidence"`
	Confidence     float64  `json:"confidence"`
	HasNextStep    bool     `json:"has_next_step"`

	ExecutionTimeMs   int64  `json:"execution_time_ms"`
	FallbackTriggered bool   `json:"fallback_triggered"`
	FallbackReason    string `json:"fallback_reason"`

	// Error is empty on success.
	Error string `json:"error"`
}

// NewTrace starts a trace for q with empty collections.
func NewTrace(q GoldenQuery) QueryTrace {
	return QueryTrace{
		ID:             q.ID,
		Query:          q.Query,
		Type:           q.Type,
		Difficulty:     q.Difficulty,
		ToolsUsed:      []string{},
		RetrievedNotes: []string{},
		Evidence:       []string{},
	}
}

// Failed reports whether the trace carries an error.
func (t QueryTrace) Failed() bool {
	return t.Error != ""
}

// MarshalJSON writes nil lists as [] so the wire shape never varies.
func (t QueryTrace) MarshalJSON() ([]byte, error) {
	type plain QueryTrace
	out := plain(t)
	if out.ToolsUsed == nil {
		out.ToolsUsed = []string{}
	}
	if out.RetrievedNotes == nil {
		out.RetrievedNotes = []string{}
	}
	if out.Evidence == nil {
		out.Evidence = []string{}
	}
	return json.Marshal(out)
}
