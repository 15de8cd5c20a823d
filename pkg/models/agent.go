package models

// AgentRequest is what the benchmark sends to the agent under test.
type AgentRequest struct {
	QueryID   string          `json:"query_id"`
	Query     string          `json:"query"`
	QueryType QueryType       `json:"query_type"`
	Strategy  string          `json:"strategy"`
	Weights   StrategyWeights `json:"weights"`
	// Embedding is omitted when no embedding provider is configured.
	Embedding []float32 `json:"embedding,omitempty"`
}

// AgentResponse is the agent's answer to an AgentRequest.
type AgentResponse struct {
	Answer         string   `json:"answer" yaml:"answer"`
	RetrievedNotes []string `json:"retrieved_notes" yaml:"retrieved_notes"`
	Evidence       []string `json:"evidence" yaml:"evidence"`
	ToolsUsed      []string `json:"tools_used" yaml:"tools_used"`
	// Confidence is the agent's self-reported confidence. When nil the
	// router's confidence is recorded instead.
	Confidence *float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	DurationMs int64    `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
}
