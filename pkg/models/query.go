// Package models defines the core data types for ragbench.
package models

import (
	"fmt"
	"strings"
)

// QueryType is the coarse category of a query. It selects the retrieval
// weighting used to answer it.
type QueryType string

const (
	// QueryTypeTechnical covers code, APIs, errors and configuration.
	QueryTypeTechnical QueryType = "technical"
	// QueryTypeProject covers project status, milestones and ownership.
	QueryTypeProject QueryType = "project"
	// QueryTypeResearch covers open-ended exploration and comparison.
	QueryTypeResearch QueryType = "research"
	// QueryTypeMaintenance covers cleanup, stale notes and upkeep.
	QueryTypeMaintenance QueryType = "maintenance"
)

// QueryTypes lists every query type in declaration order. Router tie-breaks
// follow this order.
var QueryTypes = []QueryType{
	QueryTypeTechnical,
	QueryTypeProject,
	QueryTypeResearch,
	QueryTypeMaintenance,
}

// ParseQueryType converts a string into a QueryType.
func ParseQueryType(s string) (QueryType, error) {
	t := QueryType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown query type %q", s)
	}
	return t, nil
}

// Valid reports whether t is one of the declared query types.
func (t QueryType) Valid() bool {
	switch t {
	case QueryTypeTechnical, QueryTypeProject, QueryTypeResearch, QueryTypeMaintenance:
		return true
	}
	return false
}

// UnmarshalText rejects unknown query types at decode time.
func (t *QueryType) UnmarshalText(text []byte) error {
	parsed, err := ParseQueryType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Difficulty is the author-assigned difficulty of a golden query.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// UnmarshalText rejects unknown difficulty levels at decode time.
func (d *Difficulty) UnmarshalText(text []byte) error {
	v := Difficulty(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		*d = v
		return nil
	}
	return fmt.Errorf("unknown difficulty %q", string(text))
}

// ConfidenceLevel is the confidence a correct answer is expected to carry.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Target returns the numeric confidence target used for calibration.
func (c ConfidenceLevel) Target() float64 {
	switch c {
	case ConfidenceHigh:
		return 0.9
	case ConfidenceMedium:
		return 0.6
	case ConfidenceLow:
		return 0.3
	}
	return 0
}

// UnmarshalText rejects unknown confidence levels at decode time.
func (c *ConfidenceLevel) UnmarshalText(text []byte) error {
	v := ConfidenceLevel(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		*c = v
		return nil
	}
	return fmt.Errorf("unknown confidence level %q", string(text))
}

// GoldenQuery is one entry of the evaluation dataset. It is never modified
// after loading.
type GoldenQuery struct {
	ID                 string          `json:"id" yaml:"id"`
	Query              string          `json:"query" yaml:"query"`
	Type               QueryType       `json:"type" yaml:"type"`
	Difficulty         Difficulty      `json:"difficulty" yaml:"difficulty"`
	ExpectedNotes      []string        `json:"expected_notes" yaml:"expected_notes"`
	ExpectedConfidence ConfidenceLevel `json:"expected_confidence" yaml:"expected_confidence"`
	ExpectedNextStep   string          `json:"expected_next_step" yaml:"expected_next_step"`
}

// RouterDecision is the routing outcome for a single query.
type RouterDecision struct {
	QueryType           QueryType `json:"query_type"`
	RecommendedStrategy string    `json:"recommended_strategy"`
	Confidence          float64   `json:"confidence"`
	// UsedFastPath is true when at least one classification signal matched.
	UsedFastPath bool `json:"used_fast_path"`
}

// StrategyWeights is the keyword/semantic/graph mix of a retrieval strategy.
// The weights of a strategy sum to 1.0.
type StrategyWeights struct {
	Keyword  float64 `json:"keyword"`
	Semantic float64 `json:"semantic"`
	Graph    float64 `json:"graph"`
}

// Sum returns the total weight.
func (w StrategyWeights) Sum() float64 {
	return w.Keyword + w.Semantic + w.Graph
}
