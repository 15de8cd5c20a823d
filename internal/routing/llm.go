package routing

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/ragbench/internal/observability"
	"github.com/haasonsaas/ragbench/pkg/models"
)

const (
	// llmConfidence is the confidence assigned to LLM-labelled decisions.
	llmConfidence     = 0.6
	defaultLLMTokens  = 16
	classifierSysText = "You label note-retrieval queries. Reply with exactly one word: " +
		"technical, project, research or maintenance."
)

// Completer sends a single-turn prompt to an LLM and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error)
}

// LLMClassifier keeps the keyword fast path and asks an LLM to label
// queries that match no signal. Decisions keep the router's shape:
// UsedFastPath stays false for LLM labels.
type LLMClassifier struct {
	router    *Router
	completer Completer
	logger    *observability.Logger
}

var _ Classifier = (*LLMClassifier)(nil)

// NewLLMClassifier wraps router with an LLM for zero-signal queries.
func NewLLMClassifier(router *Router, completer Completer, logger *observability.Logger) (*LLMClassifier, error) {
	if router == nil {
		return nil, fmt.Errorf("routing: router is nil")
	}
	if completer == nil {
		return nil, fmt.Errorf("routing: completer is nil")
	}
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{Level: "info"})
	}
	return &LLMClassifier{
		router:    router,
		completer: completer,
		logger:    logger.WithFields("component", "llm-classifier"),
	}, nil
}

// Decide returns the fast-path decision when a signal matched, and the
// LLM label otherwise. LLM failures keep the heuristic decision.
func (c *LLMClassifier) Decide(ctx context.Context, query string) models.RouterDecision {
	decision := c.router.Classify(query)
	if decision.UsedFastPath || strings.TrimSpace(query) == "" {
		return decision
	}

	prompt := fmt.Sprintf("Query:\n%s\n\nLabel:", query)
	text, err := c.completer.Complete(ctx, classifierSysText, prompt, defaultLLMTokens)
	if err != nil {
		c.logger.Warn(ctx, "llm classification failed, keeping heuristic decision", "error", err)
		return decision
	}
	t, err := parseLabel(text)
	if err != nil {
		c.logger.Warn(ctx, "llm returned unusable label", "label", text, "error", err)
		return decision
	}
	return c.router.decide(t, llmConfidence, false)
}

func parseLabel(text string) (models.QueryType, error) {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r < 'a' || r > 'z'
	})
	for _, f := range fields {
		if t, err := models.ParseQueryType(f); err == nil {
			return t, nil
		}
	}
	return "", fmt.Errorf("no query type in %q", text)
}
