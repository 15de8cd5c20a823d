package routing

import "github.com/haasonsaas/ragbench/pkg/models"

// Signal is the keyword set that votes for a query type. Keywords are
// lowercase and matched as substrings.
type Signal struct {
	Type     models.QueryType
	Keywords []string
}

// DefaultSignals returns the built-in signal table in tie-break order.
func DefaultSignals() []Signal {
	return []Signal{
		{
			Type: models.QueryTypeTechnical,
			Keywords: []string{
				"error", "bug", "code", "function", "api", "config",
				"install", "deploy", "build", "debug", "stack trace", "compile",
			},
		},
		{
			Type: models.QueryTypeProject,
			Keywords: []string{
				"project", "milestone", "deadline", "roadmap", "status",
				"sprint", "owner", "timeline", "deliverable",
			},
		},
		{
			Type: models.QueryTypeResearch,
			Keywords: []string{
				"research", "compare", "explore", "why", "paper",
				"theory", "learn", "concept", "tradeoff",
			},
		},
		{
			Type: models.QueryTypeMaintenance,
			Keywords: []string{
				"cleanup", "clean up", "stale", "outdated", "archive",
				"duplicate", "orphan", "broken link", "tidy",
			},
		},
	}
}
