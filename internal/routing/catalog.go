package routing

import "github.com/haasonsaas/ragbench/pkg/models"

// Strategy is a named retrieval weighting.
type Strategy struct {
	Name    string
	Weights models.StrategyWeights
}

// Catalog maps each query type to a retrieval strategy and designates the
// fallback strategy. It is read-only after construction and safe for
// concurrent use.
type Catalog struct {
	Technical   Strategy
	Project     Strategy
	Research    Strategy
	Maintenance Strategy
	Fallback    Strategy
}

// DefaultCatalog returns the built-in strategy table.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Technical: Strategy{
			Name:    "keyword_first",
			Weights: models.StrategyWeights{Keyword: 0.6, Semantic: 0.3, Graph: 0.1},
		},
		Project: Strategy{
			Name:    "graph_expand",
			Weights: models.StrategyWeights{Keyword: 0.2, Semantic: 0.3, Graph: 0.5},
		},
		Research: Strategy{
			Name:    "semantic_first",
			Weights: models.StrategyWeights{Keyword: 0.2, Semantic: 0.6, Graph: 0.2},
		},
		Maintenance: Strategy{
			Name:    "recency_keyword",
			Weights: models.StrategyWeights{Keyword: 0.5, Semantic: 0.2, Graph: 0.3},
		},
		Fallback: Strategy{
			Name:    "hybrid_balanced",
			Weights: models.StrategyWeights{Keyword: 0.4, Semantic: 0.4, Graph: 0.2},
		},
	}
}

// StrategyFor returns the strategy registered for t. Types outside the
// declared set resolve to the fallback.
func (c *Catalog) StrategyFor(t models.QueryType) Strategy {
	switch t {
	case models.QueryTypeTechnical:
		return c.Technical
	case models.QueryTypeProject:
		return c.Project
	case models.QueryTypeResearch:
		return c.Research
	case models.QueryTypeMaintenance:
		return c.Maintenance
	default:
		return c.Fallback
	}
}

// WeightsFor returns the retrieval weights for t.
func (c *Catalog) WeightsFor(t models.QueryType) models.StrategyWeights {
	return c.StrategyFor(t).Weights
}

// Weights looks up a strategy by name.
func (c *Catalog) Weights(name string) (models.StrategyWeights, bool) {
	for _, s := range c.all() {
		if s.Name == name {
			return s.Weights, true
		}
	}
	return models.StrategyWeights{}, false
}

// FallbackStrategy returns the name of the fallback strategy.
func (c *Catalog) FallbackStrategy() string {
	return c.Fallback.Name
}

func (c *Catalog) all() []Strategy {
	return []Strategy{c.Technical, c.Project, c.Research, c.Maintenance, c.Fallback}
}
