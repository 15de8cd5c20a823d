package routing

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/haasonsaas/ragbench/pkg/models"
)

const (
	// fallbackConfidence is the confidence of a decision with no signal match.
	fallbackConfidence = 0.5
	// maxConfidence caps signal-based confidence.
	maxConfidence = 0.95
	// DefaultMinConfidence is the confidence below which the fallback
	// strategy is recommended.
	DefaultMinConfidence = 0.6
)

// Classifier produces a routing decision for a query.
type Classifier interface {
	Decide(ctx context.Context, query string) models.RouterDecision
}

// Config configures a Router.
type Config struct {
	Catalog       *Catalog
	Signals       []Signal
	FallbackType  models.QueryType
	MinConfidence float64
}

// Router classifies queries by counting keyword signals. It holds no mutable
// state, so identical queries always produce identical decisions.
type Router struct {
	catalog       *Catalog
	signals       []Signal
	fallbackType  models.QueryType
	minConfidence float64
}

var _ Classifier = (*Router)(nil)

// NewRouter creates a Router, filling unset fields with defaults.
func NewRouter(cfg Config) (*Router, error) {
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	signals := cfg.Signals
	if len(signals) == 0 {
		signals = DefaultSignals()
	}
	fallbackType := cfg.FallbackType
	if fallbackType == "" {
		fallbackType = models.QueryTypeResearch
	}
	if !fallbackType.Valid() {
		return nil, errInvalidConfig("unknown fallback type %q", fallbackType)
	}
	minConfidence := cfg.MinConfidence
	if minConfidence == 0 {
		minConfidence = DefaultMinConfidence
	}
	if minConfidence < 0 || minConfidence > 1 {
		return nil, errInvalidConfig("min confidence %v outside [0,1]", minConfidence)
	}

	normalized := make([]Signal, 0, len(signals))
	for _, s := range signals {
		if !s.Type.Valid() {
			return nil, errInvalidConfig("signal for unknown type %q", s.Type)
		}
		keywords := make([]string, 0, len(s.Keywords))
		for _, kw := range s.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		normalized = append(normalized, Signal{Type: s.Type, Keywords: keywords})
	}

	return &Router{
		catalog:       catalog,
		signals:       normalized,
		fallbackType:  fallbackType,
		minConfidence: minConfidence,
	}, nil
}

// Catalog returns the strategy catalog used by the router.
func (r *Router) Catalog() *Catalog {
	return r.catalog
}

// Classify routes a query. The type with the most matching keywords wins;
// ties go to the earliest declared signal.
func (r *Router) Classify(query string) models.RouterDecision {
	lower := strings.ToLower(query)

	best := -1
	bestCount := 0
	for i, s := range r.signals {
		count := 0
		for _, kw := range s.Keywords {
			if strings.Contains(lower, kw) {
				count++
			}
		}
		if count > bestCount {
			best = i
			bestCount = count
		}
	}

	if best < 0 {
		return r.decide(r.fallbackType, fallbackConfidence, false)
	}
	confidence := math.Min(float64(7+bestCount)/10, maxConfidence)
	return r.decide(r.signals[best].Type, confidence, true)
}

// Decide implements Classifier.
func (r *Router) Decide(_ context.Context, query string) models.RouterDecision {
	return r.Classify(query)
}

func (r *Router) decide(t models.QueryType, confidence float64, fastPath bool) models.RouterDecision {
	strategy := r.catalog.StrategyFor(t).Name
	if confidence < r.minConfidence {
		strategy = r.catalog.FallbackStrategy()
	}
	return models.RouterDecision{
		QueryType:           t,
		RecommendedStrategy: strategy,
		Confidence:          confidence,
		UsedFastPath:        fastPath,
	}
}

// IsFallback reports whether the decision was routed to the fallback strategy.
func (r *Router) IsFallback(d models.RouterDecision) bool {
	return d.RecommendedStrategy == r.catalog.FallbackStrategy()
}

func errInvalidConfig(format string, args ...any) error {
	return fmt.Errorf("routing: "+format, args...)
}
