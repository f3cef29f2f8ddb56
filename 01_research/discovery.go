package research

import (
	"context"
	"log"
	"math/rand"

	"autocast-pipeline/config"
	"autocast-pipeline/types"
)

// Strategy is one way of producing topic candidates
type Strategy interface {
	Name() string
	Discover(ctx context.Context, forcedConcept string) ([]types.Topic, error)
}

// Service picks a discovery strategy per cycle and returns its candidates
type Service struct {
	cfg      *config.Config
	trending Strategy
	curated  Strategy
	history  *History

	// randFloat is swappable in tests
	randFloat func() float64
}

// NewService wires the weighted strategy mix over the two discoverers
func NewService(cfg *config.Config, trending, curated Strategy, history *History) *Service {
	return &Service{
		cfg:       cfg,
		trending:  trending,
		curated:   curated,
		history:   history,
		randFloat: rand.Float64,
	}
}

// Discover returns topic candidates. A forced concept routes to the curated
// strategy's forced-concept variant; otherwise the strategy is a weighted
// random choice (trending weight vs curated).
func (s *Service) Discover(ctx context.Context, forcedConcept string) ([]types.Topic, error) {
	strategy := s.curated
	if forcedConcept == "" && s.randFloat() < s.cfg.Research.TrendingWeight {
		strategy = s.trending
	}
	log.Printf("[research] Discovering topics via %s strategy", strategy.Name())
	return strategy.Discover(ctx, forcedConcept)
}

// MarkUsed records a selected topic in the history store
func (s *Service) MarkUsed(id string) {
	if s.history != nil {
		s.history.MarkUsed(id)
	}
}

// ResetHistory forgets all used topics so they become eligible again
func (s *Service) ResetHistory() {
	if s.history != nil {
		s.history.Reset()
	}
}
