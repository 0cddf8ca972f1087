package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/hellf17/clinical-corvus-sub005/internal/domain"
)

// ResilientScoringClient wraps the scoring client with a circuit breaker and
// a two-tier cache. When the remote service degrades, the breaker opens and
// callers fall back to local-only scoring.
type ResilientScoringClient struct {
	client  *ScoringClient
	cache   *ScoreCache
	breaker *gobreaker.CircuitBreaker
	log     *logrus.Logger
}

// NewResilientScoringClient creates a resilient scoring client. The cache is
// optional; pass nil to disable caching.
func NewResilientScoringClient(client *ScoringClient, cache *ScoreCache, logger *logrus.Logger) *ResilientScoringClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "RemoteScoring",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &ResilientScoringClient{
		client:  client,
		cache:   cache,
		breaker: breaker,
		log:     logger,
	}
}

// ComputeScore requests a remote score, serving cached results when present
// and recording fresh ones.
func (r *ResilientScoringClient) ComputeScore(ctx context.Context, kind domain.ScoreKind, snap *domain.PatientSnapshot) (*domain.ScoreResult, error) {
	if r.cache != nil {
		if result, hit, err := r.cache.Get(ctx, kind, snap); err == nil && hit {
			return result, nil
		}
	}

	value, err := r.breaker.Execute(func() (interface{}, error) {
		return r.client.ComputeScore(ctx, kind, snap)
	})
	if err != nil {
		return nil, fmt.Errorf("remote scoring unavailable: %w", err)
	}

	result := value.(*domain.ScoreResult)

	if r.cache != nil {
		if err := r.cache.Set(ctx, kind, snap, result, 0); err != nil {
			r.log.WithError(err).Warn("Failed to cache remote score")
		}
	}

	return result, nil
}

// InvalidateScore drops the cached remote result for one snapshot and kind.
// A no-op when caching is disabled.
func (r *ResilientScoringClient) InvalidateScore(ctx context.Context, kind domain.ScoreKind, snap *domain.PatientSnapshot) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Invalidate(ctx, kind, snap)
}

// State returns the current breaker state.
func (r *ResilientScoringClient) State() gobreaker.State {
	return r.breaker.State()
}
