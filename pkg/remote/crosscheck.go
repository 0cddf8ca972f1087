package remote

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/hellf17/clinical-corvus-sub005/internal/domain"
)

// remoteScorer is the cross-checker's view of the remote service.
type remoteScorer interface {
	ComputeScore(ctx context.Context, kind domain.ScoreKind, snap *domain.PatientSnapshot) (*domain.ScoreResult, error)
}

// scoreInvalidator is implemented by scorers that cache remote results.
type scoreInvalidator interface {
	InvalidateScore(ctx context.Context, kind domain.ScoreKind, snap *domain.PatientSnapshot) error
}

// CrossCheckResult compares a locally computed score with the server-side
// computation of the same snapshot.
type CrossCheckResult struct {
	Kind        domain.ScoreKind    `json:"kind"`
	Match       bool                `json:"match"`
	Local       *domain.ScoreResult `json:"local"`
	Remote      *domain.ScoreResult `json:"remote,omitempty"`
	Delta       int                 `json:"delta"`
	RemoteError string              `json:"remote_error,omitempty"`
}

// CrossChecker verifies local score results against the remote scoring API.
// Remote failures never invalidate the local result; the check degrades to
// local-only.
type CrossChecker struct {
	scorer remoteScorer
	log    *logrus.Logger
}

// NewCrossChecker creates a new cross checker
func NewCrossChecker(scorer remoteScorer, logger *logrus.Logger) *CrossChecker {
	return &CrossChecker{
		scorer: scorer,
		log:    logger,
	}
}

// Check computes the remote score for the snapshot and compares totals and
// risk labels with the local result.
func (c *CrossChecker) Check(ctx context.Context, snap *domain.PatientSnapshot, local *domain.ScoreResult) *CrossCheckResult {
	result := &CrossCheckResult{
		Kind:  local.Kind,
		Local: local,
	}

	remote, err := c.scorer.ComputeScore(ctx, local.Kind, snap)
	if err != nil {
		c.log.WithError(err).WithFields(local.LogFields()).Warn("Remote cross-check unavailable")
		result.RemoteError = err.Error()
		return result
	}

	result.Remote = remote
	result.Delta = remote.Total - local.Total
	result.Match = remote.Total == local.Total && remote.RiskLabel == local.RiskLabel

	if !result.Match {
		c.log.WithFields(logrus.Fields{
			"score_kind":   local.Kind.String(),
			"local_total":  local.Total,
			"remote_total": remote.Total,
			"local_risk":   local.RiskLabel,
			"remote_risk":  remote.RiskLabel,
		}).Warn("Remote score disagrees with local computation")

		// A disagreeing result must not be served from cache on the next
		// check; drop it so the live service is consulted again.
		if inv, ok := c.scorer.(scoreInvalidator); ok {
			if err := inv.InvalidateScore(ctx, local.Kind, snap); err != nil {
				c.log.WithError(err).Warn("Failed to invalidate cached remote score")
			}
		}
	}

	return result
}
