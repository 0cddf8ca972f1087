// Package service implements the clinical severity-score engine: pure,
// stateless computation of SOFA, qSOFA and APACHE II from a patient snapshot.
package service

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hellf17/clinical-corvus-sub005/internal/domain"
)

// missingDisplay is shown for sub-components whose input was not charted.
const missingDisplay = "-"

// calculator computes one score family from a snapshot. The reference time
// is used for age derivation only.
type calculator func(snap *domain.PatientSnapshot, now time.Time) *domain.ScoreResult

// ScoreEngine computes standardized severity scores. Every computation is a
// pure function of the snapshot: no shared mutable state, no caching, no I/O.
// Missing inputs contribute 0 points rather than raising an error.
type ScoreEngine struct {
	logger      *logrus.Logger
	calculators map[domain.ScoreKind]calculator
	now         func() time.Time
}

// NewScoreEngine creates a new score engine.
func NewScoreEngine(logger *logrus.Logger) *ScoreEngine {
	e := &ScoreEngine{
		logger: logger,
		now:    time.Now,
	}
	e.calculators = map[domain.ScoreKind]calculator{
		domain.ScoreSOFA:    computeSOFA,
		domain.ScoreQSOFA:   computeQSOFA,
		domain.ScoreAPACHE2: computeAPACHE2,
	}
	return e
}

// Compute calculates a single score family from the snapshot. The only error
// condition is an unknown score kind; sparse or empty snapshots yield a zero
// total in the lowest risk band.
func (e *ScoreEngine) Compute(ctx context.Context, kind domain.ScoreKind, snap *domain.PatientSnapshot) (*domain.ScoreResult, error) {
	calc, ok := e.calculators[kind]
	if !ok {
		return nil, domain.ErrInvalidScoreKind
	}

	result := calc(snap, e.now())

	e.logger.WithFields(logrus.Fields{
		"patient_id": snap.PatientID,
		"score_kind": kind.String(),
		"total":      result.Total,
		"risk_label": result.RiskLabel,
	}).Debug("Score computed")

	return result, nil
}

// ComputeAll calculates every supported score family. The families are
// independent, so one family can never abort the batch.
func (e *ScoreEngine) ComputeAll(ctx context.Context, snap *domain.PatientSnapshot) []domain.ScoreResult {
	kinds := domain.AllScoreKinds()
	results := make([]domain.ScoreResult, 0, len(kinds))

	for _, kind := range kinds {
		result, err := e.Compute(ctx, kind, snap)
		if err != nil {
			e.logger.WithError(err).WithField("score_kind", kind.String()).Warn("Failed to compute score")
			continue
		}
		results = append(results, *result)
	}

	e.logger.WithFields(logrus.Fields{
		"patient_id": snap.PatientID,
		"scores":     len(results),
	}).Info("Completed score computation")

	return results
}

// band pairs a predicate with the points awarded when it matches. Bands are
// evaluated top to bottom with first-match-wins, preserving the evaluation
// order of the published breakpoint tables even where bands overlap.
type band struct {
	applies func(v float64) bool
	points  int
}

// scoreBands returns the points of the first matching band, or 0.
func scoreBands(v float64, bands []band) int {
	for _, b := range bands {
		if b.applies(v) {
			return b.points
		}
	}
	return 0
}

// formatValue renders a measurement for display, trimming trailing zeros
// and appending the unit when present.
func formatValue(v float64, unit string) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if unit == "" {
		return s
	}
	return s + " " + unit
}

// labValue extracts the numeric value of the first lab reading matching the
// test-name substring. The second return is false when no reading matches or
// the matching reading has no numeric value.
func labValue(snap *domain.PatientSnapshot, name string) (float64, bool) {
	r := snap.FindLab(name)
	if r == nil || r.Value == nil {
		return 0, false
	}
	return *r.Value, true
}
