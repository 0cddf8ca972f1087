package domain

import (
	"fmt"
)

// ScoreComponent is one named sub-component of a score with its point
// contribution and the formatted value shown to clinicians. Display is "-"
// when the underlying input was missing.
type ScoreComponent struct {
	Name    string `json:"name"`
	Points  int    `json:"points"`
	Display string `json:"display"`
	Max     int    `json:"max"`
}

// ScoreResult is the output of one score computation: a non-negative total,
// the ordered sub-component breakdown and the derived risk label. Results are
// recomputed fresh on every invocation and carry no timestamps, so identical
// snapshots yield identical results.
type ScoreResult struct {
	Kind       ScoreKind        `json:"kind"`
	Total      int              `json:"total"`
	Components []ScoreComponent `json:"components"`
	RiskLabel  string           `json:"risk_label"`
}

// Validate enforces the scoring invariants: every component contribution is a
// non-negative integer bounded by its documented maximum and the total equals
// the exact sum of the components.
func (r *ScoreResult) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("score result validation: %w", ErrInvalidScoreKind)
	}
	sum := 0
	for _, c := range r.Components {
		if c.Points < 0 {
			return fmt.Errorf("score result validation: component %q has negative points %d", c.Name, c.Points)
		}
		if c.Max > 0 && c.Points > c.Max {
			return fmt.Errorf("score result validation: component %q points %d exceed maximum %d", c.Name, c.Points, c.Max)
		}
		sum += c.Points
	}
	if sum != r.Total {
		return fmt.Errorf("score result validation: total %d does not equal component sum %d", r.Total, sum)
	}
	if r.Total < 0 || r.Total > r.Kind.MaxTotal() {
		return fmt.Errorf("score result validation: total %d outside [0,%d] for %s", r.Total, r.Kind.MaxTotal(), r.Kind)
	}
	return nil
}

// LogFields returns structured logging fields for audit trails.
func (r *ScoreResult) LogFields() map[string]any {
	return map[string]any{
		"score_kind": r.Kind.String(),
		"total":      r.Total,
		"risk_label": r.RiskLabel,
		"components": len(r.Components),
	}
}
