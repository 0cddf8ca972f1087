// Package domain contains the core entities for clinical severity scoring:
// patient snapshots (lab results and vital signs) and the standardized
// severity scores computed from them (SOFA, qSOFA, APACHE II).
//
// References: Vincent et al. (1996) The SOFA score to describe organ
// dysfunction/failure. Intensive Care Med 22:707-710; Knaus et al. (1985)
// APACHE II: a severity of disease classification system. Crit Care Med
// 13(10):818-29; Singer et al. (2016) The Third International Consensus
// Definitions for Sepsis and Septic Shock (Sepsis-3). JAMA 315(8):801-10.
package domain

import (
	"errors"
	"fmt"
)

// ScoreKind identifies a severity score family.
type ScoreKind string

const (
	ScoreSOFA    ScoreKind = "SOFA"
	ScoreQSOFA   ScoreKind = "qSOFA"
	ScoreAPACHE2 ScoreKind = "APACHE II"
)

// Sentinel errors for score computation and record retrieval.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidScoreKind = errors.New("invalid score kind")
	ErrInvalidSnapshot  = errors.New("invalid patient snapshot")
)

// AllScoreKinds lists every supported score family in presentation order.
func AllScoreKinds() []ScoreKind {
	return []ScoreKind{ScoreSOFA, ScoreQSOFA, ScoreAPACHE2}
}

// ParseScoreKind maps a request path/query token to a ScoreKind.
// Accepted tokens are case-insensitive short names ("sofa", "qsofa",
// "apache2" or "apache-ii").
func ParseScoreKind(s string) (ScoreKind, error) {
	switch normalizeKindToken(s) {
	case "sofa":
		return ScoreSOFA, nil
	case "qsofa":
		return ScoreQSOFA, nil
	case "apache2", "apacheii", "apache":
		return ScoreAPACHE2, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScoreKind, s)
	}
}

func normalizeKindToken(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c+'a'-'A')
		case c == '-' || c == '_' || c == ' ':
			// separators are ignored
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// IsValid reports whether the score kind is one of the supported families.
// Only validated kinds may be used in clinical reporting.
func (k ScoreKind) IsValid() bool {
	switch k {
	case ScoreSOFA, ScoreQSOFA, ScoreAPACHE2:
		return true
	default:
		return false
	}
}

// String returns the display name of the score family.
func (k ScoreKind) String() string {
	return string(k)
}

// MaxTotal returns the documented upper bound of the family's total.
// APACHE II has no single published ceiling reachable from this engine's
// inputs; the returned bound is the sum of its per-component maxima.
func (k ScoreKind) MaxTotal() int {
	switch k {
	case ScoreSOFA:
		return 24
	case ScoreQSOFA:
		return 3
	case ScoreAPACHE2:
		// age 6 + eleven tabled components at 4 + GCS conversion at 12
		return 62
	default:
		return 0
	}
}

// LogFields returns structured logging fields for audit trails.
func (k ScoreKind) LogFields() map[string]any {
	return map[string]any{
		"score_kind": string(k),
		"is_valid":   k.IsValid(),
		"max_total":  k.MaxTotal(),
	}
}
