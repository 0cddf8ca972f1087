// Package history provides persistent storage for computed score runs.
// It records every severity-score computation so clinicians can review how
// a patient's scores evolved between snapshots.
package history

import (
	"context"
	"io"
	"time"

	"github.com/hellf17/clinical-corvus-sub005/internal/domain"
)

// ScoreRun represents one persisted score computation.
type ScoreRun struct {
	ID         int64                   `json:"id,omitempty"`
	PatientID  string                  `json:"patient_id"`
	ScoreKind  string                  `json:"score_kind"`
	Total      int                     `json:"total"`
	RiskLabel  string                  `json:"risk_label"`
	Components []domain.ScoreComponent `json:"components"`
	ComputedAt time.Time               `json:"computed_at"`
}

// NewScoreRun builds a run record from an engine result.
func NewScoreRun(patientID string, result *domain.ScoreResult, at time.Time) *ScoreRun {
	return &ScoreRun{
		PatientID:  patientID,
		ScoreKind:  result.Kind.String(),
		Total:      result.Total,
		RiskLabel:  result.RiskLabel,
		Components: result.Components,
		ComputedAt: at,
	}
}

// Store defines the interface for score-run storage operations.
type Store interface {
	// Save appends a score run to the history. Runs are never updated.
	Save(ctx context.Context, run *ScoreRun) error

	// Latest returns the most recent run for a patient and score kind.
	// Returns nil when the patient has no recorded run of that kind.
	Latest(ctx context.Context, patientID string, scoreKind string) (*ScoreRun, error)

	// ListByPatient returns a patient's runs, newest first, with pagination.
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*ScoreRun, error)

	// Count returns the total number of recorded runs.
	Count(ctx context.Context) (int64, error)

	// Delete removes a run by ID.
	Delete(ctx context.Context, id int64) error

	// ExportJSON exports all runs to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports runs from a JSON reader.
	// Returns the number of imported and skipped entries.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// HistoryExport represents the JSON export format.
type HistoryExport struct {
	Version    string      `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	Count      int         `json:"count"`
	Runs       []*ScoreRun `json:"runs"`
}
