package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Patient represents a registered patient record.
type Patient struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ExamRecord represents one exam event and the lab results it produced.
// Lab results keep their charted order; score calculators resolve a test
// name to the first matching reading in that order.
type ExamRecord struct {
	ID          uuid.UUID          `json:"id"`
	PatientID   uuid.UUID          `json:"patient_id"`
	CollectedAt time.Time          `json:"collected_at"`
	Labs        []LabResultReading `json:"labs"`
}

// Validate rejects exams with readings that cannot be resolved by test name.
// The returned error is a *ValidationError naming the offending field.
func (e *ExamRecord) Validate() error {
	for i := range e.Labs {
		if e.Labs[i].Name == "" {
			return NewValidationError(fmt.Sprintf("labs[%d].name", i), "must not be empty", e.Labs[i].Name)
		}
	}
	return nil
}
