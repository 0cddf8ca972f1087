package domain

import (
	"fmt"
	"strings"
	"time"
)

// LabResultReading is a single named test result from an exam event.
// Readings are immutable once recorded; Value is nil when the analyzer
// reported a non-numeric result.
type LabResultReading struct {
	ID          string     `json:"id,omitempty"`
	Name        string     `json:"name"`
	Value       *float64   `json:"value"`
	Unit        string     `json:"unit,omitempty"`
	CollectedAt time.Time  `json:"collected_at"`
	RefLow      *float64   `json:"ref_low,omitempty"`
	RefHigh     *float64   `json:"ref_high,omitempty"`
	Abnormal    bool       `json:"abnormal,omitempty"`
}

// IsAbnormal reports whether the reading falls outside its reference range.
// An explicit Abnormal flag from the analyzer takes precedence; otherwise the
// flag is derived from the range bounds when both value and a bound exist.
func (r *LabResultReading) IsAbnormal() bool {
	if r.Abnormal {
		return true
	}
	if r.Value == nil {
		return false
	}
	if r.RefLow != nil && *r.Value < *r.RefLow {
		return true
	}
	if r.RefHigh != nil && *r.Value > *r.RefHigh {
		return true
	}
	return false
}

// MatchesName reports whether the reading's test name contains the given
// substring, case-insensitively. Lookup by substring mirrors how results
// arrive from upstream lab interfaces, where "Creatinina" must match a
// reading named "Creatinina Sérica".
func (r *LabResultReading) MatchesName(substr string) bool {
	return strings.Contains(strings.ToLower(r.Name), strings.ToLower(substr))
}

// VitalSignReading is a timestamped snapshot of physiological measurements.
// Nil fields were not charted at that time.
type VitalSignReading struct {
	ID               string    `json:"id,omitempty"`
	RecordedAt       time.Time `json:"recorded_at"`
	HeartRate        *float64  `json:"heart_rate,omitempty"`
	SystolicBP       *float64  `json:"systolic_bp,omitempty"`
	DiastolicBP      *float64  `json:"diastolic_bp,omitempty"`
	Temperature      *float64  `json:"temperature,omitempty"`
	RespiratoryRate  *float64  `json:"respiratory_rate,omitempty"`
	OxygenSaturation *float64  `json:"oxygen_saturation,omitempty"`
	GlasgowComaScale *int      `json:"glasgow_coma_scale,omitempty"`
}

// Validate checks the charted values against physiological bounds. The
// returned error is a *ValidationError naming the offending field.
func (r *VitalSignReading) Validate() error {
	if r.GlasgowComaScale != nil && (*r.GlasgowComaScale < 3 || *r.GlasgowComaScale > 15) {
		return NewValidationError("glasgow_coma_scale", "must be between 3 and 15", *r.GlasgowComaScale)
	}
	if r.SystolicBP != nil && *r.SystolicBP <= 0 {
		return NewValidationError("systolic_bp", "must be positive", *r.SystolicBP)
	}
	if r.RespiratoryRate != nil && *r.RespiratoryRate < 0 {
		return NewValidationError("respiratory_rate", "must not be negative", *r.RespiratoryRate)
	}
	return nil
}

// PatientSnapshot is the read-only view handed to the score engine: the
// patient's birth date, the most recent exam's lab results and the full
// ordered vital-sign history. The engine never mutates it.
type PatientSnapshot struct {
	PatientID string             `json:"patient_id,omitempty"`
	BirthDate *time.Time         `json:"birth_date,omitempty"`
	Labs      []LabResultReading `json:"labs,omitempty"`
	Vitals    []VitalSignReading `json:"vitals,omitempty"`
}

// LatestVitals returns the vital-sign reading with the greatest timestamp,
// or nil when no vitals were charted.
func (s *PatientSnapshot) LatestVitals() *VitalSignReading {
	var latest *VitalSignReading
	for i := range s.Vitals {
		v := &s.Vitals[i]
		if latest == nil || v.RecordedAt.After(latest.RecordedAt) {
			latest = v
		}
	}
	return latest
}

// FindLab returns the first lab reading whose name contains substr
// (case-insensitive), preserving exam result-list order, or nil when no
// reading matches. Callers treat nil as "insufficient data".
func (s *PatientSnapshot) FindLab(substr string) *LabResultReading {
	for i := range s.Labs {
		if s.Labs[i].MatchesName(substr) {
			return &s.Labs[i]
		}
	}
	return nil
}

// AgeAt derives the patient's age in whole years at the given reference
// time. The month/day adjustment ensures an incomplete year does not round
// up: a patient born 1955-06-01 is 69, not 70, on 2025-05-01.
func (s *PatientSnapshot) AgeAt(now time.Time) (int, bool) {
	if s.BirthDate == nil {
		return 0, false
	}
	b := *s.BirthDate
	age := now.Year() - b.Year()
	if now.Month() < b.Month() || (now.Month() == b.Month() && now.Day() < b.Day()) {
		age--
	}
	if age < 0 {
		return 0, false
	}
	return age, true
}

// Validate checks the snapshot's structural integrity. Missing data is
// permitted throughout (scores degrade to 0), but a reading with a zero
// timestamp indicates a broken ingest path and is rejected.
func (s *PatientSnapshot) Validate() error {
	for i := range s.Labs {
		if s.Labs[i].Name == "" {
			return fmt.Errorf("%w: lab reading %d has no test name", ErrInvalidSnapshot, i)
		}
	}
	for i := range s.Vitals {
		if s.Vitals[i].RecordedAt.IsZero() {
			return fmt.Errorf("%w: vital reading %d has no timestamp", ErrInvalidSnapshot, i)
		}
	}
	return nil
}
