package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hellf17/clinical-corvus-sub005/internal/domain"
)

func testEngine() *ScoreEngine {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	e := NewScoreEngine(logger)
	e.now = func() time.Time {
		return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	}
	return e
}

func fullSnapshot() *domain.PatientSnapshot {
	return &domain.PatientSnapshot{
		PatientID: "patient-1",
		BirthDate: birth(1955, 6, 1),
		Labs: []domain.LabResultReading{
			lab("PaO2", 90, "mmHg"),
			lab("FiO2", 60, "%"),
			lab("Plaquetas", 45, "×10³/µL"),
			lab("Bilirrubina Total", 2.5, "mg/dL"),
			lab("Creatinina", 4.0, "mg/dL"),
			lab("Sódio", 128, "mEq/L"),
			lab("Potássio", 5.7, "mEq/L"),
		},
		Vitals: []domain.VitalSignReading{{
			RecordedAt:       time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
			HeartRate:        f(112),
			SystolicBP:       f(95),
			DiastolicBP:      f(60),
			Temperature:      f(38.7),
			RespiratoryRate:  f(24),
			GlasgowComaScale: gcs(14),
		}},
	}
}

func TestCompute_UnknownKind(t *testing.T) {
	e := testEngine()

	result, err := e.Compute(context.Background(), domain.ScoreKind("NEWS2"), fullSnapshot())
	assert.Nil(t, result)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidScoreKind)
}

func TestCompute_AllKinds(t *testing.T) {
	e := testEngine()
	snap := fullSnapshot()

	for _, kind := range domain.AllScoreKinds() {
		result, err := e.Compute(context.Background(), kind, snap)
		require.NoError(t, err, "kind=%s", kind)
		assert.Equal(t, kind, result.Kind)
		assert.NoError(t, result.Validate())
	}
}

func TestCompute_Idempotence(t *testing.T) {
	e := testEngine()
	snap := fullSnapshot()

	for _, kind := range domain.AllScoreKinds() {
		first, err := e.Compute(context.Background(), kind, snap)
		require.NoError(t, err)
		second, err := e.Compute(context.Background(), kind, snap)
		require.NoError(t, err)
		assert.Equal(t, first, second, "kind=%s", kind)
	}
}

func TestCompute_DoesNotMutateSnapshot(t *testing.T) {
	e := testEngine()
	snap := fullSnapshot()
	reference := fullSnapshot()

	for _, kind := range domain.AllScoreKinds() {
		_, err := e.Compute(context.Background(), kind, snap)
		require.NoError(t, err)
	}
	assert.Equal(t, reference, snap)
}

func TestComputeAll_ReturnsEveryFamily(t *testing.T) {
	e := testEngine()

	results := e.ComputeAll(context.Background(), fullSnapshot())
	require.Len(t, results, len(domain.AllScoreKinds()))

	byKind := make(map[domain.ScoreKind]domain.ScoreResult, len(results))
	for _, r := range results {
		byKind[r.Kind] = r
	}
	assert.Contains(t, byKind, domain.ScoreSOFA)
	assert.Contains(t, byKind, domain.ScoreQSOFA)
	assert.Contains(t, byKind, domain.ScoreAPACHE2)
}

func TestComputeAll_EmptySnapshot(t *testing.T) {
	e := testEngine()

	results := e.ComputeAll(context.Background(), &domain.PatientSnapshot{})
	require.Len(t, results, len(domain.AllScoreKinds()))
	for _, r := range results {
		assert.Equal(t, 0, r.Total, "kind=%s", r.Kind)
		assert.NoError(t, r.Validate())
	}
}

func TestCompute_MissingSingleInputOnlyAffectsItsComponent(t *testing.T) {
	e := testEngine()

	full := fullSnapshot()
	fullResult, err := e.Compute(context.Background(), domain.ScoreSOFA, full)
	require.NoError(t, err)

	// Drop the platelet reading: only the coagulation component may change.
	partial := fullSnapshot()
	kept := partial.Labs[:0]
	for _, l := range partial.Labs {
		if !l.MatchesName("Plaquetas") {
			kept = append(kept, l)
		}
	}
	partial.Labs = kept

	partialResult, err := e.Compute(context.Background(), domain.ScoreSOFA, partial)
	require.NoError(t, err)

	require.Len(t, partialResult.Components, len(fullResult.Components))
	for i, c := range partialResult.Components {
		if c.Name == "Coagulação (Plaquetas)" {
			assert.Equal(t, 0, c.Points)
			assert.Equal(t, missingDisplay, c.Display)
			continue
		}
		assert.Equal(t, fullResult.Components[i], c)
	}
}

func TestScoreBands_FirstMatchWins(t *testing.T) {
	bands := []band{
		{func(v float64) bool { return v >= 10 }, 3},
		{func(v float64) bool { return v >= 5 }, 2},
		{func(v float64) bool { return v >= 5 }, 1},
	}

	assert.Equal(t, 3, scoreBands(12, bands))
	assert.Equal(t, 2, scoreBands(7, bands))
	assert.Equal(t, 0, scoreBands(1, bands))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "45 ×10³/µL", formatValue(45, "×10³/µL"))
	assert.Equal(t, "7.35", formatValue(7.35, ""))
	assert.Equal(t, "38.5 °C", formatValue(38.5, "°C"))
	assert.Equal(t, "150 mmHg", formatValue(150, "mmHg"))
}
