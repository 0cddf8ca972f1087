package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hellf17/clinical-corvus-sub005/internal/config"
	"github.com/hellf17/clinical-corvus-sub005/internal/domain"
)

func newTestCLI(t *testing.T, format string) (*CLI, *bytes.Buffer) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.DefaultLiteConfig()
	cfg.DataDir = t.TempDir()
	cfg.Format = format

	c := New(cfg, logger)
	out := &bytes.Buffer{}
	c.out = out
	return c, out
}

func writeSnapshotFile(t *testing.T) string {
	t.Helper()
	gcs := 14
	rr := 24.0
	sbp := 95.0
	platelets := 45.0
	recorded := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	snap := domain.PatientSnapshot{
		PatientID: "pt-001",
		Labs: []domain.LabResultReading{
			{Name: "Plaquetas", Value: &platelets, Unit: "×10³/µL", CollectedAt: recorded},
		},
		Vitals: []domain.VitalSignReading{
			{RecordedAt: recorded, RespiratoryRate: &rr, SystolicBP: &sbp, GlasgowComaScale: &gcs},
		},
	}
	return writeSnapshotJSON(t, &snap)
}

func writeSnapshotJSON(t *testing.T, snap *domain.PatientSnapshot) string {
	t.Helper()
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestScoreAllTableOutput(t *testing.T) {
	c, out := newTestCLI(t, "table")
	path := writeSnapshotFile(t)

	err := c.Run(context.Background(), []string{"score", "all", "-f", path})

	require.NoError(t, err)
	output := out.String()
	assert.Contains(t, output, "SOFA")
	assert.Contains(t, output, "qSOFA: 3")
	assert.Contains(t, output, "APACHE II")
	assert.Contains(t, output, "Coagulação (Plaquetas)")
}

func TestScoreSingleJSONOutput(t *testing.T) {
	c, out := newTestCLI(t, "json")
	path := writeSnapshotFile(t)

	err := c.Run(context.Background(), []string{"score", "qsofa", "-f", path})

	require.NoError(t, err)
	var results []domain.ScoreResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, domain.ScoreQSOFA, results[0].Kind)
	assert.Equal(t, 3, results[0].Total)
}

func TestScoreUnknownKind(t *testing.T) {
	c, _ := newTestCLI(t, "table")
	path := writeSnapshotFile(t)

	err := c.Run(context.Background(), []string{"score", "meld", "-f", path})

	assert.ErrorIs(t, err, domain.ErrInvalidScoreKind)
}

func TestScoreRejectsUntimestampedVitals(t *testing.T) {
	c, _ := newTestCLI(t, "table")
	rr := 24.0
	path := writeSnapshotJSON(t, &domain.PatientSnapshot{
		PatientID: "pt-001",
		Vitals:    []domain.VitalSignReading{{RespiratoryRate: &rr}},
	})

	err := c.Run(context.Background(), []string{"score", "all", "-f", path})

	assert.ErrorIs(t, err, domain.ErrInvalidSnapshot)
}

func TestScoreMissingFile(t *testing.T) {
	c, _ := newTestCLI(t, "table")

	err := c.Run(context.Background(), []string{"score", "sofa"})

	assert.Error(t, err)
}

func TestScoreRecordAndHistory(t *testing.T) {
	c, out := newTestCLI(t, "table")
	path := writeSnapshotFile(t)

	require.NoError(t, c.Run(context.Background(), []string{"score", "all", "-f", path, "--record"}))

	out.Reset()
	require.NoError(t, c.Run(context.Background(), []string{"history", "--patient", "pt-001"}))

	output := out.String()
	assert.Contains(t, output, "SOFA")
	assert.Contains(t, output, "qSOFA")
}

// remoteQSOFA builds a valid qSOFA payload the fake remote service returns.
func remoteQSOFA(total int) domain.ScoreResult {
	components := []domain.ScoreComponent{
		{Name: "Frequência respiratória ≥22/min", Points: 0, Display: "-", Max: 1},
		{Name: "Alteração do estado mental (Glasgow <15)", Points: 0, Display: "-", Max: 1},
		{Name: "Pressão arterial sistólica ≤100 mmHg", Points: 0, Display: "-", Max: 1},
	}
	for i := 0; i < total; i++ {
		components[i].Points = 1
	}
	risk := "Negativo"
	if total >= 2 {
		risk = "Positivo (Risco ↑)"
	}
	return domain.ScoreResult{
		Kind:       domain.ScoreQSOFA,
		Total:      total,
		RiskLabel:  risk,
		Components: components,
	}
}

func TestScoreVerifyAgainstRemote(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/scores", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(remoteQSOFA(3)))
	}))
	defer ts.Close()

	c, out := newTestCLI(t, "table")
	c.cfg.ScoringAPIURL = ts.URL
	path := writeSnapshotFile(t)

	err := c.Run(context.Background(), []string{"score", "qsofa", "-f", path, "--verify"})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "✓ qSOFA cross-check: remote agrees (total 3)")
}

func TestScoreVerifyReportsDisagreement(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(remoteQSOFA(2)))
	}))
	defer ts.Close()

	c, out := newTestCLI(t, "table")
	c.cfg.ScoringAPIURL = ts.URL
	path := writeSnapshotFile(t)

	err := c.Run(context.Background(), []string{"score", "qsofa", "-f", path, "--verify"})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "✗ qSOFA cross-check: remote disagrees (local 3, remote 2)")
}

func TestScoreVerifyRequiresRemoteURL(t *testing.T) {
	c, _ := newTestCLI(t, "table")
	path := writeSnapshotFile(t)

	err := c.Run(context.Background(), []string{"score", "qsofa", "-f", path, "--verify"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "CORVUS_SCORING_API_URL")
}

func TestHistoryRequiresPatient(t *testing.T) {
	c, _ := newTestCLI(t, "table")

	err := c.Run(context.Background(), []string{"history"})

	assert.Error(t, err)
}

func TestExportImportRoundTrip(t *testing.T) {
	c, _ := newTestCLI(t, "table")
	path := writeSnapshotFile(t)
	require.NoError(t, c.Run(context.Background(), []string{"score", "all", "-f", path, "--record"}))

	exportPath := filepath.Join(t.TempDir(), "runs.json")
	require.NoError(t, c.Run(context.Background(), []string{"export", "-o", exportPath}))

	// import into a fresh data directory
	fresh, freshOut := newTestCLI(t, "table")
	require.NoError(t, fresh.Run(context.Background(), []string{"import", "-f", exportPath}))
	assert.Contains(t, freshOut.String(), "Imported 3 runs (0 skipped)")

	// importing the same file again skips every run
	freshOut.Reset()
	require.NoError(t, fresh.Run(context.Background(), []string{"import", "-f", exportPath}))
	assert.Contains(t, freshOut.String(), "Imported 0 runs (3 skipped)")
}

func TestHelpOnNoArgs(t *testing.T) {
	c, out := newTestCLI(t, "table")

	require.NoError(t, c.Run(context.Background(), nil))

	assert.Contains(t, out.String(), "Usage:")
}
