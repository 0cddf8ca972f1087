package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hellf17/clinical-corvus-sub005/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testSnapshot() *domain.PatientSnapshot {
	value := 45.0
	return &domain.PatientSnapshot{
		PatientID: "patient-1",
		Labs: []domain.LabResultReading{
			{Name: "Plaquetas", Value: &value, Unit: "×10³/µL", CollectedAt: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)},
		},
	}
}

func validResult() *domain.ScoreResult {
	return &domain.ScoreResult{
		Kind:      domain.ScoreQSOFA,
		Total:     2,
		RiskLabel: "Positivo (Risco ↑)",
		Components: []domain.ScoreComponent{
			{Name: "Frequência respiratória ≥22/min", Points: 1, Display: "24 irpm", Max: 1},
			{Name: "Alteração do estado mental (Glasgow <15)", Points: 0, Display: "-", Max: 1},
			{Name: "Pressão arterial sistólica ≤100 mmHg", Points: 1, Display: "95 mmHg", Max: 1},
		},
	}
}

func TestScoringClient_ComputeScore(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/scores", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qSOFA", req.ScoreKind)
		assert.Equal(t, "patient-1", req.Snapshot.PatientID)

		json.NewEncoder(w).Encode(validResult())
	}))
	defer server.Close()

	client := NewScoringClient(domain.ScoringAPIConfig{
		BaseURL:   server.URL,
		APIKey:    "secret",
		RateLimit: 100,
	})

	result, err := client.ComputeScore(context.Background(), domain.ScoreQSOFA, testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, "Positivo (Risco ↑)", result.RiskLabel)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestScoringClient_InvalidKind(t *testing.T) {
	client := NewScoringClient(domain.ScoringAPIConfig{BaseURL: "http://localhost:1"})

	_, err := client.ComputeScore(context.Background(), domain.ScoreKind("NEWS2"), testSnapshot())
	assert.ErrorIs(t, err, domain.ErrInvalidScoreKind)
}

func TestScoringClient_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(validResult())
	}))
	defer server.Close()

	client := NewScoringClient(domain.ScoringAPIConfig{
		BaseURL:    server.URL,
		RateLimit:  100,
		RetryCount: 3,
	})

	result, err := client.ComputeScore(context.Background(), domain.ScoreQSOFA, testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, int32(3), calls.Load())
}

func TestScoringClient_RejectsInvalidPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Total that does not match the component sum
		bad := validResult()
		bad.Total = 7
		json.NewEncoder(w).Encode(bad)
	}))
	defer server.Close()

	client := NewScoringClient(domain.ScoringAPIConfig{
		BaseURL:    server.URL,
		RateLimit:  100,
		RetryCount: 1,
	})

	_, err := client.ComputeScore(context.Background(), domain.ScoreQSOFA, testSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

// fakeScorer implements remoteScorer for cross-check tests.
type fakeScorer struct {
	result *domain.ScoreResult
	err    error
}

func (f *fakeScorer) ComputeScore(ctx context.Context, kind domain.ScoreKind, snap *domain.PatientSnapshot) (*domain.ScoreResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func TestCrossChecker_Match(t *testing.T) {
	local := validResult()
	checker := NewCrossChecker(&fakeScorer{result: validResult()}, testLogger())

	result := checker.Check(context.Background(), testSnapshot(), local)
	assert.True(t, result.Match)
	assert.Equal(t, 0, result.Delta)
	assert.Empty(t, result.RemoteError)
}

func TestCrossChecker_Mismatch(t *testing.T) {
	local := validResult()

	remote := validResult()
	remote.Components[1].Points = 1
	remote.Components[1].Display = "14"
	remote.Total = 3
	remote.RiskLabel = "Positivo (Risco ↑)"

	checker := NewCrossChecker(&fakeScorer{result: remote}, testLogger())

	result := checker.Check(context.Background(), testSnapshot(), local)
	assert.False(t, result.Match)
	assert.Equal(t, 1, result.Delta)
}

func TestCrossChecker_RemoteFailureKeepsLocal(t *testing.T) {
	local := validResult()
	checker := NewCrossChecker(&fakeScorer{err: errors.New("connection refused")}, testLogger())

	result := checker.Check(context.Background(), testSnapshot(), local)
	assert.False(t, result.Match)
	assert.Nil(t, result.Remote)
	assert.Equal(t, local, result.Local)
	assert.Contains(t, result.RemoteError, "connection refused")
}

// fakeCachingScorer is a fakeScorer that also records invalidations.
type fakeCachingScorer struct {
	fakeScorer
	invalidated []domain.ScoreKind
}

func (f *fakeCachingScorer) InvalidateScore(ctx context.Context, kind domain.ScoreKind, snap *domain.PatientSnapshot) error {
	f.invalidated = append(f.invalidated, kind)
	return nil
}

func TestCrossChecker_MismatchInvalidatesCachedScore(t *testing.T) {
	local := validResult()

	remote := validResult()
	remote.Components[1].Points = 1
	remote.Components[1].Display = "14"
	remote.Total = 3

	scorer := &fakeCachingScorer{fakeScorer: fakeScorer{result: remote}}
	checker := NewCrossChecker(scorer, testLogger())

	result := checker.Check(context.Background(), testSnapshot(), local)
	assert.False(t, result.Match)
	assert.Equal(t, []domain.ScoreKind{domain.ScoreQSOFA}, scorer.invalidated)
}

func TestCrossChecker_MatchKeepsCachedScore(t *testing.T) {
	scorer := &fakeCachingScorer{fakeScorer: fakeScorer{result: validResult()}}
	checker := NewCrossChecker(scorer, testLogger())

	result := checker.Check(context.Background(), testSnapshot(), validResult())
	assert.True(t, result.Match)
	assert.Empty(t, scorer.invalidated)
}

func TestScoreCache_MemoryOnly(t *testing.T) {
	cache, err := NewScoreCache(domain.CacheConfig{LocalSize: 4, DefaultTTL: time.Minute})
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	snap := testSnapshot()

	_, hit, err := cache.Get(ctx, domain.ScoreQSOFA, snap)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Set(ctx, domain.ScoreQSOFA, snap, validResult(), 0))

	got, hit, err := cache.Get(ctx, domain.ScoreQSOFA, snap)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 2, got.Total)

	require.NoError(t, cache.Invalidate(ctx, domain.ScoreQSOFA, snap))
	_, hit, err = cache.Get(ctx, domain.ScoreQSOFA, snap)
	require.NoError(t, err)
	assert.False(t, hit)

	assert.NoError(t, cache.Ping(ctx))
}

func TestCacheKey_DeterministicAndSnapshotSensitive(t *testing.T) {
	snap := testSnapshot()

	key1, err := cacheKey(domain.ScoreSOFA, snap)
	require.NoError(t, err)
	key2, err := cacheKey(domain.ScoreSOFA, snap)
	require.NoError(t, err)
	assert.Equal(t, key1, key2)

	// A different kind produces a different key
	key3, err := cacheKey(domain.ScoreQSOFA, snap)
	require.NoError(t, err)
	assert.NotEqual(t, key1, key3)

	// Changing the snapshot produces a different key
	changed := testSnapshot()
	newValue := 90.0
	changed.Labs[0].Value = &newValue
	key4, err := cacheKey(domain.ScoreSOFA, changed)
	require.NoError(t, err)
	assert.NotEqual(t, key1, key4)
}

func TestResilientScoringClient_BreakerOpensAfterFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewScoringClient(domain.ScoringAPIConfig{
		BaseURL:    server.URL,
		RateLimit:  100,
		RetryCount: 1,
	})
	resilient := NewResilientScoringClient(client, nil, testLogger())

	for i := 0; i < 5; i++ {
		_, err := resilient.ComputeScore(context.Background(), domain.ScoreQSOFA, testSnapshot())
		assert.Error(t, err)
	}

	assert.NotEqual(t, "closed", resilient.State().String())
}
