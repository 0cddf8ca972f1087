// Package remote implements the client for the optional server-side scoring
// API. The service computes the same severity scores from the same snapshot;
// its results are used to cross-check local computations, never to replace
// them.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hellf17/clinical-corvus-sub005/internal/domain"
)

// ScoringClient handles interactions with the remote scoring API
type ScoringClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	retryCount int
}

// scoreRequest is the wire shape sent to the remote service.
type scoreRequest struct {
	ScoreKind string                  `json:"score_kind"`
	Snapshot  *domain.PatientSnapshot `json:"snapshot"`
}

// NewScoringClient creates a new remote scoring API client
func NewScoringClient(config domain.ScoringAPIConfig) *ScoringClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10
	}
	if config.RetryCount == 0 {
		config.RetryCount = 3
	}

	return &ScoringClient{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		retryCount: config.RetryCount,
	}
}

// ComputeScore requests a server-side computation of one score family.
func (c *ScoringClient) ComputeScore(ctx context.Context, kind domain.ScoreKind, snap *domain.PatientSnapshot) (*domain.ScoreResult, error) {
	if !kind.IsValid() {
		return nil, domain.ErrInvalidScoreKind
	}

	// Rate limiting
	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	body, err := json.Marshal(scoreRequest{
		ScoreKind: kind.String(),
		Snapshot:  snap,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode score request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		result, err := c.doRequest(ctx, body)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("remote scoring failed after %d attempts: %w", c.retryCount+1, lastErr)
}

func (c *ScoringClient) doRequest(ctx context.Context, body []byte) (*domain.ScoreResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scores", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("remote scoring returned status %d: %s", resp.StatusCode, raw)
	}

	var result domain.ScoreResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode score response: %w", err)
	}

	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("remote score failed validation: %w", err)
	}

	return &result, nil
}
