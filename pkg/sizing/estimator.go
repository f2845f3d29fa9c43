// Package sizing estimates audience sizes by fanning out concurrent requests
// to the count-estimation service. Estimation is advisory: failures degrade
// to a caller-supplied fallback instead of propagating.
package sizing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketops/delivery-engine/pkg/types"
)

type countResponse struct {
	Count int64 `json:"count"`
}

// Estimator issues concurrent size-count requests with a per-request timeout.
type Estimator struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	logger  zerolog.Logger
}

// NewEstimator creates an estimator against the count service at baseURL.
func NewEstimator(baseURL string, timeout time.Duration, logger zerolog.Logger) *Estimator {
	return &Estimator{
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{},
		logger:  logger,
	}
}

// EstimateSizes returns a size for every audience. Each audience gets one
// request bounded by the per-request timeout; on timeout, transport error or
// a non-success response the audience's size is the fallback. All requests
// run concurrently and the call blocks until every one has resolved — there
// is no early return on first failure.
func (e *Estimator) EstimateSizes(ctx context.Context, token string, audiences []types.Audience, fallback int64) map[string]int64 {
	sizes := make(map[string]int64, len(audiences))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, aud := range audiences {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			size, err := e.countOne(ctx, token, id)
			if err != nil {
				e.logger.Warn().Err(err).Str("audience_id", id).Int64("fallback", fallback).Msg("size estimation failed, using fallback")
				size = fallback
			}

			mu.Lock()
			sizes[id] = size
			mu.Unlock()
		}(aud.ID)
	}

	wg.Wait()
	return sizes
}

func (e *Estimator) countOne(ctx context.Context, token, audienceID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/audiences/%s/count", e.baseURL, audienceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build count request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("count request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("count request returned %d", resp.StatusCode)
	}

	var body countResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return body.Count, nil
}
