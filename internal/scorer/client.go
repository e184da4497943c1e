// internal/scorer/client.go
// Package scorer talks to the external value-scoring service, with a
// content-hash cache in front of it and a shared rate limit behind it.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"menuranker/internal/common/config"
	stderrors "menuranker/internal/common/errors"
	"menuranker/internal/common/logger"
	"menuranker/internal/common/metrics"
	"menuranker/internal/models"
	"menuranker/internal/scorecache"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/time/rate"
)

// responseSchema pins the shape we require from the scoring service. Anything
// that fails validation is treated as malformed, not retried.
const responseSchema = `{
	"type": "object",
	"required": ["modelVersion", "scores"],
	"properties": {
		"modelVersion": {"type": "string", "minLength": 1},
		"scores": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["itemId", "score"],
				"properties": {
					"itemId": {"type": "string", "minLength": 1},
					"score": {"type": "number", "minimum": 0, "maximum": 100},
					"rationale": {"type": "string"}
				}
			}
		}
	}
}`

type scoreRequest struct {
	Items []scoreRequestItem `json:"items"`
}

type scoreRequestItem struct {
	ItemID           string            `json:"itemId"`
	SourceID         string            `json:"sourceId"`
	Name             string            `json:"name"`
	Variant          string            `json:"variant,omitempty"`
	PriceCents       int               `json:"priceCents"`
	PortionSizeGrams int               `json:"portionSizeGrams,omitempty"`
	Nutrition        *models.Nutrition `json:"nutrition,omitempty"`
	Features         FeaturePayload    `json:"features"`
}

type scoreResponse struct {
	ModelVersion string `json:"modelVersion"`
	Scores       []struct {
		ItemID    string  `json:"itemId"`
		Score     float64 `json:"score"`
		Rationale string  `json:"rationale"`
	} `json:"scores"`
}

// BatchResult reports one ScoreBatch call. Items that could not be scored are
// simply absent from Scores; the caller decides whether that is fatal.
type BatchResult struct {
	Scores    map[string]models.ValueScore
	CacheHits int
	Failures  int
}

type Client struct {
	httpClient *http.Client
	cfg        config.ScorerConfig
	ranking    config.RankingConfig
	cache      *scorecache.Cache
	limiter    *rate.Limiter
	schema     *gojsonschema.Schema
	logger     logger.Logger
}

func NewClient(cfg config.ScorerConfig, ranking config.RankingConfig, cache *scorecache.Cache, log logger.Logger) (*Client, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(responseSchema))
	if err != nil {
		return nil, fmt.Errorf("compile scorer response schema: %w", err)
	}

	// One token bucket shared by every concurrent chunk, matching the
	// service's published per-minute quota.
	limiter := rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), cfg.RatePerMinute)

	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:        cfg,
		ranking:    ranking,
		cache:      cache,
		limiter:    limiter,
		schema:     schema,
		logger:     log,
	}, nil
}

// ScoreBatch returns a value score for as many items as possible. Unchanged
// items are served from the cache; the rest are chunked, scored remotely under
// the shared rate limit, and written back to the cache.
func (c *Client) ScoreBatch(ctx context.Context, items []models.MenuItem) (*BatchResult, error) {
	res := &BatchResult{Scores: make(map[string]models.ValueScore, len(items))}

	toScore := make([]models.MenuItem, 0, len(items))
	for _, item := range items {
		cached, err := c.cache.Get(ctx, item.ItemID, item.ContentHash())
		if err != nil {
			// Cache trouble degrades to a remote call, never to a lost item.
			c.logger.WithError(err).Warn("Score cache unavailable, scoring remotely", map[string]interface{}{
				"itemId": item.ItemID,
			})
		}
		if cached != nil {
			res.Scores[item.ItemID] = *cached
			res.CacheHits++
			continue
		}
		toScore = append(toScore, item)
	}

	if len(toScore) == 0 {
		return res, nil
	}

	chunks := chunkItems(toScore, c.cfg.MaxBatchSize)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, c.cfg.MaxConcurrent)
	)

	for _, chunk := range chunks {
		wg.Add(1)
		go func(chunk []models.MenuItem) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				res.Failures += len(chunk)
				mu.Unlock()
				return
			}

			scores, err := c.scoreChunk(ctx, chunk)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failures += len(chunk)
				metrics.ScoringFailures.WithLabelValues(string(stderrors.CodeOf(err))).Add(float64(len(chunk)))
				c.logger.WithError(err).Error("Scoring chunk failed", map[string]interface{}{
					"items": len(chunk),
				})
				return
			}
			for id, score := range scores {
				res.Scores[id] = score
			}
			res.Failures += len(chunk) - len(scores)
		}(chunk)
	}
	wg.Wait()

	return res, nil
}

// scoreChunk performs one remote call with retries. 429 and 5xx back off and
// retry; 4xx and schema violations fail the chunk immediately.
func (c *Client) scoreChunk(ctx context.Context, chunk []models.MenuItem) (map[string]models.ValueScore, error) {
	req := scoreRequest{Items: make([]scoreRequestItem, 0, len(chunk))}
	byID := make(map[string]models.MenuItem, len(chunk))
	for _, item := range chunk {
		byID[item.ItemID] = item
		req.Items = append(req.Items, scoreRequestItem{
			ItemID:           item.ItemID,
			SourceID:         item.SourceID,
			Name:             item.Name,
			Variant:          item.Variant,
			PriceCents:       item.PriceCents,
			PortionSizeGrams: item.PortionSizeGrams,
			Nutrition:        item.Nutrition,
			Features:         ComputeFeatures(item, c.ranking),
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, stderrors.NewScoringMalformedError(err.Error())
	}

	backoff := c.cfg.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, stderrors.NewScoringTransientError(ctx.Err())
			}
			backoff *= 2
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, stderrors.NewScoringTransientError(err)
		}

		resp, err := c.doRequest(ctx, body)
		if err != nil {
			lastErr = err
			if !stderrors.IsRetryable(err) {
				return nil, err
			}
			continue
		}

		return c.parseResponse(ctx, resp, byID)
	}

	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/score", bytes.NewReader(body))
	if err != nil {
		return nil, stderrors.NewScoringMalformedError(err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, stderrors.NewScoringTransientError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, stderrors.NewScoringTransientError(err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return respBody, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, stderrors.NewScoringRateLimitedError(fmt.Sprintf("status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, stderrors.NewScoringTransientError(fmt.Errorf("status %d: %s", resp.StatusCode, truncate(respBody)))
	default:
		return nil, stderrors.NewScoringMalformedError(fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(respBody)))
	}
}

func (c *Client) parseResponse(ctx context.Context, raw []byte, byID map[string]models.MenuItem) (map[string]models.ValueScore, error) {
	validation, err := c.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, stderrors.NewScoringMalformedError(err.Error())
	}
	if !validation.Valid() {
		return nil, stderrors.NewScoringMalformedError(fmt.Sprintf("response schema: %v", validation.Errors()))
	}

	var resp scoreResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, stderrors.NewScoringMalformedError(err.Error())
	}

	now := time.Now().UTC()
	scores := make(map[string]models.ValueScore, len(resp.Scores))
	for _, s := range resp.Scores {
		item, ok := byID[s.ItemID]
		if !ok {
			// The service must not invent items we never sent.
			c.logger.Warn("Scoring response contains unknown item, ignoring", map[string]interface{}{
				"itemId": s.ItemID,
			})
			continue
		}
		score := models.ValueScore{
			ItemID:       s.ItemID,
			Score:        s.Score,
			Rationale:    s.Rationale,
			ScoredAt:     now,
			ModelVersion: resp.ModelVersion,
			ContentHash:  item.ContentHash(),
		}
		scores[s.ItemID] = score

		if err := c.cache.Put(ctx, score); err != nil {
			c.logger.WithError(err).Warn("Failed to cache score", map[string]interface{}{
				"itemId": s.ItemID,
			})
		}
	}

	return scores, nil
}

func chunkItems(items []models.MenuItem, size int) [][]models.MenuItem {
	if size <= 0 {
		size = len(items)
	}
	var chunks [][]models.MenuItem
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
