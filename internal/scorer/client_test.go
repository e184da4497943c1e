// internal/scorer/client_test.go
package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"menuranker/internal/common/config"
	"menuranker/internal/common/database"
	"menuranker/internal/common/logger"
	"menuranker/internal/models"
	"menuranker/internal/scorecache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItems(n int) []models.MenuItem {
	items := make([]models.MenuItem, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("Test Burger %d", i)
		items = append(items, models.MenuItem{
			ItemID:     models.ItemID("chain_a", name, ""),
			SourceID:   "chain_a",
			Name:       name,
			PriceCents: 500 + i*10,
			Nutrition:  &models.Nutrition{Calories: 600 + i*10, ProteinGrams: 25},
		})
	}
	return items
}

func newTestClient(t *testing.T, serverURL string, cfg config.ScorerConfig) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	db := &database.RedisClient{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	cache := scorecache.New(db, time.Hour, logger.NewTest(t))

	cfg.BaseURL = serverURL
	if cfg.MaxBatchSize == 0 {
		cfg.MaxBatchSize = 10
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = time.Millisecond
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.RatePerMinute == 0 {
		cfg.RatePerMinute = 6000
	}

	client, err := NewClient(cfg, testRanking(), cache, logger.NewTest(t))
	require.NoError(t, err)
	return client
}

func scoringHandler(t *testing.T, calls *atomic.Int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := map[string]interface{}{"modelVersion": "scorer-v2"}
		scores := make([]map[string]interface{}, 0, len(req.Items))
		for _, item := range req.Items {
			// All request items must carry computed features.
			assert.GreaterOrEqual(t, item.Features.BaselineScore, 0.0)
			scores = append(scores, map[string]interface{}{
				"itemId":    item.ItemID,
				"score":     item.Features.BaselineScore,
				"rationale": "solid calories per dollar",
			})
		}
		resp["scores"] = scores
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func TestScoreBatchSuccess(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(scoringHandler(t, &calls))
	defer server.Close()

	client := newTestClient(t, server.URL, config.ScorerConfig{})
	items := testItems(5)

	res, err := client.ScoreBatch(context.Background(), items)
	require.NoError(t, err)
	assert.Len(t, res.Scores, 5)
	assert.Equal(t, 0, res.CacheHits)
	assert.Equal(t, 0, res.Failures)

	for _, item := range items {
		score, ok := res.Scores[item.ItemID]
		require.True(t, ok)
		assert.Equal(t, item.ContentHash(), score.ContentHash)
		assert.Equal(t, "scorer-v2", score.ModelVersion)
		assert.NotEmpty(t, score.Rationale)
	}
}

func TestScoreBatchReusesCachedScores(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(scoringHandler(t, &calls))
	defer server.Close()

	client := newTestClient(t, server.URL, config.ScorerConfig{})
	items := testItems(3)

	first, err := client.ScoreBatch(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, first.Scores, 3)
	callsAfterFirst := calls.Load()

	// Unchanged content: everything comes from the cache, no remote calls.
	second, err := client.ScoreBatch(context.Background(), items)
	require.NoError(t, err)
	assert.Len(t, second.Scores, 3)
	assert.Equal(t, 3, second.CacheHits)
	assert.Equal(t, callsAfterFirst, calls.Load())

	// A price change invalidates exactly that item's cached score.
	items[0].PriceCents += 100
	third, err := client.ScoreBatch(context.Background(), items)
	require.NoError(t, err)
	assert.Len(t, third.Scores, 3)
	assert.Equal(t, 2, third.CacheHits)
	assert.Greater(t, calls.Load(), callsAfterFirst)
}

func TestScoreBatchChunksLargeBatches(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(scoringHandler(t, &calls))
	defer server.Close()

	client := newTestClient(t, server.URL, config.ScorerConfig{MaxBatchSize: 4})

	res, err := client.ScoreBatch(context.Background(), testItems(10))
	require.NoError(t, err)
	assert.Len(t, res.Scores, 10)
	assert.Equal(t, int64(3), calls.Load()) // 4 + 4 + 2
}

func TestScoreBatchRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int64
	inner := scoringHandler(t, &atomic.Int64{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		inner(w, r)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, config.ScorerConfig{MaxRetries: 3})

	res, err := client.ScoreBatch(context.Background(), testItems(2))
	require.NoError(t, err)
	assert.Len(t, res.Scores, 2)
	assert.Equal(t, int64(3), calls.Load())
}

func TestScoreBatchRetriesRateLimits(t *testing.T) {
	var calls atomic.Int64
	inner := scoringHandler(t, &atomic.Int64{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		inner(w, r)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, config.ScorerConfig{})

	res, err := client.ScoreBatch(context.Background(), testItems(1))
	require.NoError(t, err)
	assert.Len(t, res.Scores, 1)
}

func TestScoreBatchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, config.ScorerConfig{MaxRetries: 3})

	res, err := client.ScoreBatch(context.Background(), testItems(3))
	require.NoError(t, err)
	assert.Empty(t, res.Scores)
	assert.Equal(t, 3, res.Failures)
	assert.Equal(t, int64(1), calls.Load())
}

func TestScoreBatchRejectsMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Valid JSON, wrong shape: scores out of range, no modelVersion.
		fmt.Fprint(w, `{"scores": [{"itemId": "x", "score": 250}]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, config.ScorerConfig{MaxRetries: 1})

	res, err := client.ScoreBatch(context.Background(), testItems(2))
	require.NoError(t, err)
	assert.Empty(t, res.Scores)
	assert.Equal(t, 2, res.Failures)
}

func TestScoreBatchIgnoresUnknownItemsInResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		fmt.Fprintf(w, `{"modelVersion":"v1","scores":[{"itemId":%q,"score":60},{"itemId":"phantom","score":99}]}`,
			req.Items[0].ItemID)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, config.ScorerConfig{})

	res, err := client.ScoreBatch(context.Background(), testItems(1))
	require.NoError(t, err)
	require.Len(t, res.Scores, 1)
	_, hasPhantom := res.Scores["phantom"]
	assert.False(t, hasPhantom)
}
