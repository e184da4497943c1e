// internal/scorecache/scorecache.go
// Package scorecache persists value scores keyed by item identity and content
// hash, so unchanged items skip the external scoring service entirely.
package scorecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"menuranker/internal/common/database"
	"menuranker/internal/common/logger"
	"menuranker/internal/common/metrics"
	"menuranker/internal/models"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	db     *database.RedisClient
	ttl    time.Duration
	logger logger.Logger
}

func New(db *database.RedisClient, ttl time.Duration, log logger.Logger) *Cache {
	return &Cache{db: db, ttl: ttl, logger: log}
}

func key(itemID, contentHash string) string {
	return fmt.Sprintf("score:%s:%s", itemID, contentHash)
}

// Get returns the cached score for (itemID, contentHash), or (nil, nil) on a
// miss. A content change produces a different key, so stale scores are never
// returned for a repriced item.
func (c *Cache) Get(ctx context.Context, itemID, contentHash string) (*models.ValueScore, error) {
	raw, err := c.db.Get(ctx, key(itemID, contentHash))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.ScoreCacheMisses.Inc()
			return nil, nil
		}
		return nil, fmt.Errorf("score cache read: %w", err)
	}

	var score models.ValueScore
	if err := json.Unmarshal([]byte(raw), &score); err != nil {
		// A corrupt entry behaves like a miss; the next Put overwrites it.
		c.logger.WithError(err).Warn("Discarding corrupt score cache entry", map[string]interface{}{
			"itemId": itemID,
		})
		metrics.ScoreCacheMisses.Inc()
		return nil, nil
	}

	metrics.ScoreCacheHits.Inc()
	return &score, nil
}

// Put stores a score under its item and content hash with the configured TTL.
func (c *Cache) Put(ctx context.Context, score models.ValueScore) error {
	raw, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("score cache encode: %w", err)
	}
	if err := c.db.Set(ctx, key(score.ItemID, score.ContentHash), raw, c.ttl); err != nil {
		return fmt.Errorf("score cache write: %w", err)
	}
	return nil
}
