// internal/store/store.go
// Package store holds the current ranked snapshot. Readers always see either
// the previous complete snapshot or the new one, never a mix.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"menuranker/internal/common/database"
	"menuranker/internal/common/logger"
	"menuranker/internal/models"

	"github.com/redis/go-redis/v9"
)

const snapshotKey = "snapshot:latest"

// ErrNoSnapshot is returned by queries before the first successful cycle.
var ErrNoSnapshot = errors.New("no snapshot committed yet")

// Query narrows TopN results. The zero value means no filtering.
type Query struct {
	Limit        int
	SourceID     string
	AppExclusive bool // only items flagged app-exclusive
}

type Store struct {
	current  atomic.Pointer[models.Snapshot]
	previous atomic.Pointer[models.Snapshot]
	db       *database.RedisClient
	ttl      time.Duration
	logger   logger.Logger
}

// New creates a store. db may be nil in tests that do not exercise
// persistence.
func New(db *database.RedisClient, snapshotTTL time.Duration, log logger.Logger) *Store {
	return &Store{db: db, ttl: snapshotTTL, logger: log}
}

// Commit atomically publishes snap as the current snapshot and persists it so
// a restart can serve data before the first cycle finishes. The in-memory swap
// happens even when persistence fails; redis is a warm-start convenience, not
// the source of truth.
func (s *Store) Commit(ctx context.Context, snap *models.Snapshot) error {
	snap.SortItems()
	s.previous.Store(s.current.Load())
	s.current.Store(snap)

	if s.db == nil {
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot encode: %w", err)
	}
	if err := s.db.Set(ctx, snapshotKey, raw, s.ttl); err != nil {
		s.logger.WithError(err).Warn("Snapshot persisted in memory only", nil)
	}
	return nil
}

// LoadPersisted restores the last committed snapshot from redis, if any.
// Called once at startup before the scheduler begins.
func (s *Store) LoadPersisted(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	raw, err := s.db.Get(ctx, snapshotKey)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("snapshot read: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return fmt.Errorf("snapshot decode: %w", err)
	}
	snap.SortItems()
	s.current.Store(&snap)
	s.logger.Info("Restored persisted snapshot", map[string]interface{}{
		"items":       len(snap.Items),
		"generatedAt": snap.GeneratedAt,
	})
	return nil
}

// Current returns the live snapshot, or nil before the first commit.
func (s *Store) Current() *models.Snapshot {
	return s.current.Load()
}

// Previous returns the snapshot replaced by the latest commit, or nil.
func (s *Store) Previous() *models.Snapshot {
	return s.previous.Load()
}

// TopN returns the highest-scored items matching q. The result slice is
// freshly allocated; callers may not mutate snapshot internals through it.
func (s *Store) TopN(q Query) ([]models.RankedItem, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	out := make([]models.RankedItem, 0, limit)
	for _, ranked := range snap.Items {
		if q.SourceID != "" && !strings.EqualFold(ranked.Item.SourceID, q.SourceID) {
			continue
		}
		if q.AppExclusive && !ranked.Item.IsAppExclusive {
			continue
		}
		out = append(out, ranked)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
