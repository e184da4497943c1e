// internal/aggregator/aggregator.go
// Package aggregator runs the refresh cycle: fetch every source, normalize,
// score, and commit one complete ranked snapshot. A cycle either commits in
// full or leaves the previous snapshot untouched.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"menuranker/internal/adapters"
	"menuranker/internal/common/config"
	stderrors "menuranker/internal/common/errors"
	"menuranker/internal/common/logger"
	"menuranker/internal/common/metrics"
	"menuranker/internal/models"
	"menuranker/internal/normalizer"
	"menuranker/internal/scorer"
	"menuranker/internal/store"

	"github.com/google/uuid"
)

// ScoreClient is what the aggregator needs from the scoring layer.
type ScoreClient interface {
	ScoreBatch(ctx context.Context, items []models.MenuItem) (*scorer.BatchResult, error)
}

type Aggregator struct {
	sources    []config.SourceConfig
	adapters   map[string]adapters.Adapter // by source ID
	normalizer *normalizer.Normalizer
	scorer     ScoreClient
	store      *store.Store
	cfg        config.RefreshConfig
	logger     logger.Logger
}

// New builds the per-source adapters up front so a misconfigured source fails
// at startup, not six hours later in the first cycle.
func New(
	cfg config.RefreshConfig,
	sources []config.SourceConfig,
	registry *adapters.Registry,
	norm *normalizer.Normalizer,
	sc ScoreClient,
	st *store.Store,
	log logger.Logger,
) (*Aggregator, error) {
	built := make(map[string]adapters.Adapter, len(sources))
	for _, src := range sources {
		a, err := registry.Build(src)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.ID, err)
		}
		built[src.ID] = a
	}

	return &Aggregator{
		sources:    sources,
		adapters:   built,
		normalizer: norm,
		scorer:     sc,
		store:      st,
		cfg:        cfg,
		logger:     log,
	}, nil
}

type fetchOutcome struct {
	sourceID string
	raw      []models.RawItem
	err      error
}

// RunCycle executes one refresh. The returned CycleResult is always populated;
// err is non-nil only when the cycle failed and nothing was committed.
func (a *Aggregator) RunCycle(ctx context.Context, trigger string) (*models.CycleResult, error) {
	result := &models.CycleResult{
		CycleID:   uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	log := a.logger.WithFields(map[string]interface{}{
		"cycleId": result.CycleID,
		"trigger": trigger,
	})
	log.Info("Refresh cycle started", nil)

	ctx, cancel := context.WithTimeout(ctx, a.cfg.CycleTimeout)
	defer cancel()

	err := a.run(ctx, result, log)
	result.Duration = time.Since(result.StartedAt)
	metrics.CycleDuration.WithLabelValues(string(result.State)).Observe(result.Duration.Seconds())

	if err != nil {
		result.State = models.CycleFailed
		result.Error = err.Error()
		metrics.CyclesFailed.WithLabelValues(trigger, string(stderrors.CodeOf(err))).Inc()
		log.WithError(err).Error("Refresh cycle failed, previous snapshot remains live", map[string]interface{}{
			"duration": result.Duration.String(),
		})
		return result, err
	}

	metrics.CyclesCompleted.WithLabelValues(trigger).Inc()
	log.Info("Refresh cycle committed", map[string]interface{}{
		"duration":        result.Duration.String(),
		"items":           result.ScoredItems,
		"cacheHits":       result.ScoreCacheHits,
		"sourcesFailed":   len(result.SourcesFailed),
		"scoringFailures": result.ScoringFailures,
	})
	return result, nil
}

func (a *Aggregator) run(ctx context.Context, result *models.CycleResult, log logger.Logger) error {
	result.State = models.CycleFetchingSources
	rawBySource := a.fetchSources(ctx, result, log)
	if len(rawBySource) == 0 {
		return stderrors.NewCycleFatalError("every configured source failed to fetch")
	}

	result.State = models.CycleNormalizing
	items := a.normalizeAll(rawBySource, result)
	if len(items) == 0 {
		return stderrors.NewCycleFatalError("no raw item survived normalization")
	}

	result.State = models.CycleScoring
	batch, err := a.scorer.ScoreBatch(ctx, items)
	if err != nil {
		return stderrors.NewCycleFatalError(fmt.Sprintf("scoring aborted: %s", err))
	}
	result.ScoreCacheHits = batch.CacheHits
	result.ScoringFailures = batch.Failures
	if len(batch.Scores) == 0 {
		return stderrors.NewCycleFatalError("no item could be scored")
	}

	result.State = models.CycleMerging
	snap := &models.Snapshot{
		GeneratedAt:      time.Now().UTC(),
		SourcesSucceeded: result.SourcesSucceeded,
		SourcesFailed:    result.SourcesFailed,
	}
	for _, item := range items {
		score, ok := batch.Scores[item.ItemID]
		if !ok {
			// Unscored items sit this snapshot out rather than ranking
			// with a made-up score.
			continue
		}
		snap.Items = append(snap.Items, models.RankedItem{Item: item, Score: score})
	}
	result.ScoredItems = len(snap.Items)

	if err := a.store.Commit(ctx, snap); err != nil {
		return stderrors.NewCycleFatalError(fmt.Sprintf("snapshot commit: %s", err))
	}
	result.State = models.CycleCommitted
	return nil
}

// fetchSources runs all adapters in parallel under the per-source timeout.
// A failed source is recorded and skipped; it never aborts the cycle.
func (a *Aggregator) fetchSources(ctx context.Context, result *models.CycleResult, log logger.Logger) map[string][]models.RawItem {
	outcomes := make(chan fetchOutcome, len(a.sources))
	sem := make(chan struct{}, a.cfg.MaxConcurrent)
	var wg sync.WaitGroup

	for _, src := range a.sources {
		wg.Add(1)
		go func(src config.SourceConfig) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.AdapterTimeout)
			defer cancel()

			raw, err := a.adapters[src.ID].Fetch(fetchCtx)
			outcomes <- fetchOutcome{sourceID: src.ID, raw: raw, err: err}
		}(src)
	}
	wg.Wait()
	close(outcomes)

	rawBySource := make(map[string][]models.RawItem, len(a.sources))
	for out := range outcomes {
		if out.err != nil {
			result.SourcesFailed = append(result.SourcesFailed, out.sourceID)
			metrics.SourceFetchFailures.WithLabelValues(out.sourceID).Inc()
			log.WithError(out.err).Warn("Source fetch failed, continuing without it", map[string]interface{}{
				"sourceId": out.sourceID,
			})
			continue
		}
		result.SourcesSucceeded = append(result.SourcesSucceeded, out.sourceID)
		result.RawItems += len(out.raw)
		rawBySource[out.sourceID] = out.raw
	}
	sort.Strings(result.SourcesSucceeded)
	sort.Strings(result.SourcesFailed)
	return rawBySource
}

func (a *Aggregator) normalizeAll(rawBySource map[string][]models.RawItem, result *models.CycleResult) []models.MenuItem {
	// Deterministic source order keeps cycle logs and merges reproducible.
	sourceIDs := make([]string, 0, len(rawBySource))
	for id := range rawBySource {
		sourceIDs = append(sourceIDs, id)
	}
	sort.Strings(sourceIDs)

	var items []models.MenuItem
	for _, id := range sourceIDs {
		res := a.normalizer.Normalize(id, rawBySource[id])
		items = append(items, res.Items...)
		result.NormalizedItems += len(res.Items)
		result.DroppedItems += res.Dropped
	}
	return items
}
