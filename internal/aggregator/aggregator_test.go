// internal/aggregator/aggregator_test.go
package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"menuranker/internal/adapters"
	"menuranker/internal/common/config"
	stderrors "menuranker/internal/common/errors"
	"menuranker/internal/common/logger"
	"menuranker/internal/models"
	"menuranker/internal/normalizer"
	"menuranker/internal/scorer"
	"menuranker/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	sourceID string
	items    []models.RawItem
	err      error
	hang     bool
}

func (f *fakeAdapter) SourceID() string { return f.sourceID }

func (f *fakeAdapter) Fetch(ctx context.Context) ([]models.RawItem, error) {
	if f.hang {
		<-ctx.Done()
		return nil, stderrors.NewAdapterTimeoutError(f.sourceID)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

// stubScorer scores every item at its price in dollars, or fails items listed
// in failIDs.
type stubScorer struct {
	failIDs map[string]bool
	err     error
}

func (s *stubScorer) ScoreBatch(_ context.Context, items []models.MenuItem) (*scorer.BatchResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	res := &scorer.BatchResult{Scores: map[string]models.ValueScore{}}
	for _, item := range items {
		if s.failIDs[item.ItemID] {
			res.Failures++
			continue
		}
		res.Scores[item.ItemID] = models.ValueScore{
			ItemID:      item.ItemID,
			Score:       float64(item.PriceCents) / 100,
			ContentHash: item.ContentHash(),
		}
	}
	return res, nil
}

func rawMenu(names ...string) []models.RawItem {
	items := make([]models.RawItem, 0, len(names))
	for i, name := range names {
		items = append(items, models.RawItem{
			Payload: map[string]interface{}{
				"name":        name,
				"price_cents": 400 + i*100,
			},
			FetchedAt: time.Now().UTC(),
		})
	}
	return items
}

func registryFor(fakes ...*fakeAdapter) *adapters.Registry {
	byID := map[string]*fakeAdapter{}
	for _, f := range fakes {
		byID[f.sourceID] = f
	}
	reg := adapters.NewRegistry()
	reg.Register("fake", func(src config.SourceConfig) (adapters.Adapter, error) {
		return byID[src.ID], nil
	})
	return reg
}

func newAggregator(t *testing.T, sc ScoreClient, fakes ...*fakeAdapter) (*Aggregator, *store.Store) {
	t.Helper()
	sources := make([]config.SourceConfig, 0, len(fakes))
	for _, f := range fakes {
		sources = append(sources, config.SourceConfig{ID: f.sourceID, Adapter: "fake"})
	}
	st := store.New(nil, time.Hour, logger.NewTest(t))
	agg, err := New(
		config.RefreshConfig{
			CycleTimeout:   5 * time.Second,
			AdapterTimeout: 100 * time.Millisecond,
			MaxConcurrent:  2,
		},
		sources,
		registryFor(fakes...),
		normalizer.New(logger.NewTest(t)),
		sc,
		st,
		logger.NewTest(t),
	)
	require.NoError(t, err)
	return agg, st
}

func TestRunCycleHappyPath(t *testing.T) {
	agg, st := newAggregator(t, &stubScorer{},
		&fakeAdapter{sourceID: "chain_a", items: rawMenu("Burger", "Fries")},
		&fakeAdapter{sourceID: "chain_b", items: rawMenu("Taco")},
	)

	result, err := agg.RunCycle(context.Background(), "manual")
	require.NoError(t, err)
	assert.Equal(t, models.CycleCommitted, result.State)
	assert.Equal(t, []string{"chain_a", "chain_b"}, result.SourcesSucceeded)
	assert.Empty(t, result.SourcesFailed)
	assert.Equal(t, 3, result.RawItems)
	assert.Equal(t, 3, result.NormalizedItems)
	assert.Equal(t, 3, result.ScoredItems)
	assert.NotEmpty(t, result.CycleID)

	snap := st.Current()
	require.NotNil(t, snap)
	assert.Len(t, snap.Items, 3)
	// Ranked descending by score.
	for i := 1; i < len(snap.Items); i++ {
		assert.GreaterOrEqual(t, snap.Items[i-1].Score.Score, snap.Items[i].Score.Score)
	}
}

func TestRunCycleSurvivesOneFailedSource(t *testing.T) {
	agg, st := newAggregator(t, &stubScorer{},
		&fakeAdapter{sourceID: "chain_a", items: rawMenu("Burger", "Fries")},
		&fakeAdapter{sourceID: "chain_b", hang: true},
	)

	result, err := agg.RunCycle(context.Background(), "scheduled")
	require.NoError(t, err)
	assert.Equal(t, models.CycleCommitted, result.State)
	assert.Equal(t, []string{"chain_a"}, result.SourcesSucceeded)
	assert.Equal(t, []string{"chain_b"}, result.SourcesFailed)

	snap := st.Current()
	require.NotNil(t, snap)
	assert.Len(t, snap.Items, 2)
	assert.Equal(t, []string{"chain_b"}, snap.SourcesFailed)
}

func TestRunCycleFatalWhenAllSourcesFail(t *testing.T) {
	agg, st := newAggregator(t, &stubScorer{},
		&fakeAdapter{sourceID: "chain_a", err: errors.New("dns broke")},
		&fakeAdapter{sourceID: "chain_b", hang: true},
	)

	result, err := agg.RunCycle(context.Background(), "scheduled")
	require.Error(t, err)
	assert.Equal(t, models.CycleFailed, result.State)
	assert.Equal(t, stderrors.ErrCodeCycleFatal, stderrors.CodeOf(err))
	assert.Nil(t, st.Current())
}

func TestRunCyclePreservesPriorSnapshotOnFailure(t *testing.T) {
	good := &fakeAdapter{sourceID: "chain_a", items: rawMenu("Burger")}
	agg, st := newAggregator(t, &stubScorer{}, good)

	_, err := agg.RunCycle(context.Background(), "manual")
	require.NoError(t, err)
	committed := st.Current()
	require.NotNil(t, committed)

	// The source breaks; the next cycle fails and the old snapshot stays.
	good.items = nil
	good.err = errors.New("menu page redesigned")

	_, err = agg.RunCycle(context.Background(), "scheduled")
	require.Error(t, err)
	assert.Same(t, committed, st.Current())
}

func TestRunCycleFatalWhenNothingNormalizes(t *testing.T) {
	garbage := []models.RawItem{{Payload: map[string]interface{}{"price_cents": 100}}}
	agg, _ := newAggregator(t, &stubScorer{},
		&fakeAdapter{sourceID: "chain_a", items: garbage},
	)

	result, err := agg.RunCycle(context.Background(), "manual")
	require.Error(t, err)
	assert.Equal(t, models.CycleFailed, result.State)
	assert.Equal(t, 1, result.DroppedItems)
}

func TestRunCycleFatalWhenNothingScores(t *testing.T) {
	items := rawMenu("Burger", "Fries")
	failAll := map[string]bool{
		models.ItemID("chain_a", "Burger", ""): true,
		models.ItemID("chain_a", "Fries", ""):  true,
	}
	agg, st := newAggregator(t, &stubScorer{failIDs: failAll},
		&fakeAdapter{sourceID: "chain_a", items: items},
	)

	_, err := agg.RunCycle(context.Background(), "manual")
	require.Error(t, err)
	assert.Equal(t, stderrors.ErrCodeCycleFatal, stderrors.CodeOf(err))
	assert.Nil(t, st.Current())
}

func TestRunCycleExcludesUnscoredItems(t *testing.T) {
	agg, st := newAggregator(t,
		&stubScorer{failIDs: map[string]bool{models.ItemID("chain_a", "Fries", ""): true}},
		&fakeAdapter{sourceID: "chain_a", items: rawMenu("Burger", "Fries", "Shake")},
	)

	result, err := agg.RunCycle(context.Background(), "manual")
	require.NoError(t, err)
	assert.Equal(t, 2, result.ScoredItems)
	assert.Equal(t, 1, result.ScoringFailures)

	snap := st.Current()
	require.NotNil(t, snap)
	require.Len(t, snap.Items, 2)
	for _, ranked := range snap.Items {
		assert.NotEqual(t, "Fries", ranked.Item.Name)
	}
}

func TestNewRejectsUnknownAdapter(t *testing.T) {
	st := store.New(nil, time.Hour, logger.NewTest(t))
	_, err := New(
		config.RefreshConfig{CycleTimeout: time.Second, AdapterTimeout: time.Second, MaxConcurrent: 1},
		[]config.SourceConfig{{ID: "chain_a", Adapter: "telepathy"}},
		adapters.NewRegistry(),
		normalizer.New(logger.NewTest(t)),
		&stubScorer{},
		st,
		logger.NewTest(t),
	)
	require.Error(t, err)
}
