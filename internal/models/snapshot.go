// internal/models/snapshot.go
package models

import (
	"sort"
	"time"
)

// RankedItem pairs a menu item with its value score inside a snapshot.
type RankedItem struct {
	Item  MenuItem   `json:"item"`
	Score ValueScore `json:"score"`
}

// Snapshot is one complete ranked dataset. It is built in full by the
// aggregator and committed atomically; readers never see it half-filled.
type Snapshot struct {
	Items            []RankedItem `json:"items"` // descending by score, itemId tie-break
	GeneratedAt      time.Time    `json:"generatedAt"`
	SourcesSucceeded []string     `json:"sourcesSucceeded"`
	SourcesFailed    []string     `json:"sourcesFailed"`
}

// SortItems orders items descending by score with the lexicographically lower
// ItemID first on ties, so merges are deterministic.
func (s *Snapshot) SortItems() {
	sort.Slice(s.Items, func(i, j int) bool {
		if s.Items[i].Score.Score != s.Items[j].Score.Score {
			return s.Items[i].Score.Score > s.Items[j].Score.Score
		}
		return s.Items[i].Item.ItemID < s.Items[j].Item.ItemID
	})
}

// CycleState names the aggregator's position in one refresh cycle.
type CycleState string

const (
	CycleIdle            CycleState = "Idle"
	CycleFetchingSources CycleState = "FetchingSources"
	CycleNormalizing     CycleState = "Normalizing"
	CycleScoring         CycleState = "Scoring"
	CycleMerging         CycleState = "Merging"
	CycleCommitted       CycleState = "Committed"
	CycleFailed          CycleState = "FailedCycle"
)

// CycleResult records one refresh attempt for observability. It is emitted as
// a structured log record and counted in metrics, never served to clients.
type CycleResult struct {
	CycleID          string        `json:"cycleId"`
	State            CycleState    `json:"state"`
	StartedAt        time.Time     `json:"startedAt"`
	Duration         time.Duration `json:"duration"`
	SourcesSucceeded []string      `json:"sourcesSucceeded"`
	SourcesFailed    []string      `json:"sourcesFailed"`
	RawItems         int           `json:"rawItems"`
	NormalizedItems  int           `json:"normalizedItems"`
	DroppedItems     int           `json:"droppedItems"`
	ScoredItems      int           `json:"scoredItems"`
	ScoreCacheHits   int           `json:"scoreCacheHits"`
	ScoringFailures  int           `json:"scoringFailures"`
	Error            string        `json:"error,omitempty"`
}
