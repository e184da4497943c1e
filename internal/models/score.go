// internal/models/score.go
package models

import "time"

// ValueScore is the scoring service's verdict for one item. ContentHash
// records what the score was computed against; when the item's hash drifts,
// the score is stale and must be recomputed.
type ValueScore struct {
	ItemID       string    `json:"itemId"`
	Score        float64   `json:"score"` // normalized 0-100
	Rationale    string    `json:"rationale,omitempty"`
	ScoredAt     time.Time `json:"scoredAt"`
	ModelVersion string    `json:"modelVersion"`
	ContentHash  string    `json:"contentHash"`
}
