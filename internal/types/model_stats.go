package types

import "time"

// ModelStatistics is the cached per-version aggregate. It is computed from
// prediction rows and lives in the result cache, not the database.
type ModelStatistics struct {
	ModelVersion    string         `json:"model_version"`
	PredictionCount int64          `json:"prediction_count"`
	AvgConfidence   float64        `json:"avg_confidence"`
	ClassCounts     map[string]int `json:"class_counts"`
	ComputedAt      time.Time      `json:"computed_at"`
}
