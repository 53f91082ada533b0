package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/types"
)

func integrationLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func requireRedis(t *testing.T) {
	t.Helper()
	if os.Getenv("REDIS_ADDR") == "" {
		t.Skip("REDIS_ADDR not set; skipping redis integration test")
	}
}

func TestResultCacheRoundTrip(t *testing.T) {
	requireRedis(t)
	cache, err := NewResultCache(integrationLogger(t))
	if err != nil {
		t.Fatalf("init cache: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	hash := "test-" + uuid.NewString()

	got, err := cache.GetPrediction(ctx, hash)
	if err != nil {
		t.Fatalf("GetPrediction (miss): %v", err)
	}
	if got != nil {
		t.Fatalf("expected miss, got %+v", got)
	}

	final := 0.81
	pred := &types.Prediction{
		ID:              uuid.New(),
		ImageID:         uuid.New(),
		DiseaseLabel:    "rust",
		Confidence:      0.90,
		FinalConfidence: &final,
		ModelVersion:    "leafsense-symptom:v1",
		Severity:        "moderate",
	}
	if err := cache.SetPrediction(ctx, hash, pred, time.Minute); err != nil {
		t.Fatalf("SetPrediction: %v", err)
	}

	got, err = cache.GetPrediction(ctx, hash)
	if err != nil {
		t.Fatalf("GetPrediction (hit): %v", err)
	}
	if got == nil || got.ID != pred.ID || got.DiseaseLabel != "rust" {
		t.Fatalf("cache round trip mismatch: %+v", got)
	}

	if err := cache.InvalidatePrediction(ctx, hash); err != nil {
		t.Fatalf("InvalidatePrediction: %v", err)
	}
	got, err = cache.GetPrediction(ctx, hash)
	if err != nil {
		t.Fatalf("GetPrediction (after invalidate): %v", err)
	}
	if got != nil {
		t.Fatalf("prediction survived invalidation")
	}
}

func TestResultCacheModelStats(t *testing.T) {
	requireRedis(t)
	cache, err := NewResultCache(integrationLogger(t))
	if err != nil {
		t.Fatalf("init cache: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	version := "test:" + uuid.NewString()

	stats := &types.ModelStatistics{
		ModelVersion:    version,
		PredictionCount: 10,
		AvgConfidence:   0.8,
		ClassCounts:     map[string]int{"rust": 7, "healthy": 3},
		ComputedAt:      time.Now(),
	}
	if err := cache.SetModelStats(ctx, version, stats, time.Minute); err != nil {
		t.Fatalf("SetModelStats: %v", err)
	}
	got, err := cache.GetModelStats(ctx, version)
	if err != nil {
		t.Fatalf("GetModelStats: %v", err)
	}
	if got == nil || got.PredictionCount != 10 || got.ClassCounts["rust"] != 7 {
		t.Fatalf("stats round trip mismatch: %+v", got)
	}

	if err := cache.InvalidateModelStats(ctx, version); err != nil {
		t.Fatalf("InvalidateModelStats: %v", err)
	}
}

func TestResultCacheIsHealthy(t *testing.T) {
	requireRedis(t)
	cache, err := NewResultCache(integrationLogger(t))
	if err != nil {
		t.Fatalf("init cache: %v", err)
	}
	defer cache.Close()

	if !cache.IsHealthy(context.Background()) {
		t.Fatalf("IsHealthy=false against a reachable redis")
	}
}
