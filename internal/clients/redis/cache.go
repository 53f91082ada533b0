package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/types"
	"github.com/grovelabs/leafsense-backend/internal/utils"
)

// ResultCache maps image fingerprints to prior diagnoses and model versions
// to aggregate statistics. Expiry is enforced by Redis, never by callers.
// Every operation carries a bounded timeout so a slow cache degrades the
// request instead of blocking it; callers treat unavailability as a cache
// miss.
type ResultCache interface {
	GetPrediction(ctx context.Context, imageHash string) (*types.Prediction, error)
	SetPrediction(ctx context.Context, imageHash string, p *types.Prediction, ttl time.Duration) error
	InvalidatePrediction(ctx context.Context, imageHash string) error
	GetModelStats(ctx context.Context, modelVersion string) (*types.ModelStatistics, error)
	SetModelStats(ctx context.Context, modelVersion string, stats *types.ModelStatistics, ttl time.Duration) error
	InvalidateModelStats(ctx context.Context, modelVersion string) error
	IsHealthy(ctx context.Context) bool
	Close() error
}

type resultCache struct {
	log       *logger.Logger
	rdb       *goredis.Client
	opTimeout time.Duration
}

func NewResultCache(baseLog *logger.Logger) (ResultCache, error) {
	if baseLog == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	opTimeout := utils.GetEnvAsDuration("CACHE_OP_TIMEOUT", 500*time.Millisecond, baseLog)

	return &resultCache{
		log:       baseLog.With("service", "ResultCache"),
		rdb:       rdb,
		opTimeout: opTimeout,
	}, nil
}

func predictionKey(imageHash string) string { return "leafsense:prediction:" + imageHash }

func modelStatsKey(modelVersion string) string { return "leafsense:modelstats:" + modelVersion }

func (c *resultCache) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opTimeout)
}

func (c *resultCache) GetPrediction(ctx context.Context, imageHash string) (*types.Prediction, error) {
	if imageHash == "" {
		return nil, nil
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	raw, err := c.rdb.Get(ctx, predictionKey(imageHash)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p types.Prediction
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode cached prediction: %w", err)
	}
	return &p, nil
}

func (c *resultCache) SetPrediction(ctx context.Context, imageHash string, p *types.Prediction, ttl time.Duration) error {
	if imageHash == "" || p == nil {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	return c.rdb.Set(ctx, predictionKey(imageHash), raw, ttl).Err()
}

func (c *resultCache) InvalidatePrediction(ctx context.Context, imageHash string) error {
	if imageHash == "" {
		return nil
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	return c.rdb.Del(ctx, predictionKey(imageHash)).Err()
}

func (c *resultCache) GetModelStats(ctx context.Context, modelVersion string) (*types.ModelStatistics, error) {
	if modelVersion == "" {
		return nil, nil
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	raw, err := c.rdb.Get(ctx, modelStatsKey(modelVersion)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stats types.ModelStatistics
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, fmt.Errorf("decode cached model stats: %w", err)
	}
	return &stats, nil
}

func (c *resultCache) SetModelStats(ctx context.Context, modelVersion string, stats *types.ModelStatistics, ttl time.Duration) error {
	if modelVersion == "" || stats == nil {
		return nil
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	return c.rdb.Set(ctx, modelStatsKey(modelVersion), raw, ttl).Err()
}

func (c *resultCache) InvalidateModelStats(ctx context.Context, modelVersion string) error {
	if modelVersion == "" {
		return nil
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	return c.rdb.Del(ctx, modelStatsKey(modelVersion)).Err()
}

// IsHealthy does a best-effort write/read round trip. A failure reports
// degraded rather than erroring; callers fall back to recomputation.
func (c *resultCache) IsHealthy(ctx context.Context) bool {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	key := "leafsense:health:probe"
	if err := c.rdb.Set(ctx, key, "ok", 10*time.Second).Err(); err != nil {
		c.log.Warn("Cache health probe write failed", "error", err)
		return false
	}
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil || val != "ok" {
		c.log.Warn("Cache health probe read failed", "error", err)
		return false
	}
	return true
}

func (c *resultCache) Close() error { return c.rdb.Close() }
