package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/grovelabs/leafsense-backend/internal/artifacts"
	"github.com/grovelabs/leafsense-backend/internal/clients/redis"
	"github.com/grovelabs/leafsense-backend/internal/clients/vision"
	"github.com/grovelabs/leafsense-backend/internal/logger"
)

type Clients struct {
	Vision        vision.Classifier
	ResultCache   redis.ResultCache
	Queue         redis.DiagnosisQueue
	ArtifactStore artifacts.Store
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	visionClient, err := vision.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init vision client: %w", err)
	}

	// Redis is optional for degraded single-node runs: without it the
	// pipeline cannot consume, but synchronous diagnosis still works.
	var cache redis.ResultCache
	var queue redis.DiagnosisQueue
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		c, err := redis.NewResultCache(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init result cache: %w", err)
		}
		cache = c
		q, err := redis.NewDiagnosisQueue(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init diagnosis queue: %w", err)
		}
		queue = q
	}

	return Clients{
		Vision:        visionClient,
		ResultCache:   cache,
		Queue:         queue,
		ArtifactStore: artifacts.NewLocalStore(log),
	}, nil
}
