package app

import (
	"time"

	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/utils"
)

type Config struct {
	ModelName        string
	Classes          []string
	BlendImageWeight float64
	RetrainMinRows   int
	InferenceTimeout time.Duration
	PredictionTTL    time.Duration
	StatsTTL         time.Duration
	FeedbackInterval time.Duration
	SeedFile         string
	MetricsAddr      string
	RedisAddr        string
}

// diseaseClasses is the fixed label ontology, in training order. Artifact
// class lists must match it exactly.
var diseaseClasses = []string{"healthy", "rust", "miner", "phoma", "cercospora"}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		ModelName:        utils.GetEnv("SYMPTOM_MODEL_NAME", "leafsense-symptom", log),
		Classes:          diseaseClasses,
		BlendImageWeight: utils.GetEnvAsFloat("BLEND_IMAGE_WEIGHT", 0.7, log),
		RetrainMinRows:   utils.GetEnvAsInt("RETRAIN_MIN_ROWS", 50, log),
		InferenceTimeout: utils.GetEnvAsDuration("INFERENCE_TIMEOUT", 10*time.Second, log),
		PredictionTTL:    utils.GetEnvAsDuration("PREDICTION_CACHE_TTL", 24*time.Hour, log),
		StatsTTL:         utils.GetEnvAsDuration("MODEL_STATS_TTL", 15*time.Minute, log),
		FeedbackInterval: utils.GetEnvAsDuration("FEEDBACK_SWEEP_INTERVAL", 5*time.Minute, log),
		SeedFile:         utils.GetEnv("SEED_FILE", "", log),
		MetricsAddr:      utils.GetEnv("METRICS_ADDR", ":9091", log),
		RedisAddr:        utils.GetEnv("REDIS_ADDR", "", log),
	}
}
