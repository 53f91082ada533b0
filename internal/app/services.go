package app

import (
	"gorm.io/gorm"

	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/ml"
	"github.com/grovelabs/leafsense-backend/internal/observability"
	"github.com/grovelabs/leafsense-backend/internal/pipeline"
	"github.com/grovelabs/leafsense-backend/internal/registry"
	"github.com/grovelabs/leafsense-backend/internal/services"
)

type Services struct {
	Classifier *ml.SymptomClassifier
	Combiner   *ml.Combiner
	Registry   *registry.Registry
	Diagnosis  services.DiagnosisService
	Feedback   services.FeedbackService
	Seed       services.SeedService
	Pipeline   *pipeline.Pipeline
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos, c Clients) Services {
	log.Info("Wiring services...")

	classifier := ml.NewSymptomClassifier(cfg.ModelName, cfg.Classes, cfg.RetrainMinRows, ml.SymptomClassifierDeps{
		Versions:     r.ModelVersion,
		Symptoms:     r.Symptom,
		TrainingData: r.TrainingData,
		Observations: r.SymptomObservation,
		Store:        c.ArtifactStore,
	}, log)

	combiner := ml.NewCombiner(cfg.BlendImageWeight, log)

	reg := registry.NewRegistry(db, r.ModelVersion, r.Symptom, log)
	reg.Subscribe(classifier)

	diagnosis := services.NewDiagnosisService(services.DiagnosisServiceDeps{
		Images:           r.LeafImage,
		Observations:     r.SymptomObservation,
		Predictions:      r.Prediction,
		Diseases:         r.Disease,
		Classifier:       classifier,
		Combiner:         combiner,
		Bands:            ml.DefaultSeverityBands(),
		VisionClient:     c.Vision,
		ImageStore:       c.ArtifactStore,
		Cache:            c.ResultCache,
		InferenceTimeout: cfg.InferenceTimeout,
		PredictionTTL:    cfg.PredictionTTL,
		StatsTTL:         cfg.StatsTTL,
	}, log)

	feedback := services.NewFeedbackService(db, r.Feedback, r.Prediction, r.TrainingData, classifier, cfg.RetrainMinRows, log)
	seed := services.NewSeedService(r.Symptom, r.Disease, log)

	var pipe *pipeline.Pipeline
	if c.Queue != nil {
		pipe = pipeline.NewPipeline(c.Queue, diagnosis, r.PredictionLog, r.LeafImage, observability.Current(), log)
	}

	return Services{
		Classifier: classifier,
		Combiner:   combiner,
		Registry:   reg,
		Diagnosis:  diagnosis,
		Feedback:   feedback,
		Seed:       seed,
		Pipeline:   pipe,
	}
}
