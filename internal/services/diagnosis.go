package services

import (
	"context"
	"fmt"
	"time"

	"github.com/grovelabs/leafsense-backend/internal/artifacts"
	redisclient "github.com/grovelabs/leafsense-backend/internal/clients/redis"
	"github.com/grovelabs/leafsense-backend/internal/clients/vision"
	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/ml"
	"github.com/grovelabs/leafsense-backend/internal/observability"
	"github.com/grovelabs/leafsense-backend/internal/repos"
	"github.com/grovelabs/leafsense-backend/internal/types"
	"golang.org/x/sync/errgroup"
)

// DiagnoseOutput carries the persisted prediction plus the detail the
// pipeline needs for its PredictionLog row.
type DiagnoseOutput struct {
	Prediction     *types.Prediction
	FromCache      bool
	SymptomOutcome ml.Outcome
}

type DiagnosisService interface {
	Diagnose(ctx context.Context, req types.DiagnosisRequest) (*DiagnoseOutput, error)
	RefreshModelStats(ctx context.Context, modelVersion string) (*types.ModelStatistics, error)
}

type diagnosisService struct {
	log          *logger.Logger
	images       repos.LeafImageRepo
	observations repos.SymptomObservationRepo
	predictions  repos.PredictionRepo
	diseases     repos.DiseaseRepo
	classifier   *ml.SymptomClassifier
	combiner     *ml.Combiner
	bands        ml.SeverityBands
	visionClient vision.Classifier
	imageStore   artifacts.Store
	cache        redisclient.ResultCache

	inferenceTimeout time.Duration
	predictionTTL    time.Duration
	statsTTL         time.Duration
}

type DiagnosisServiceDeps struct {
	Images       repos.LeafImageRepo
	Observations repos.SymptomObservationRepo
	Predictions  repos.PredictionRepo
	Diseases     repos.DiseaseRepo
	Classifier   *ml.SymptomClassifier
	Combiner     *ml.Combiner
	Bands        ml.SeverityBands
	VisionClient vision.Classifier
	ImageStore   artifacts.Store
	Cache        redisclient.ResultCache

	InferenceTimeout time.Duration
	PredictionTTL    time.Duration
	StatsTTL         time.Duration
}

func NewDiagnosisService(deps DiagnosisServiceDeps, baseLog *logger.Logger) DiagnosisService {
	if deps.InferenceTimeout <= 0 {
		deps.InferenceTimeout = 10 * time.Second
	}
	if deps.PredictionTTL <= 0 {
		deps.PredictionTTL = 24 * time.Hour
	}
	if deps.StatsTTL <= 0 {
		deps.StatsTTL = 15 * time.Minute
	}
	return &diagnosisService{
		log:              baseLog.With("service", "DiagnosisService"),
		images:           deps.Images,
		observations:     deps.Observations,
		predictions:      deps.Predictions,
		diseases:         deps.Diseases,
		classifier:       deps.Classifier,
		combiner:         deps.Combiner,
		bands:            deps.Bands,
		visionClient:     deps.VisionClient,
		imageStore:       deps.ImageStore,
		cache:            deps.Cache,
		inferenceTimeout: deps.InferenceTimeout,
		predictionTTL:    deps.PredictionTTL,
		statsTTL:         deps.StatsTTL,
	}
}

// Diagnose runs the full classify-combine-persist path for one request. The
// cache is consulted first to short-circuit duplicate work; cache failures
// are degraded mode, never fatal.
func (s *diagnosisService) Diagnose(ctx context.Context, req types.DiagnosisRequest) (*DiagnoseOutput, error) {
	if s.cache != nil && req.ImageHash != "" {
		cached, err := s.cache.GetPrediction(ctx, req.ImageHash)
		if err != nil {
			s.log.Warn("Cache lookup failed, recomputing", "correlation_id", req.CorrelationID, "error", err)
		} else if cached != nil {
			s.log.Debug("Cache hit", "correlation_id", req.CorrelationID, "image_hash", req.ImageHash)
			observability.Current().IncCacheHit()
			return &DiagnoseOutput{Prediction: cached, FromCache: true}, nil
		}
		observability.Current().IncCacheMiss()
	}

	imageBytes, err := s.imageStore.ReadBytes(req.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	// The vision model and the symptom classifier are independent, so run
	// them concurrently. Vision failures are fatal; the symptom branch only
	// ever degrades.
	started := time.Now()
	var imgResult *vision.Result
	var symptomConfidence *float64
	var outcome ml.Outcome

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, verr := s.visionClient.Classify(gctx, imageBytes)
		if verr != nil {
			observability.Current().ObserveVisionRequest("error", time.Since(started))
			return fmt.Errorf("image classification: %w", verr)
		}
		observability.Current().ObserveVisionRequest("ok", time.Since(started))
		imgResult = res
		return nil
	})
	g.Go(func() error {
		symptomIDs := req.SymptomIDs
		if len(symptomIDs) == 0 {
			obs, oerr := s.observations.GetByImageID(gctx, nil, req.ImageID)
			if oerr != nil {
				s.log.Warn("Observation lookup failed, diagnosing from image only", "correlation_id", req.CorrelationID, "error", oerr)
			}
			for _, o := range obs {
				symptomIDs = append(symptomIDs, o.SymptomID)
			}
		}
		if len(symptomIDs) == 0 {
			return nil
		}
		inferCtx, cancel := context.WithTimeout(gctx, s.inferenceTimeout)
		defer cancel()
		top, out := s.classifier.PredictTop(inferCtx, symptomIDs)
		symptomConfidence = &top
		outcome = out
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	combined := s.combiner.Combine(ml.ImageResult{
		Label:        imgResult.Label,
		Confidence:   imgResult.Confidence,
		ProcessingMs: imgResult.ProcessingMs,
	}, symptomConfidence)

	severity := s.bands.Classify(combined.Label, combined.FinalConfidence)

	treatment := ""
	if disease, derr := s.diseases.GetByLabel(ctx, nil, combined.Label); derr == nil && disease != nil {
		treatment = disease.Treatment
	}

	modelVersion := s.classifier.ActiveVersionTag()
	if modelVersion == "" {
		modelVersion = "image-only"
	}

	finalConfidence := combined.FinalConfidence
	prediction := &types.Prediction{
		ImageID:             req.ImageID,
		DiseaseLabel:        combined.Label,
		Confidence:          combined.Confidence,
		FinalConfidence:     &finalConfidence,
		ModelVersion:        modelVersion,
		Severity:            severity,
		TreatmentSuggestion: treatment,
		ProcessingMs:        time.Since(started).Milliseconds(),
	}
	if err := s.predictions.Create(ctx, nil, prediction); err != nil {
		return nil, fmt.Errorf("persist prediction: %w", err)
	}
	if err := s.images.UpdateStatus(ctx, nil, req.ImageID, types.ImageStatusDiagnosed); err != nil {
		s.log.Warn("Image status update failed", "correlation_id", req.CorrelationID, "error", err)
	}

	if s.cache != nil && req.ImageHash != "" {
		if err := s.cache.SetPrediction(ctx, req.ImageHash, prediction, s.predictionTTL); err != nil {
			s.log.Warn("Cache write failed", "correlation_id", req.CorrelationID, "error", err)
		}
	}
	if _, err := s.RefreshModelStats(ctx, modelVersion); err != nil {
		s.log.Warn("Model stats refresh failed", "model_version", modelVersion, "error", err)
	}

	return &DiagnoseOutput{Prediction: prediction, SymptomOutcome: outcome}, nil
}

// RefreshModelStats recomputes the per-version aggregate and caches it.
func (s *diagnosisService) RefreshModelStats(ctx context.Context, modelVersion string) (*types.ModelStatistics, error) {
	stats, err := s.predictions.StatsByModelVersion(ctx, nil, modelVersion)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		return nil, nil
	}
	stats.ComputedAt = time.Now()
	if s.cache != nil {
		if err := s.cache.SetModelStats(ctx, modelVersion, stats, s.statsTTL); err != nil {
			s.log.Warn("Model stats cache write failed", "model_version", modelVersion, "error", err)
		}
	}
	return stats, nil
}
