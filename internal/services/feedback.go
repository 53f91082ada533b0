package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/ml"
	"github.com/grovelabs/leafsense-backend/internal/observability"
	"github.com/grovelabs/leafsense-backend/internal/repos"
	"github.com/grovelabs/leafsense-backend/internal/types"
)

// FeedbackService closes the loop from user corrections back into training
// data, and owns the retraining trigger.
type FeedbackService interface {
	ConvertFeedbackBatch(ctx context.Context) (int, error)
	MaybeTriggerRetrain(ctx context.Context) (bool, error)
}

type feedbackService struct {
	db           *gorm.DB
	log          *logger.Logger
	feedback     repos.FeedbackRepo
	predictions  repos.PredictionRepo
	trainingData repos.TrainingDataRepo
	classifier   *ml.SymptomClassifier

	retrainMinRows int
	batchLimit     int
}

func NewFeedbackService(db *gorm.DB, feedback repos.FeedbackRepo, predictions repos.PredictionRepo, trainingData repos.TrainingDataRepo, classifier *ml.SymptomClassifier, retrainMinRows int, baseLog *logger.Logger) FeedbackService {
	if retrainMinRows <= 0 {
		retrainMinRows = 50
	}
	return &feedbackService{
		db:             db,
		log:            baseLog.With("service", "FeedbackService"),
		feedback:       feedback,
		predictions:    predictions,
		trainingData:   trainingData,
		classifier:     classifier,
		retrainMinRows: retrainMinRows,
		batchLimit:     500,
	}
}

// ConvertFeedbackBatch turns corrected, unconsumed feedback into
// TrainingData rows (source "feedback") and flips used_for_training in the
// same transaction. Running it again without new feedback creates zero rows:
// the selection excludes consumed feedback, and a per-row existence check
// guards against replays from at-least-once delivery.
func (s *feedbackService) ConvertFeedbackBatch(ctx context.Context) (int, error) {
	rows, err := s.feedback.GetConvertible(ctx, nil, s.batchLimit)
	if err != nil {
		return 0, fmt.Errorf("load convertible feedback: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	created := 0
	consumed := make([]uuid.UUID, 0, len(rows))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, fb := range rows {
			exists, eerr := s.trainingData.ExistsBySourceFeedback(ctx, tx, fb.ID)
			if eerr != nil {
				return eerr
			}
			if exists {
				consumed = append(consumed, fb.ID)
				continue
			}

			prediction, perr := s.predictions.GetByID(ctx, tx, fb.PredictionID)
			if perr != nil {
				return perr
			}
			if prediction == nil {
				// Not consumed: the row stays convertible in case the
				// prediction shows up later.
				s.log.Warn("Feedback references missing prediction, skipping", "feedback_id", fb.ID, "prediction_id", fb.PredictionID)
				continue
			}

			originalConfidence := prediction.Confidence
			feedbackID := fb.ID
			row := &types.TrainingData{
				ImageID:            prediction.ImageID,
				DiseaseLabel:       fb.CorrectedLabel,
				Source:             types.TrainingSourceFeedback,
				Validated:          true,
				DatasetSplit:       types.DatasetSplitTrain,
				OriginalPrediction: prediction.DiseaseLabel,
				OriginalConfidence: &originalConfidence,
				ValidatedBy:        &fb.UserID,
				SourceFeedbackID:   &feedbackID,
				QualityTag:         "user-corrected",
			}
			if _, cerr := s.trainingData.Create(ctx, tx, []*types.TrainingData{row}); cerr != nil {
				return cerr
			}
			created++
			consumed = append(consumed, fb.ID)
		}
		return s.feedback.MarkUsedForTraining(ctx, tx, consumed)
	})
	if err != nil {
		return 0, fmt.Errorf("convert feedback batch: %w", err)
	}

	if created > 0 {
		s.log.Info("Feedback converted to training data", "created", created, "scanned", len(rows))
		observability.Current().AddFeedbackConverted(created)
	}
	return created, nil
}

// MaybeTriggerRetrain checks the row-count threshold and kicks off dataset
// preparation when it is met. The entry condition is idempotent, so calling
// this on a schedule is safe.
func (s *feedbackService) MaybeTriggerRetrain(ctx context.Context) (bool, error) {
	count, err := s.trainingData.CountUnusedValidated(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("count pending training rows: %w", err)
	}
	if count < int64(s.retrainMinRows) {
		return false, nil
	}
	s.log.Info("Retrain threshold met, preparing dataset", "pending_rows", count, "threshold", s.retrainMinRows)
	if err := s.classifier.Retrain(ctx); err != nil {
		return false, err
	}
	observability.Current().IncRetrainRun()
	return true, nil
}
