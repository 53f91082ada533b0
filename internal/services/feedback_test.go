package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/grovelabs/leafsense-backend/internal/artifacts"
	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/ml"
	"github.com/grovelabs/leafsense-backend/internal/repos"
	"github.com/grovelabs/leafsense-backend/internal/types"
)

func serviceTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func serviceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&types.Symptom{},
		&types.Disease{},
		&types.LeafImage{},
		&types.ModelVersion{},
		&types.SymptomObservation{},
		&types.Prediction{},
		&types.PredictionLog{},
		&types.Feedback{},
		&types.TrainingData{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type feedbackFixture struct {
	db           *gorm.DB
	service      FeedbackService
	feedback     repos.FeedbackRepo
	predictions  repos.PredictionRepo
	trainingData repos.TrainingDataRepo
	images       repos.LeafImageRepo
}

func newFeedbackFixture(t *testing.T) *feedbackFixture {
	t.Helper()
	db := serviceTestDB(t)
	log := serviceTestLogger(t)
	feedback := repos.NewFeedbackRepo(db, log)
	predictions := repos.NewPredictionRepo(db, log)
	trainingData := repos.NewTrainingDataRepo(db, log)
	images := repos.NewLeafImageRepo(db, log)

	classifier := ml.NewSymptomClassifier("leafsense-symptom", []string{"healthy", "rust"}, 50, ml.SymptomClassifierDeps{
		Versions:     repos.NewModelVersionRepo(db, log),
		Symptoms:     repos.NewSymptomRepo(db, log),
		TrainingData: trainingData,
		Observations: repos.NewSymptomObservationRepo(db, log),
		Store:        artifacts.NewLocalStoreAt(t.TempDir(), log),
	}, log)

	return &feedbackFixture{
		db:           db,
		service:      NewFeedbackService(db, feedback, predictions, trainingData, classifier, 50, log),
		feedback:     feedback,
		predictions:  predictions,
		trainingData: trainingData,
		images:       images,
	}
}

func (f *feedbackFixture) seedPrediction(t *testing.T) *types.Prediction {
	t.Helper()
	ctx := context.Background()
	images, err := f.images.Create(ctx, nil, []*types.LeafImage{
		{FilePath: "images/leaf.jpg", ContentHash: uuid.NewString()},
	})
	if err != nil {
		t.Fatalf("seed image: %v", err)
	}
	pred := &types.Prediction{
		ImageID:      images[0].ID,
		DiseaseLabel: "healthy",
		Confidence:   0.72,
		ModelVersion: "leafsense-symptom:v1",
	}
	if err := f.predictions.Create(ctx, nil, pred); err != nil {
		t.Fatalf("seed prediction: %v", err)
	}
	return pred
}

func (f *feedbackFixture) seedFeedback(t *testing.T, predictionID uuid.UUID, correctedLabel string) *types.Feedback {
	t.Helper()
	rows, err := f.feedback.Create(context.Background(), nil, []*types.Feedback{
		{
			PredictionID:   predictionID,
			UserID:         uuid.New(),
			CorrectedLabel: correctedLabel,
			FeedbackType:   types.FeedbackTypeCorrection,
		},
	})
	if err != nil {
		t.Fatalf("seed feedback: %v", err)
	}
	return rows[0]
}

func TestConvertFeedbackBatch(t *testing.T) {
	f := newFeedbackFixture(t)
	ctx := context.Background()
	pred := f.seedPrediction(t)
	f.seedFeedback(t, pred.ID, "rust")

	created, err := f.service.ConvertFeedbackBatch(ctx)
	if err != nil {
		t.Fatalf("ConvertFeedbackBatch: %v", err)
	}
	if created != 1 {
		t.Fatalf("created=%d, want 1", created)
	}

	var rows []types.TrainingData
	if err := f.db.Find(&rows).Error; err != nil {
		t.Fatalf("load training data: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("training rows=%d, want 1", len(rows))
	}
	row := rows[0]
	if row.DiseaseLabel != "rust" {
		t.Fatalf("disease label=%q, want corrected label rust", row.DiseaseLabel)
	}
	if row.Source != types.TrainingSourceFeedback {
		t.Fatalf("source=%q, want feedback", row.Source)
	}
	if !row.Validated {
		t.Fatalf("converted row not validated")
	}
	if row.OriginalPrediction != "healthy" || row.OriginalConfidence == nil || *row.OriginalConfidence != 0.72 {
		t.Fatalf("original prediction not preserved: %+v", row)
	}
	if row.SourceFeedbackID == nil {
		t.Fatalf("source feedback id not set")
	}
}

func TestConvertFeedbackBatchKeepsOrphansConvertible(t *testing.T) {
	f := newFeedbackFixture(t)
	ctx := context.Background()
	pred := f.seedPrediction(t)
	f.seedFeedback(t, pred.ID, "rust")
	// Points at a prediction that does not exist yet.
	orphan := f.seedFeedback(t, uuid.New(), "miner")

	created, err := f.service.ConvertFeedbackBatch(ctx)
	if err != nil {
		t.Fatalf("ConvertFeedbackBatch: %v", err)
	}
	if created != 1 {
		t.Fatalf("created=%d, want 1", created)
	}

	// The skipped row produced no training data, so it must not be consumed.
	var fresh types.Feedback
	if err := f.db.Where("id = ?", orphan.ID).First(&fresh).Error; err != nil {
		t.Fatalf("reload orphan feedback: %v", err)
	}
	if fresh.UsedForTraining {
		t.Fatalf("orphan feedback consumed with no training row created")
	}

	convertible, err := f.feedback.GetConvertible(ctx, nil, 10)
	if err != nil {
		t.Fatalf("GetConvertible: %v", err)
	}
	if len(convertible) != 1 || convertible[0].ID != orphan.ID {
		t.Fatalf("orphan no longer convertible: %d rows", len(convertible))
	}
}

func TestConvertFeedbackBatchIsIdempotent(t *testing.T) {
	f := newFeedbackFixture(t)
	ctx := context.Background()
	pred := f.seedPrediction(t)
	f.seedFeedback(t, pred.ID, "rust")

	if _, err := f.service.ConvertFeedbackBatch(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	created, err := f.service.ConvertFeedbackBatch(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if created != 0 {
		t.Fatalf("second run created=%d, want 0", created)
	}

	var count int64
	if err := f.db.Model(&types.TrainingData{}).Count(&count).Error; err != nil {
		t.Fatalf("count training data: %v", err)
	}
	if count != 1 {
		t.Fatalf("training rows=%d after replay, want 1", count)
	}
}

func TestConvertFeedbackBatchIgnoresUncorrected(t *testing.T) {
	f := newFeedbackFixture(t)
	ctx := context.Background()
	pred := f.seedPrediction(t)
	f.seedFeedback(t, pred.ID, "")

	created, err := f.service.ConvertFeedbackBatch(ctx)
	if err != nil {
		t.Fatalf("ConvertFeedbackBatch: %v", err)
	}
	if created != 0 {
		t.Fatalf("created=%d for uncorrected feedback, want 0", created)
	}
}

func TestMaybeTriggerRetrainBelowThreshold(t *testing.T) {
	f := newFeedbackFixture(t)
	triggered, err := f.service.MaybeTriggerRetrain(context.Background())
	if err != nil {
		t.Fatalf("MaybeTriggerRetrain: %v", err)
	}
	if triggered {
		t.Fatalf("retrain triggered with no training data")
	}
}
