package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/types"
)

type PredictionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.Prediction) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Prediction, error)
	GetLatestByImageID(ctx context.Context, tx *gorm.DB, imageID uuid.UUID) (*types.Prediction, error)
	StatsByModelVersion(ctx context.Context, tx *gorm.DB, modelVersion string) (*types.ModelStatistics, error)
}

type predictionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPredictionRepo(db *gorm.DB, baseLog *logger.Logger) PredictionRepo {
	return &predictionRepo{db: db, log: baseLog.With("repo", "PredictionRepo")}
}

func (r *predictionRepo) Create(ctx context.Context, tx *gorm.DB, row *types.Prediction) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return nil
	}
	return transaction.WithContext(ctx).Create(row).Error
}

func (r *predictionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Prediction, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Prediction
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *predictionRepo) GetLatestByImageID(ctx context.Context, tx *gorm.DB, imageID uuid.UUID) (*types.Prediction, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if imageID == uuid.Nil {
		return nil, nil
	}
	var row types.Prediction
	err := transaction.WithContext(ctx).
		Where("image_id = ?", imageID).
		Order("predicted_at DESC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

// StatsByModelVersion aggregates prediction rows for one model version. The
// diagnosis service caches the result with a TTL.
func (r *predictionRepo) StatsByModelVersion(ctx context.Context, tx *gorm.DB, modelVersion string) (*types.ModelStatistics, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if modelVersion == "" {
		return nil, nil
	}

	type aggRow struct {
		DiseaseLabel  string
		Count         int64
		AvgConfidence float64
	}
	var rows []aggRow
	err := transaction.WithContext(ctx).
		Model(&types.Prediction{}).
		Select("disease_label, COUNT(*) as count, AVG(confidence) as avg_confidence").
		Where("model_version = ?", modelVersion).
		Group("disease_label").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &types.ModelStatistics{
		ModelVersion: modelVersion,
		ClassCounts:  map[string]int{},
	}
	var confidenceSum float64
	for _, row := range rows {
		stats.PredictionCount += row.Count
		stats.ClassCounts[row.DiseaseLabel] = int(row.Count)
		confidenceSum += row.AvgConfidence * float64(row.Count)
	}
	if stats.PredictionCount > 0 {
		stats.AvgConfidence = confidenceSum / float64(stats.PredictionCount)
	}
	return stats, nil
}
