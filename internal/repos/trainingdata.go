package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/types"
)

type TrainingDataRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.TrainingData) ([]*types.TrainingData, error)
	ExistsBySourceFeedback(ctx context.Context, tx *gorm.DB, feedbackID uuid.UUID) (bool, error)
	GetValidatedWithObservations(ctx context.Context, tx *gorm.DB) ([]*types.TrainingData, error)
	CountValidatedWithObservations(ctx context.Context, tx *gorm.DB) (int64, error)
	CountUnusedValidated(ctx context.Context, tx *gorm.DB) (int64, error)
	MarkUsedForTraining(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
}

type trainingDataRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTrainingDataRepo(db *gorm.DB, baseLog *logger.Logger) TrainingDataRepo {
	return &trainingDataRepo{db: db, log: baseLog.With("repo", "TrainingDataRepo")}
}

func (r *trainingDataRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.TrainingData) ([]*types.TrainingData, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.TrainingData{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *trainingDataRepo) ExistsBySourceFeedback(ctx context.Context, tx *gorm.DB, feedbackID uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if feedbackID == uuid.Nil {
		return false, nil
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.TrainingData{}).
		Where("source_feedback_id = ?", feedbackID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetValidatedWithObservations returns the rows the symptom retrain can use:
// validated, and whose image has at least one symptom observation.
func (r *trainingDataRepo) GetValidatedWithObservations(ctx context.Context, tx *gorm.DB) ([]*types.TrainingData, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.TrainingData
	err := transaction.WithContext(ctx).
		Where("validated = ?", true).
		Where("image_id IN (?)", transaction.
			Model(&types.SymptomObservation{}).
			Distinct("image_id")).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *trainingDataRepo) CountValidatedWithObservations(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.TrainingData{}).
		Where("validated = ?", true).
		Where("image_id IN (?)", transaction.
			Model(&types.SymptomObservation{}).
			Distinct("image_id")).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *trainingDataRepo) CountUnusedValidated(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.TrainingData{}).
		Where("validated = ? AND used_for_training = ?", true, false).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *trainingDataRepo) MarkUsedForTraining(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.TrainingData{}).
		Where("id IN ?", ids).
		Update("used_for_training", true).Error
}
