package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/types"
)

type FeedbackRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Feedback) ([]*types.Feedback, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Feedback, error)
	GetConvertible(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Feedback, error)
	MarkUsedForTraining(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
}

type feedbackRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFeedbackRepo(db *gorm.DB, baseLog *logger.Logger) FeedbackRepo {
	return &feedbackRepo{db: db, log: baseLog.With("repo", "FeedbackRepo")}
}

func (r *feedbackRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Feedback) ([]*types.Feedback, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.Feedback{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *feedbackRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Feedback, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Feedback
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetConvertible returns feedback rows with a corrected label that have not
// yet been consumed by the training loop.
func (r *feedbackRepo) GetConvertible(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Feedback, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Feedback
	q := transaction.WithContext(ctx).
		Where("corrected_label <> '' AND used_for_training = ?", false).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *feedbackRepo) MarkUsedForTraining(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Feedback{}).
		Where("id IN ?", ids).
		Update("used_for_training", true).Error
}
