package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/types"
)

type PredictionLogRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.PredictionLog) error
	GetByCorrelationID(ctx context.Context, tx *gorm.DB, correlationID string) (*types.PredictionLog, error)
	MarkResponded(ctx context.Context, tx *gorm.DB, correlationID, apiStatus, errorMessage, modelVersion string, processingMs int64) error
	DeleteUnresponded(ctx context.Context, tx *gorm.DB, correlationID string) error
}

type predictionLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPredictionLogRepo(db *gorm.DB, baseLog *logger.Logger) PredictionLogRepo {
	return &predictionLogRepo{db: db, log: baseLog.With("repo", "PredictionLogRepo")}
}

func (r *predictionLogRepo) Create(ctx context.Context, tx *gorm.DB, row *types.PredictionLog) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return nil
	}
	return transaction.WithContext(ctx).Create(row).Error
}

func (r *predictionLogRepo) GetByCorrelationID(ctx context.Context, tx *gorm.DB, correlationID string) (*types.PredictionLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if correlationID == "" {
		return nil, nil
	}
	var row types.PredictionLog
	err := transaction.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
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

// MarkResponded resolves an attempt. The responded_at IS NULL guard keeps the
// row append-only: a duplicate delivery of the same correlation id is a no-op.
func (r *predictionLogRepo) MarkResponded(ctx context.Context, tx *gorm.DB, correlationID, apiStatus, errorMessage, modelVersion string, processingMs int64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if correlationID == "" {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.PredictionLog{}).
		Where("correlation_id = ? AND responded_at IS NULL", correlationID).
		Updates(map[string]interface{}{
			"responded_at":  now,
			"api_status":    apiStatus,
			"error_message": errorMessage,
			"model_version": modelVersion,
			"processing_ms": processingMs,
		}).Error
}

// DeleteUnresponded removes an attempt that never reached the queue so its
// correlation id can be submitted again. Resolved rows are untouchable.
func (r *predictionLogRepo) DeleteUnresponded(ctx context.Context, tx *gorm.DB, correlationID string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if correlationID == "" {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("correlation_id = ? AND responded_at IS NULL", correlationID).
		Delete(&types.PredictionLog{}).Error
}
