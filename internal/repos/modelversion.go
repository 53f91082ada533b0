package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/types"
)

type ModelVersionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.ModelVersion) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ModelVersion, error)
	GetByNameVersion(ctx context.Context, tx *gorm.DB, name, version string) (*types.ModelVersion, error)
	GetLatestActive(ctx context.Context, tx *gorm.DB, name, modelType string) (*types.ModelVersion, error)
	ListByName(ctx context.Context, tx *gorm.DB, name string) ([]*types.ModelVersion, error)
	DeactivateAll(ctx context.Context, tx *gorm.DB, name, modelType string) error
	SetActive(ctx context.Context, tx *gorm.DB, id uuid.UUID, deployedAt time.Time) error
	ClearProduction(ctx context.Context, tx *gorm.DB, name, modelType string) error
	SetProduction(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type modelVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewModelVersionRepo(db *gorm.DB, baseLog *logger.Logger) ModelVersionRepo {
	return &modelVersionRepo{db: db, log: baseLog.With("repo", "ModelVersionRepo")}
}

func (r *modelVersionRepo) Create(ctx context.Context, tx *gorm.DB, row *types.ModelVersion) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return nil
	}
	return transaction.WithContext(ctx).Create(row).Error
}

func (r *modelVersionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ModelVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.ModelVersion
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

func (r *modelVersionRepo) GetByNameVersion(ctx context.Context, tx *gorm.DB, name, version string) (*types.ModelVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if name == "" || version == "" {
		return nil, nil
	}
	var row types.ModelVersion
	err := transaction.WithContext(ctx).
		Where("model_name = ? AND version = ?", name, version).
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

// GetLatestActive resolves "the active artifact" for (name, type): newest
// created among rows flagged active. Returns nil when none is active.
func (r *modelVersionRepo) GetLatestActive(ctx context.Context, tx *gorm.DB, name, modelType string) (*types.ModelVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if name == "" || modelType == "" {
		return nil, nil
	}
	var row types.ModelVersion
	err := transaction.WithContext(ctx).
		Where("model_name = ? AND model_type = ? AND active = ?", name, modelType, true).
		Order("created_at DESC").
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

func (r *modelVersionRepo) ListByName(ctx context.Context, tx *gorm.DB, name string) ([]*types.ModelVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ModelVersion
	if name == "" {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("model_name = ?", name).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *modelVersionRepo) DeactivateAll(ctx context.Context, tx *gorm.DB, name, modelType string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.ModelVersion{}).
		Where("model_name = ? AND model_type = ?", name, modelType).
		Update("active", false).Error
}

func (r *modelVersionRepo) SetActive(ctx context.Context, tx *gorm.DB, id uuid.UUID, deployedAt time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.ModelVersion{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"active":      true,
			"deployed_at": deployedAt,
		}).Error
}

func (r *modelVersionRepo) ClearProduction(ctx context.Context, tx *gorm.DB, name, modelType string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.ModelVersion{}).
		Where("model_name = ? AND model_type = ?", name, modelType).
		Update("production", false).Error
}

func (r *modelVersionRepo) SetProduction(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.ModelVersion{}).
		Where("id = ?", id).
		Update("production", true).Error
}
