package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/types"
)

type DiseaseRepo interface {
	GetAll(ctx context.Context, tx *gorm.DB) ([]*types.Disease, error)
	GetByLabel(ctx context.Context, tx *gorm.DB, label string) (*types.Disease, error)
	UpsertByLabel(ctx context.Context, tx *gorm.DB, row *types.Disease) error
}

type diseaseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDiseaseRepo(db *gorm.DB, baseLog *logger.Logger) DiseaseRepo {
	return &diseaseRepo{db: db, log: baseLog.With("repo", "DiseaseRepo")}
}

func (r *diseaseRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.Disease, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Disease
	if err := transaction.WithContext(ctx).
		Order("label ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *diseaseRepo) GetByLabel(ctx context.Context, tx *gorm.DB, label string) (*types.Disease, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if label == "" {
		return nil, nil
	}
	var row types.Disease
	err := transaction.WithContext(ctx).
		Where("label = ?", label).
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

func (r *diseaseRepo) UpsertByLabel(ctx context.Context, tx *gorm.DB, row *types.Disease) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("label = ?", row.Label).
		Assign(map[string]interface{}{
			"scientific_name": row.ScientificName,
			"description":     row.Description,
			"treatment":       row.Treatment,
		}).
		FirstOrCreate(row).Error
}
