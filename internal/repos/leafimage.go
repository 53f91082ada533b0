package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/types"
)

type LeafImageRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.LeafImage) ([]*types.LeafImage, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.LeafImage, error)
	GetByContentHash(ctx context.Context, tx *gorm.DB, hash string) (*types.LeafImage, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error
}

type leafImageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLeafImageRepo(db *gorm.DB, baseLog *logger.Logger) LeafImageRepo {
	return &leafImageRepo{db: db, log: baseLog.With("repo", "LeafImageRepo")}
}

func (r *leafImageRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.LeafImage) ([]*types.LeafImage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.LeafImage{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *leafImageRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.LeafImage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.LeafImage
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

func (r *leafImageRepo) GetByContentHash(ctx context.Context, tx *gorm.DB, hash string) (*types.LeafImage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if hash == "" {
		return nil, nil
	}
	var row types.LeafImage
	err := transaction.WithContext(ctx).
		Where("content_hash = ?", hash).
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

func (r *leafImageRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.LeafImage{}).
		Where("id = ?", id).
		Update("status", status).Error
}
