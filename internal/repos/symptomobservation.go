package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/types"
)

type SymptomObservationRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, row *types.SymptomObservation) error
	GetByImageID(ctx context.Context, tx *gorm.DB, imageID uuid.UUID) ([]*types.SymptomObservation, error)
	CountByImageID(ctx context.Context, tx *gorm.DB, imageID uuid.UUID) (int64, error)
}

type symptomObservationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSymptomObservationRepo(db *gorm.DB, baseLog *logger.Logger) SymptomObservationRepo {
	return &symptomObservationRepo{db: db, log: baseLog.With("repo", "SymptomObservationRepo")}
}

// Upsert enforces the one-observation-per-(image, symptom) invariant: a
// repeated observation updates intensity and notes in place.
func (r *symptomObservationRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.SymptomObservation) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("image_id = ? AND symptom_id = ?", row.ImageID, row.SymptomID).
		Assign(map[string]interface{}{
			"intensity": row.Intensity,
			"notes":     row.Notes,
		}).
		FirstOrCreate(row).Error
}

func (r *symptomObservationRepo) GetByImageID(ctx context.Context, tx *gorm.DB, imageID uuid.UUID) ([]*types.SymptomObservation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.SymptomObservation
	if imageID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("image_id = ?", imageID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *symptomObservationRepo) CountByImageID(ctx context.Context, tx *gorm.DB, imageID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if imageID == uuid.Nil {
		return 0, nil
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.SymptomObservation{}).
		Where("image_id = ?", imageID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
