package repos

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/types"
)

type SymptomRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Symptom) ([]*types.Symptom, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Symptom, error)
	GetByName(ctx context.Context, tx *gorm.DB, name string) (*types.Symptom, error)
	GetActiveOrdered(ctx context.Context, tx *gorm.DB) ([]*types.Symptom, error)
	UpsertByName(ctx context.Context, tx *gorm.DB, row *types.Symptom) error
	UpdateWeight(ctx context.Context, tx *gorm.DB, id uuid.UUID, weight float64) error
	Deactivate(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type symptomRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSymptomRepo(db *gorm.DB, baseLog *logger.Logger) SymptomRepo {
	return &symptomRepo{db: db, log: baseLog.With("repo", "SymptomRepo")}
}

func validateSymptomWeight(weight float64) error {
	if weight < 0 || weight > 1 {
		return fmt.Errorf("symptom weight %v out of range [0,1]", weight)
	}
	return nil
}

// maxOrdinal returns the highest assigned feature position, 0 when the
// ontology is empty.
func (r *symptomRepo) maxOrdinal(ctx context.Context, transaction *gorm.DB) (int, error) {
	var max int
	err := transaction.WithContext(ctx).
		Model(&types.Symptom{}).
		Select("COALESCE(MAX(ordinal), 0)").
		Scan(&max).Error
	return max, err
}

func (r *symptomRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Symptom) ([]*types.Symptom, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.Symptom{}, nil
	}
	for _, row := range rows {
		if err := validateSymptomWeight(row.Weight); err != nil {
			return nil, err
		}
	}
	// New symptoms append to the ontology: ordinals grow monotonically so
	// feature positions of existing symptoms never move.
	max, err := r.maxOrdinal(ctx, transaction)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.Ordinal == 0 {
			max++
			row.Ordinal = max
		}
	}
	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *symptomRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Symptom, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Symptom
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

func (r *symptomRepo) GetByName(ctx context.Context, tx *gorm.DB, name string) (*types.Symptom, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if name == "" {
		return nil, nil
	}
	var row types.Symptom
	err := transaction.WithContext(ctx).
		Where("name = ?", name).
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

// GetActiveOrdered returns the live ontology: active symptoms in ordinal
// order, which is the append-only position order the feature encoder depends
// on.
func (r *symptomRepo) GetActiveOrdered(ctx context.Context, tx *gorm.DB) ([]*types.Symptom, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Symptom
	if err := transaction.WithContext(ctx).
		Where("active = ?", true).
		Order("ordinal ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *symptomRepo) UpsertByName(ctx context.Context, tx *gorm.DB, row *types.Symptom) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return nil
	}
	if err := validateSymptomWeight(row.Weight); err != nil {
		return err
	}
	// Ordinal is assigned on first insert only; the Assign map leaves it
	// alone on update so re-seeding never moves feature positions.
	if row.Ordinal == 0 {
		max, err := r.maxOrdinal(ctx, transaction)
		if err != nil {
			return err
		}
		row.Ordinal = max + 1
	}
	return transaction.WithContext(ctx).
		Where("name = ?", row.Name).
		Assign(map[string]interface{}{
			"category":    row.Category,
			"description": row.Description,
			"active":      row.Active,
			"weight":      row.Weight,
		}).
		FirstOrCreate(row).Error
}

func (r *symptomRepo) UpdateWeight(ctx context.Context, tx *gorm.DB, id uuid.UUID, weight float64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if err := validateSymptomWeight(weight); err != nil {
		return err
	}
	return transaction.WithContext(ctx).
		Model(&types.Symptom{}).
		Where("id = ?", id).
		Update("weight", weight).Error
}

// Deactivate soft-removes a symptom from the ontology. Rows are never hard
// deleted while observations reference them.
func (r *symptomRepo) Deactivate(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Symptom{}).
		Where("id = ?", id).
		Update("active", false).Error
}
