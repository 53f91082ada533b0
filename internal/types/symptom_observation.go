package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SymptomObservation associates one observed symptom with one image.
// At most one row per (image, symptom) pair.
type SymptomObservation struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ImageID    uuid.UUID  `gorm:"column:image_id;type:uuid;not null;index:idx_image_symptom,unique" json:"image_id"`
	Image      *LeafImage `gorm:"foreignKey:ImageID;references:ID" json:"image,omitempty"`
	SymptomID  uuid.UUID  `gorm:"column:symptom_id;type:uuid;not null;index:idx_image_symptom,unique" json:"symptom_id"`
	Symptom    *Symptom   `gorm:"foreignKey:SymptomID;references:ID" json:"symptom,omitempty"`
	Intensity  int        `gorm:"column:intensity;not null;default:3" json:"intensity"`
	ObservedAt time.Time  `gorm:"column:observed_at;not null" json:"observed_at"`
	ObservedBy *uuid.UUID `gorm:"column:observed_by;type:uuid" json:"observed_by,omitempty"`
	Notes      string     `gorm:"column:notes" json:"notes,omitempty"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
}

func (SymptomObservation) TableName() string { return "symptom_observation" }

func (o *SymptomObservation) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.ObservedAt.IsZero() {
		o.ObservedAt = time.Now()
	}
	return nil
}
