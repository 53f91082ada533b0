package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Symptom is one entry of the symptom ontology. Weight feeds the feature
// encoder; rows are never hard-deleted while observations reference them,
// only deactivated. Ordinal is the symptom's feature position: assigned
// monotonically at creation and never reassigned, so positions of existing
// symptoms are stable when the ontology grows.
type Symptom struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"column:name;not null;uniqueIndex" json:"name"`
	Category    string    `gorm:"column:category;not null;default:''" json:"category"`
	Description string    `gorm:"column:description" json:"description,omitempty"`
	Active      bool      `gorm:"column:active;not null;default:true" json:"active"`
	Weight      float64   `gorm:"column:weight;not null;default:1.0" json:"weight"`
	Ordinal     int       `gorm:"column:ordinal;not null;uniqueIndex" json:"ordinal"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (Symptom) TableName() string { return "symptom" }

func (s *Symptom) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
