package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Disease is catalog data for the fixed class list: reference copy plus the
// treatment text attached to predictions.
type Disease struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Label          string    `gorm:"column:label;not null;uniqueIndex" json:"label"`
	ScientificName string    `gorm:"column:scientific_name" json:"scientific_name,omitempty"`
	Description    string    `gorm:"column:description" json:"description,omitempty"`
	Treatment      string    `gorm:"column:treatment" json:"treatment,omitempty"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
}

func (Disease) TableName() string { return "disease" }

func (d *Disease) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
