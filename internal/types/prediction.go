package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Prediction is one completed diagnosis for an image. Rows are immutable
// after creation; feedback attaches by reference.
type Prediction struct {
	ID                  uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ImageID             uuid.UUID  `gorm:"column:image_id;type:uuid;not null;index" json:"image_id"`
	Image               *LeafImage `gorm:"foreignKey:ImageID;references:ID" json:"image,omitempty"`
	DiseaseLabel        string     `gorm:"column:disease_label;not null" json:"disease_label"`
	Confidence          float64    `gorm:"column:confidence;not null" json:"confidence"`
	FinalConfidence     *float64   `gorm:"column:final_confidence" json:"final_confidence,omitempty"`
	ModelVersion        string     `gorm:"column:model_version;not null;index" json:"model_version"`
	Severity            string     `gorm:"column:severity;not null;default:''" json:"severity"`
	TreatmentSuggestion string     `gorm:"column:treatment_suggestion" json:"treatment_suggestion,omitempty"`
	ProcessingMs        int64      `gorm:"column:processing_ms;not null;default:0" json:"processing_ms"`
	PredictedAt         time.Time  `gorm:"column:predicted_at;not null" json:"predicted_at"`
	CreatedAt           time.Time  `gorm:"not null" json:"created_at"`
}

func (Prediction) TableName() string { return "prediction" }

func (p *Prediction) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.PredictedAt.IsZero() {
		p.PredictedAt = time.Now()
	}
	return nil
}
