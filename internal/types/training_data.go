package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TrainingSourceOriginal  = "original"
	TrainingSourceFeedback  = "feedback"
	TrainingSourceManual    = "manual"
	TrainingSourceAugmented = "augmented"

	DatasetSplitTrain = "train"
	DatasetSplitVal   = "val"
	DatasetSplitTest  = "test"
)

// TrainingData is one labeled example for the next training run. Created by
// the feedback loop or manual curation; flagged used by training runs.
type TrainingData struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ImageID              uuid.UUID  `gorm:"column:image_id;type:uuid;not null;index" json:"image_id"`
	Image                *LeafImage `gorm:"foreignKey:ImageID;references:ID" json:"image,omitempty"`
	DiseaseLabel         string     `gorm:"column:disease_label;not null" json:"disease_label"`
	Source               string     `gorm:"column:source;not null;default:'original'" json:"source"`
	Validated            bool       `gorm:"column:validated;not null;default:false;index" json:"validated"`
	DatasetSplit         string     `gorm:"column:dataset_split;not null;default:'train'" json:"dataset_split"`
	UsedForTraining      bool       `gorm:"column:used_for_training;not null;default:false;index" json:"used_for_training"`
	OriginalPrediction   string     `gorm:"column:original_prediction" json:"original_prediction,omitempty"`
	OriginalConfidence   *float64   `gorm:"column:original_confidence" json:"original_confidence,omitempty"`
	ValidatedBy          *uuid.UUID `gorm:"column:validated_by;type:uuid" json:"validated_by,omitempty"`
	SourceFeedbackID     *uuid.UUID `gorm:"column:source_feedback_id;type:uuid;index" json:"source_feedback_id,omitempty"`
	QualityTag           string     `gorm:"column:quality_tag" json:"quality_tag,omitempty"`
	CreatedAt            time.Time  `gorm:"not null" json:"created_at"`
}

func (TrainingData) TableName() string { return "training_data" }

func (t *TrainingData) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
