package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	FeedbackTypeCorrection   = "correction"
	FeedbackTypeConfirmation = "confirmation"
	FeedbackTypeGeneral      = "general"
)

// Feedback is a user's response to a prediction. UsedForTraining flips
// false -> true exactly once, when the feedback loop consumes the row.
type Feedback struct {
	ID              uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	PredictionID    uuid.UUID   `gorm:"column:prediction_id;type:uuid;not null;index" json:"prediction_id"`
	Prediction      *Prediction `gorm:"foreignKey:PredictionID;references:ID" json:"prediction,omitempty"`
	UserID          uuid.UUID   `gorm:"column:user_id;type:uuid;not null" json:"user_id"`
	Comment         string      `gorm:"column:comment" json:"comment,omitempty"`
	Rating          int         `gorm:"column:rating;not null;default:3" json:"rating"`
	CorrectedLabel  string      `gorm:"column:corrected_label" json:"corrected_label,omitempty"`
	FeedbackType    string      `gorm:"column:feedback_type;not null;default:'general'" json:"feedback_type"`
	UsedForTraining bool        `gorm:"column:used_for_training;not null;default:false;index" json:"used_for_training"`
	CreatedAt       time.Time   `gorm:"not null" json:"created_at"`
}

func (Feedback) TableName() string { return "feedback" }

func (f *Feedback) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
