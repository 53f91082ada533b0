package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	APIStatusSuccess = "success"
	APIStatusFailed  = "failed"
	APIStatusTimeout = "timeout"
)

// PredictionLog is one row per inference attempt, keyed by correlation id.
// Append-only; RespondedAt is filled exactly once when the attempt resolves.
type PredictionLog struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ImageID       uuid.UUID  `gorm:"column:image_id;type:uuid;not null;index" json:"image_id"`
	ModelType     string     `gorm:"column:model_type;not null" json:"model_type"`
	CorrelationID string     `gorm:"column:correlation_id;not null;uniqueIndex" json:"correlation_id"`
	RequestedAt   time.Time  `gorm:"column:requested_at;not null" json:"requested_at"`
	RespondedAt   *time.Time `gorm:"column:responded_at" json:"responded_at,omitempty"`
	APIStatus     string     `gorm:"column:api_status;not null;default:''" json:"api_status"`
	ErrorMessage  string     `gorm:"column:error_message" json:"error_message,omitempty"`
	ModelVersion  string     `gorm:"column:model_version" json:"model_version,omitempty"`
	ProcessingMs  int64      `gorm:"column:processing_ms;not null;default:0" json:"processing_ms"`
	NodeTag       string     `gorm:"column:node_tag" json:"node_tag,omitempty"`
	CreatedAt     time.Time  `gorm:"not null" json:"created_at"`
}

func (PredictionLog) TableName() string { return "prediction_log" }

func (l *PredictionLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.RequestedAt.IsZero() {
		l.RequestedAt = time.Now()
	}
	return nil
}
