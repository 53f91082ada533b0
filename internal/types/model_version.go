package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ModelTypeImage    = "image"
	ModelTypeSymptom  = "symptom"
	ModelTypeCombined = "combined"
)

// ModelVersion is one trained artifact in the registry. (ModelName, Version)
// is unique; the registry transaction keeps at most one row active and one
// row in production per (name, type).
type ModelVersion struct {
	ID                     uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ModelName              string         `gorm:"column:model_name;not null;uniqueIndex:idx_model_name_version" json:"model_name"`
	Version                string         `gorm:"column:version;not null;uniqueIndex:idx_model_name_version" json:"version"`
	ModelType              string         `gorm:"column:model_type;not null;index" json:"model_type"`
	FilePath               string         `gorm:"column:file_path;not null" json:"file_path"`
	FileChecksum           string         `gorm:"column:file_checksum" json:"file_checksum,omitempty"`
	FileSizeBytes          int64          `gorm:"column:file_size_bytes;not null;default:0" json:"file_size_bytes"`
	Accuracy               float64        `gorm:"column:accuracy;not null" json:"accuracy"`
	ValidationAccuracy     *float64       `gorm:"column:validation_accuracy" json:"validation_accuracy,omitempty"`
	TestAccuracy           *float64       `gorm:"column:test_accuracy" json:"test_accuracy,omitempty"`
	TrainingSampleCount    int            `gorm:"column:training_sample_count;not null;default:0" json:"training_sample_count"`
	ValidationSampleCount  int            `gorm:"column:validation_sample_count;not null;default:0" json:"validation_sample_count"`
	TestSampleCount        int            `gorm:"column:test_sample_count;not null;default:0" json:"test_sample_count"`
	TrainingDatasetVersion string         `gorm:"column:training_dataset_version;not null" json:"training_dataset_version"`
	Active                 bool           `gorm:"column:active;not null;default:false;index" json:"active"`
	Production             bool           `gorm:"column:production;not null;default:false" json:"production"`
	DeployedAt             *time.Time     `gorm:"column:deployed_at" json:"deployed_at,omitempty"`
	CreatedBy              *uuid.UUID     `gorm:"column:created_by;type:uuid" json:"created_by,omitempty"`
	Notes                  string         `gorm:"column:notes" json:"notes,omitempty"`
	Metadata               datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt              time.Time      `gorm:"not null;index" json:"created_at"`
}

func (ModelVersion) TableName() string { return "model_version" }

func (m *ModelVersion) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
