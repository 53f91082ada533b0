package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ImageStatusUploaded   = "uploaded"
	ImageStatusProcessing = "processing"
	ImageStatusDiagnosed  = "diagnosed"
	ImageStatusFailed     = "failed"
)

// LeafImage is an uploaded leaf photo. ContentHash is the cache fingerprint
// for the result cache.
type LeafImage struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FilePath         string    `gorm:"column:file_path;not null" json:"file_path"`
	ContentHash      string    `gorm:"column:content_hash;not null;uniqueIndex" json:"content_hash"`
	OriginalFilename string    `gorm:"column:original_filename" json:"original_filename,omitempty"`
	SizeBytes        int64     `gorm:"column:size_bytes;not null;default:0" json:"size_bytes"`
	Status           string    `gorm:"column:status;not null;default:'uploaded'" json:"status"`
	UploadedAt       time.Time `gorm:"column:uploaded_at;not null" json:"uploaded_at"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
}

func (LeafImage) TableName() string { return "leaf_image" }

func (i *LeafImage) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.UploadedAt.IsZero() {
		i.UploadedAt = time.Now()
	}
	return nil
}
