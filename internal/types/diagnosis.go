package types

import (
	"time"

	"github.com/google/uuid"
)

// DiagnosisRequest is one queued unit of work: an image submitted for
// diagnosis, plus whatever symptoms were observed with it. CorrelationID
// ties the request to its result message and PredictionLog row.
type DiagnosisRequest struct {
	CorrelationID string      `json:"correlation_id"`
	ImageID       uuid.UUID   `json:"image_id"`
	ImagePath     string      `json:"image_path"`
	ImageHash     string      `json:"image_hash"`
	SymptomIDs    []uuid.UUID `json:"symptom_ids,omitempty"`
	SubmittedAt   time.Time   `json:"submitted_at"`
}

// DiagnosisResult is the message published when a request resolves, carrying
// the same correlation id.
type DiagnosisResult struct {
	CorrelationID   string    `json:"correlation_id"`
	ImageID         uuid.UUID `json:"image_id"`
	Status          string    `json:"status"`
	DiseaseLabel    string    `json:"disease_label,omitempty"`
	Confidence      float64   `json:"confidence,omitempty"`
	FinalConfidence float64   `json:"final_confidence,omitempty"`
	Severity        string    `json:"severity,omitempty"`
	ModelVersion    string    `json:"model_version,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	CompletedAt     time.Time `json:"completed_at"`
}
