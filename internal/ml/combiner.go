package ml

import (
	"github.com/grovelabs/leafsense-backend/internal/logger"
)

// ImageResult is the externally supplied CNN output for an image.
type ImageResult struct {
	Label        string
	Confidence   float64
	ProcessingMs int64
}

// CombinedResult is the merged diagnosis. Label always comes from the image
// classifier; the symptom side only moves the confidence.
type CombinedResult struct {
	Label           string
	Confidence      float64
	FinalConfidence float64
}

// Combiner blends image and symptom confidences with a configurable convex
// weighting. The symptom weight is the complement of the image weight.
type Combiner struct {
	imageWeight float64
	log         *logger.Logger
}

func NewCombiner(imageWeight float64, baseLog *logger.Logger) *Combiner {
	if imageWeight < 0 {
		imageWeight = 0
	}
	if imageWeight > 1 {
		imageWeight = 1
	}
	return &Combiner{
		imageWeight: imageWeight,
		log:         baseLog.With("component", "Combiner"),
	}
}

// Combine merges the two classifier outputs. A nil symptom confidence means
// no observations were recorded: the image confidence passes through
// unblended.
func (c *Combiner) Combine(img ImageResult, symptomConfidence *float64) CombinedResult {
	out := CombinedResult{
		Label:           img.Label,
		Confidence:      img.Confidence,
		FinalConfidence: img.Confidence,
	}
	if symptomConfidence == nil {
		return out
	}
	out.FinalConfidence = c.imageWeight*img.Confidence + (1-c.imageWeight)*(*symptomConfidence)
	return out
}

// SeverityBands maps a final confidence to a severity label. Thresholds are
// configuration, checked highest first.
type SeverityBands struct {
	SevereAt   float64
	ModerateAt float64
	MildAt     float64
}

func DefaultSeverityBands() SeverityBands {
	return SeverityBands{SevereAt: 0.85, ModerateAt: 0.6, MildAt: 0.4}
}

func (b SeverityBands) Classify(label string, confidence float64) string {
	if label == "healthy" {
		return "none"
	}
	switch {
	case confidence >= b.SevereAt:
		return "severe"
	case confidence >= b.ModerateAt:
		return "moderate"
	case confidence >= b.MildAt:
		return "mild"
	default:
		return "uncertain"
	}
}
