package ml

import (
	"github.com/google/uuid"

	"github.com/grovelabs/leafsense-backend/internal/types"
)

// EncodeFeatures builds the fixed-width input vector for the symptom
// classifier. The ontology must be the active symptoms ordered by id; the
// vector holds each symptom's weight at its ontology position when the
// symptom was observed, else 0.
//
// Unknown ids are ignored. An ontology shorter than width leaves trailing
// zeros; one longer than width is truncated to the first width positions
// (callers surface that condition, see registry.OntologyExceedsWidth).
func EncodeFeatures(symptomIDs []uuid.UUID, ontology []*types.Symptom, width int) []float32 {
	vec := make([]float32, width)
	if width == 0 || len(ontology) == 0 || len(symptomIDs) == 0 {
		return vec
	}

	observed := make(map[uuid.UUID]struct{}, len(symptomIDs))
	for _, id := range symptomIDs {
		observed[id] = struct{}{}
	}

	limit := len(ontology)
	if limit > width {
		limit = width
	}
	for i := 0; i < limit; i++ {
		if _, ok := observed[ontology[i].ID]; ok {
			vec[i] = float32(ontology[i].Weight)
		}
	}
	return vec
}
