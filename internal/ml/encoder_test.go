package ml

import (
	"testing"

	"github.com/google/uuid"

	"github.com/grovelabs/leafsense-backend/internal/types"
)

func testOntology(weights ...float64) []*types.Symptom {
	out := make([]*types.Symptom, len(weights))
	for i, w := range weights {
		out[i] = &types.Symptom{ID: uuid.New(), Weight: w, Active: true}
	}
	return out
}

func TestEncodeFeatures(t *testing.T) {
	ontology := testOntology(0.8, 1.0, 0.5)

	cases := []struct {
		name     string
		observed []uuid.UUID
		width    int
		want     []float32
	}{
		{
			name:     "single_observed_symptom",
			observed: []uuid.UUID{ontology[0].ID},
			width:    3,
			want:     []float32{0.8, 0, 0},
		},
		{
			name:     "all_observed",
			observed: []uuid.UUID{ontology[0].ID, ontology[1].ID, ontology[2].ID},
			width:    3,
			want:     []float32{0.8, 1.0, 0.5},
		},
		{
			name:     "no_observations_yields_zero_vector",
			observed: nil,
			width:    3,
			want:     []float32{0, 0, 0},
		},
		{
			name:     "unknown_ids_ignored",
			observed: []uuid.UUID{uuid.New(), uuid.New()},
			width:    3,
			want:     []float32{0, 0, 0},
		},
		{
			name:     "width_narrower_than_ontology_truncates",
			observed: []uuid.UUID{ontology[0].ID, ontology[2].ID},
			width:    2,
			want:     []float32{0.8, 0},
		},
		{
			name:     "width_wider_than_ontology_pads",
			observed: []uuid.UUID{ontology[1].ID},
			width:    5,
			want:     []float32{0, 1.0, 0, 0, 0},
		},
		{
			name:     "zero_width",
			observed: []uuid.UUID{ontology[0].ID},
			width:    0,
			want:     []float32{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := EncodeFeatures(tc.observed, ontology, tc.width)
			if len(got) != len(tc.want) {
				t.Fatalf("vector length=%d, want %d", len(got), len(tc.want))
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("position %d: got %v, want %v (full: %v)", i, got[i], tc.want[i], got)
				}
			}
		})
	}
}

func TestEncodeFeaturesAlwaysFixedWidth(t *testing.T) {
	ontology := testOntology(1.0)
	got := EncodeFeatures(nil, ontology, 4)
	if len(got) != 4 {
		t.Fatalf("empty observation vector length=%d, want 4", len(got))
	}
}
