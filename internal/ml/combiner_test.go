package ml

import (
	"math"
	"testing"

	"github.com/grovelabs/leafsense-backend/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func TestCombine(t *testing.T) {
	log := testLogger(t)

	f := func(v float64) *float64 { return &v }

	cases := []struct {
		name        string
		imageWeight float64
		img         ImageResult
		symptom     *float64
		wantFinal   float64
	}{
		{
			name:        "default_blend",
			imageWeight: 0.7,
			img:         ImageResult{Label: "rust", Confidence: 0.90},
			symptom:     f(0.60),
			wantFinal:   0.81,
		},
		{
			name:        "no_symptom_passes_image_through",
			imageWeight: 0.7,
			img:         ImageResult{Label: "phoma", Confidence: 0.42},
			symptom:     nil,
			wantFinal:   0.42,
		},
		{
			name:        "all_image_weight_ignores_symptoms",
			imageWeight: 1.0,
			img:         ImageResult{Label: "miner", Confidence: 0.7},
			symptom:     f(0.1),
			wantFinal:   0.7,
		},
		{
			name:        "weight_clamped_above_one",
			imageWeight: 1.5,
			img:         ImageResult{Label: "rust", Confidence: 0.6},
			symptom:     f(0.2),
			wantFinal:   0.6,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCombiner(tc.imageWeight, log)
			got := c.Combine(tc.img, tc.symptom)
			if got.Label != tc.img.Label {
				t.Fatalf("label=%q, want image label %q", got.Label, tc.img.Label)
			}
			if got.Confidence != tc.img.Confidence {
				t.Fatalf("raw confidence=%v, want %v", got.Confidence, tc.img.Confidence)
			}
			if math.Abs(got.FinalConfidence-tc.wantFinal) > 1e-9 {
				t.Fatalf("final confidence=%v, want %v", got.FinalConfidence, tc.wantFinal)
			}
		})
	}
}

func TestSeverityBands(t *testing.T) {
	bands := DefaultSeverityBands()

	cases := []struct {
		name       string
		label      string
		confidence float64
		want       string
	}{
		{name: "healthy_is_none", label: "healthy", confidence: 0.99, want: "none"},
		{name: "severe_at_threshold", label: "rust", confidence: 0.85, want: "severe"},
		{name: "moderate", label: "rust", confidence: 0.70, want: "moderate"},
		{name: "moderate_at_threshold", label: "miner", confidence: 0.60, want: "moderate"},
		{name: "mild", label: "phoma", confidence: 0.45, want: "mild"},
		{name: "uncertain_below_mild", label: "cercospora", confidence: 0.39, want: "uncertain"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := bands.Classify(tc.label, tc.confidence)
			if got != tc.want {
				t.Fatalf("Classify(%q, %v)=%q, want %q", tc.label, tc.confidence, got, tc.want)
			}
		})
	}
}
