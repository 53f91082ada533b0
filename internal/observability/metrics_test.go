package observability

import (
	"strings"
	"testing"
)

func TestCounterVecWritePrometheus(t *testing.T) {
	c := NewCounterVec("ls_predictions_total", "Predictions by status.", []string{"status"})
	c.Inc("success")
	c.Inc("success")
	c.Inc("failed")

	var b strings.Builder
	if err := c.WritePrometheus(&b); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := b.String()
	if !strings.Contains(out, "# TYPE ls_predictions_total counter") {
		t.Fatalf("missing TYPE line:\n%s", out)
	}
	if !strings.Contains(out, `ls_predictions_total{status="success"} 2.0`) {
		t.Fatalf("missing success sample:\n%s", out)
	}
	if !strings.Contains(out, `ls_predictions_total{status="failed"} 1.0`) {
		t.Fatalf("missing failed sample:\n%s", out)
	}
}

func TestHistogramVecBuckets(t *testing.T) {
	h := NewHistogramVec("ls_latency_seconds", "Latency.", []string{"status"}, []float64{0.1, 1})
	h.Observe(0.05, "ok")
	h.Observe(0.5, "ok")
	h.Observe(5, "ok")

	var b strings.Builder
	if err := h.WritePrometheus(&b); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := b.String()
	if !strings.Contains(out, `ls_latency_seconds_bucket{status="ok",le="0.1"} 1`) {
		t.Fatalf("le=0.1 bucket wrong:\n%s", out)
	}
	if !strings.Contains(out, `ls_latency_seconds_bucket{status="ok",le="1"} 2`) {
		t.Fatalf("le=1 bucket wrong:\n%s", out)
	}
	if !strings.Contains(out, `ls_latency_seconds_bucket{status="ok",le="+Inf"} 3`) {
		t.Fatalf("+Inf bucket wrong:\n%s", out)
	}
	if !strings.Contains(out, `ls_latency_seconds_count{status="ok"} 3`) {
		t.Fatalf("count wrong:\n%s", out)
	}
}

func TestLabelString(t *testing.T) {
	cases := []struct {
		name   string
		names  []string
		values []string
		want   string
	}{
		{name: "no_labels", names: nil, values: nil, want: ""},
		{name: "single", names: []string{"status"}, values: []string{"ok"}, want: `{status="ok"}`},
		{name: "missing_value_defaults", names: []string{"status"}, values: nil, want: `{status="unknown"}`},
		{name: "escapes_quotes", names: []string{"m"}, values: []string{`a"b`}, want: `{m="a\"b"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := labelString(tc.names, tc.values)
			if got != tc.want {
				t.Fatalf("labelString=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObservePrediction("success", 0)
	m.IncCacheHit()
	m.IncCacheMiss()
	m.SetQueueDepth("requests", 1)
	m.WorkerStarted()
	m.WorkerFinished(nil)
	if err := m.WritePrometheus(&strings.Builder{}); err != nil {
		t.Fatalf("nil WritePrometheus: %v", err)
	}
}
