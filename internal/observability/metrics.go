package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/grovelabs/leafsense-backend/internal/logger"
)

// Metrics exposes the diagnosis pipeline in Prometheus text format.
// All collectors tolerate a nil receiver so call sites never need to
// guard on METRICS_ENABLED themselves.
type Metrics struct {
	predictions      *CounterVec
	inferenceLatency *HistogramVec
	visionLatency    *HistogramVec
	cacheHits        *Counter
	cacheMisses      *Counter
	queueDepth       *GaugeVec
	workerInflight   *Gauge
	workerTotal      *Counter
	workerError      *Counter
	feedbackRows     *Counter
	retrainRuns      *Counter
	redisUp          *Gauge
	redisPing        *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if v == "" {
		return 10 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = &Metrics{
			predictions: NewCounterVec("ls_predictions_total", "Diagnosis predictions by status.", []string{"status"}),
			inferenceLatency: NewHistogramVec(
				"ls_inference_duration_seconds",
				"Symptom classifier inference latency in seconds by status.",
				[]string{"status"},
				[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
			),
			visionLatency: NewHistogramVec(
				"ls_vision_request_duration_seconds",
				"Vision service round-trip latency in seconds by status.",
				[]string{"status"},
				[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			),
			cacheHits:      NewCounter("ls_cache_hits_total", "Prediction cache hits."),
			cacheMisses:    NewCounter("ls_cache_misses_total", "Prediction cache misses."),
			queueDepth:     NewGaugeVec("ls_queue_depth", "Pending entries per diagnosis stream.", []string{"stream"}),
			workerInflight: NewGauge("ls_worker_inflight", "Diagnosis requests currently being processed."),
			workerTotal:    NewCounter("ls_worker_runs_total", "Diagnosis worker runs."),
			workerError:    NewCounter("ls_worker_errors_total", "Diagnosis worker runs that failed."),
			feedbackRows:   NewCounter("ls_feedback_converted_total", "Feedback rows converted to training data."),
			retrainRuns:    NewCounter("ls_retrain_runs_total", "Retraining runs triggered."),
			redisUp:        NewGauge("ls_redis_up", "Redis reachability (1 up, 0 down)."),
			redisPing:      NewGauge("ls_redis_ping_seconds", "Last redis ping latency in seconds."),
		}
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

func (m *Metrics) ObservePrediction(status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.predictions.Inc(status)
	m.inferenceLatency.Observe(dur.Seconds(), status)
}

func (m *Metrics) ObserveVisionRequest(status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.visionLatency.Observe(dur.Seconds(), status)
}

func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) IncCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

func (m *Metrics) SetQueueDepth(stream string, n int64) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n), stream)
}

func (m *Metrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.workerInflight.Inc()
	m.workerTotal.Inc()
}

func (m *Metrics) WorkerFinished(err error) {
	if m == nil {
		return
	}
	m.workerInflight.Dec()
	if err != nil {
		m.workerError.Inc()
	}
}

func (m *Metrics) AddFeedbackConverted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.feedbackRows.Add(float64(n))
}

func (m *Metrics) IncRetrainRun() {
	if m == nil {
		return
	}
	m.retrainRuns.Inc()
}

// StartRedisCollector pings redis on the scrape interval and keeps the
// up/ping gauges current until ctx is cancelled.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	interval := scrapeInterval()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = rdb.Close()
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

// DepthFunc reports the pending length of a named stream.
type DepthFunc func(ctx context.Context) (map[string]int64, error)

// StartQueueDepthCollector samples stream depth via fn on the scrape interval.
func (m *Metrics) StartQueueDepthCollector(ctx context.Context, log *logger.Logger, fn DepthFunc) {
	if m == nil || fn == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depths, err := fn(ctx)
				if err != nil {
					if log != nil {
						log.Warn("metrics: queue depth sample failed", "error", err)
					}
					continue
				}
				for stream, n := range depths {
					m.queueDepth.Set(float64(n), stream)
				}
			}
		}
	}()
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	if err := m.predictions.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.inferenceLatency.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.visionLatency.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.cacheHits.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.cacheMisses.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.queueDepth.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.workerInflight.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.workerTotal.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.workerError.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.feedbackRows.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.retrainRuns.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.redisUp.WritePrometheus(w); err != nil {
		return err
	}
	return m.redisPing.WritePrometheus(w)
}

type CounterVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (c *CounterVec) Inc(values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl]++
	c.mu.Unlock()
}

func (c *CounterVec) Add(v float64, values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl] += v
	c.mu.Unlock()
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s counter\n", c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.values {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", c.name, k, v); err != nil {
			return err
		}
	}
	return nil
}

type Counter struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

func (c *Counter) Inc() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.val++
	c.mu.Unlock()
}

func (c *Counter) Add(v float64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.val += v
	c.mu.Unlock()
}

func (c *Counter) Value() float64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.val
}

func (c *Counter) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s counter\n", c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %f\n", c.name, c.val)
	return err
}

type Gauge struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Set(v float64) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val = v
	g.mu.Unlock()
}

func (g *Gauge) Inc() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val++
	g.mu.Unlock()
}

func (g *Gauge) Dec() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val--
	g.mu.Unlock()
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s gauge\n", g.name); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %f\n", g.name, g.val)
	return err
}

type GaugeVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewGaugeVec(name, help string, labels []string) *GaugeVec {
	return &GaugeVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (g *GaugeVec) Set(v float64, values ...string) {
	if g == nil {
		return
	}
	lbl := labelString(g.labelNames, values)
	g.mu.Lock()
	g.values[lbl] = v
	g.mu.Unlock()
}

func (g *GaugeVec) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s gauge\n", g.name); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for k, v := range g.values {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", g.name, k, v); err != nil {
			return err
		}
	}
	return nil
}

type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	mu         sync.RWMutex
	values     map[string]*histogram
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	total   uint64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	if len(buckets) == 0 {
		buckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	}
	return &HistogramVec{name: name, help: help, labelNames: labels, buckets: buckets, values: map[string]*histogram{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	lbl := labelString(h.labelNames, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.values[lbl]
	if !ok {
		hist = &histogram{
			buckets: h.buckets,
			counts:  make([]uint64, len(h.buckets)+1),
		}
		h.values[lbl] = hist
	}
	hist.sum += v
	hist.total++
	for i, b := range hist.buckets {
		if v <= b {
			hist.counts[i]++
		}
	}
	hist.counts[len(hist.counts)-1]++
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", h.name, h.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s histogram\n", h.name); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for k, v := range h.values {
		for i, b := range v.buckets {
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, fmt.Sprintf("%g", b)), v.counts[i]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, "+Inf"), v.counts[len(v.counts)-1]); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_sum%s %f\n", h.name, k, v.sum); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_count%s %d\n", h.name, k, v.total); err != nil {
			return err
		}
	}
	return nil
}

func labelString(names []string, values []string) string {
	if len(names) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("{")
	for i, name := range names {
		if i > 0 {
			b.WriteString(",")
		}
		val := "unknown"
		if i < len(values) {
			val = values[i]
		}
		b.WriteString(name)
		b.WriteString("=\"")
		b.WriteString(escapeLabel(val))
		b.WriteString("\"")
	}
	b.WriteString("}")
	return b.String()
}

func escapeLabel(v string) string {
	if v == "" {
		return ""
	}
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	v = strings.ReplaceAll(v, "\n", "\\n")
	return v
}

func withLe(labels string, le string) string {
	le = escapeLabel(le)
	if labels == "" || labels == "{}" {
		return "{le=\"" + le + "\"}"
	}
	if strings.HasSuffix(labels, "}") {
		return strings.TrimSuffix(labels, "}") + ",le=\"" + le + "\"}"
	}
	return "{le=\"" + le + "\"}"
}
