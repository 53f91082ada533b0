package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	lsredis "github.com/grovelabs/leafsense-backend/internal/clients/redis"
	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/ml"
	"github.com/grovelabs/leafsense-backend/internal/observability"
	"github.com/grovelabs/leafsense-backend/internal/repos"
	"github.com/grovelabs/leafsense-backend/internal/services"
	"github.com/grovelabs/leafsense-backend/internal/types"
	"github.com/grovelabs/leafsense-backend/internal/utils"
)

// ErrDuplicateSubmission is returned when a correlation id has already been
// accepted into the pipeline.
var ErrDuplicateSubmission = errors.New("correlation id already submitted")

// Queue is the transport the pipeline consumes from. Satisfied by the redis
// streams client; tests swap in an in-memory fake.
type Queue interface {
	PublishRequest(ctx context.Context, req types.DiagnosisRequest) error
	PublishResult(ctx context.Context, res types.DiagnosisResult) error
	ConsumeRequests(ctx context.Context, consumerName string, count int, block time.Duration) ([]lsredis.QueuedRequest, error)
	AckRequest(ctx context.Context, messageID string) error
	Depth(ctx context.Context) (int64, error)
}

// Diagnoser is the synchronous diagnosis entrypoint the workers call.
type Diagnoser interface {
	Diagnose(ctx context.Context, req types.DiagnosisRequest) (*services.DiagnoseOutput, error)
}

type Pipeline struct {
	log       *logger.Logger
	queue     Queue
	diagnoser Diagnoser
	logs      repos.PredictionLogRepo
	images    repos.LeafImageRepo
	metrics   *observability.Metrics

	concurrency int
	block       time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	// inflight lets StopConsuming wait for messages already claimed from the
	// stream while refusing new reads.
	inflight sync.WaitGroup
}

func NewPipeline(
	queue Queue,
	diagnoser Diagnoser,
	logs repos.PredictionLogRepo,
	images repos.LeafImageRepo,
	metrics *observability.Metrics,
	baseLog *logger.Logger,
) *Pipeline {
	concurrency := utils.GetEnvAsInt("WORKER_CONCURRENCY", 4, baseLog)
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pipeline{
		log:         baseLog.With("component", "DiagnosisPipeline"),
		queue:       queue,
		diagnoser:   diagnoser,
		logs:        logs,
		images:      images,
		metrics:     metrics,
		concurrency: concurrency,
		block:       2 * time.Second,
	}
}

// Submit accepts an image for asynchronous diagnosis. The prediction log row
// is created before publish so the correlation id acts as the dedupe key: a
// second submit with the same id fails on the unique index and never reaches
// the stream.
func (p *Pipeline) Submit(ctx context.Context, req types.DiagnosisRequest) error {
	req.CorrelationID = strings.TrimSpace(req.CorrelationID)
	if req.CorrelationID == "" {
		return fmt.Errorf("submit: correlation id is required")
	}
	if req.ImageID == uuid.Nil {
		return fmt.Errorf("submit: image id is required")
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now()
	}

	existing, err := p.logs.GetByCorrelationID(ctx, nil, req.CorrelationID)
	if err != nil {
		return fmt.Errorf("submit: lookup correlation id: %w", err)
	}
	if existing != nil {
		return ErrDuplicateSubmission
	}

	row := &types.PredictionLog{
		ImageID:       req.ImageID,
		ModelType:     types.ModelTypeCombined,
		CorrelationID: req.CorrelationID,
		RequestedAt:   req.SubmittedAt,
	}
	if err := p.logs.Create(ctx, nil, row); err != nil {
		return fmt.Errorf("submit: create prediction log: %w", err)
	}
	if err := p.images.UpdateStatus(ctx, nil, req.ImageID, types.ImageStatusProcessing); err != nil {
		p.log.Warn("Failed to mark image processing", "image_id", req.ImageID, "error", err)
	}
	if err := p.queue.PublishRequest(ctx, req); err != nil {
		// Nothing reached the stream, so release the correlation id for a
		// retry instead of leaving a row that would dedupe future submits.
		if derr := p.logs.DeleteUnresponded(ctx, nil, req.CorrelationID); derr != nil {
			p.log.Warn("Failed to release correlation id after publish failure",
				"correlation_id", req.CorrelationID, "error", derr)
		}
		return fmt.Errorf("submit: publish request: %w", err)
	}
	p.log.Info("Diagnosis request submitted", "correlation_id", req.CorrelationID, "image_id", req.ImageID)
	return nil
}

// StartConsuming launches the worker pool. Workers stop claiming new
// messages when ctx (or StopConsuming) cancels; messages already claimed are
// finished first.
func (p *Pipeline) StartConsuming(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.log.Info("Starting diagnosis worker pool", "concurrency", p.concurrency)
	for i := 0; i < p.concurrency; i++ {
		workerID := i + 1
		p.wg.Add(1)
		go p.runLoop(runCtx, workerID)
	}
}

// StopConsuming cancels intake and blocks until every in-flight message has
// been processed and acknowledged.
func (p *Pipeline) StopConsuming() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.inflight.Wait()
	p.log.Info("Diagnosis worker pool drained")
}

func (p *Pipeline) runLoop(ctx context.Context, workerID int) {
	defer p.wg.Done()
	consumer := fmt.Sprintf("worker-%d", workerID)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		default:
		}

		msgs, err := p.queue.ConsumeRequests(ctx, consumer, 1, p.block)
		if err != nil {
			if ctx.Err() != nil {
				p.log.Info("Worker loop stopped", "worker_id", workerID)
				return
			}
			p.log.Warn("Consume failed", "worker_id", workerID, "error", err)
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			p.inflight.Add(1)
			// Detached from the run context so cancellation drains rather
			// than aborts work already claimed from the stream.
			p.handle(context.WithoutCancel(ctx), workerID, msg)
			p.inflight.Done()
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, workerID int, msg lsredis.QueuedRequest) {
	req := msg.Request
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Diagnosis handler panic",
				"worker_id", workerID,
				"correlation_id", req.CorrelationID,
				"panic", r,
			)
			// The message is acked below, so the log row must resolve here
			// or the correlation id is stuck unresolved forever.
			panicErr := fmt.Errorf("panic: %v", r)
			if err := p.logs.MarkResponded(ctx, nil, req.CorrelationID, types.APIStatusFailed, panicErr.Error(), "", time.Since(start).Milliseconds()); err != nil {
				p.log.Warn("Failed to mark prediction log responded after panic",
					"correlation_id", req.CorrelationID, "error", err)
			}
			if err := p.images.UpdateStatus(ctx, nil, req.ImageID, types.ImageStatusFailed); err != nil {
				p.log.Warn("Failed to mark image failed", "image_id", req.ImageID, "error", err)
			}
			p.metrics.ObservePrediction(types.APIStatusFailed, time.Since(start))
			p.metrics.WorkerFinished(panicErr)
			p.ack(ctx, msg.MessageID)
		}
	}()

	p.metrics.WorkerStarted()

	// At-least-once delivery: a redelivered message whose log row already
	// resolved is acked without reprocessing.
	existing, err := p.logs.GetByCorrelationID(ctx, nil, req.CorrelationID)
	if err != nil {
		p.log.Warn("Dedupe lookup failed", "correlation_id", req.CorrelationID, "error", err)
		p.metrics.WorkerFinished(err)
		return
	}
	if existing != nil && existing.RespondedAt != nil {
		p.log.Info("Skipping already-resolved request", "correlation_id", req.CorrelationID)
		p.metrics.WorkerFinished(nil)
		p.ack(ctx, msg.MessageID)
		return
	}
	if existing == nil {
		row := &types.PredictionLog{
			ImageID:       req.ImageID,
			ModelType:     types.ModelTypeCombined,
			CorrelationID: req.CorrelationID,
			RequestedAt:   req.SubmittedAt,
		}
		if err := p.logs.Create(ctx, nil, row); err != nil {
			p.log.Warn("Failed to create prediction log for queued request",
				"correlation_id", req.CorrelationID, "error", err)
		}
	}

	out, diagErr := p.diagnoser.Diagnose(ctx, req)
	elapsed := time.Since(start)
	result := p.buildResult(req, out, diagErr)
	apiStatus := p.apiStatus(out, diagErr)

	if err := p.queue.PublishResult(ctx, result); err != nil {
		p.log.Warn("Failed to publish result", "correlation_id", req.CorrelationID, "error", err)
	}
	if err := p.logs.MarkResponded(ctx, nil, req.CorrelationID, apiStatus, result.ErrorMessage, result.ModelVersion, elapsed.Milliseconds()); err != nil {
		p.log.Warn("Failed to mark prediction log responded",
			"correlation_id", req.CorrelationID, "error", err)
	}
	if diagErr != nil {
		if err := p.images.UpdateStatus(ctx, nil, req.ImageID, types.ImageStatusFailed); err != nil {
			p.log.Warn("Failed to mark image failed", "image_id", req.ImageID, "error", err)
		}
	}

	p.metrics.ObservePrediction(apiStatus, elapsed)
	p.metrics.WorkerFinished(diagErr)
	p.ack(ctx, msg.MessageID)

	if diagErr != nil {
		p.log.Error("Diagnosis failed",
			"worker_id", workerID,
			"correlation_id", req.CorrelationID,
			"duration_ms", elapsed.Milliseconds(),
			"error", diagErr,
		)
		return
	}
	p.log.Info("Diagnosis completed",
		"worker_id", workerID,
		"correlation_id", req.CorrelationID,
		"disease", result.DiseaseLabel,
		"severity", result.Severity,
		"from_cache", out.FromCache,
		"duration_ms", elapsed.Milliseconds(),
	)
}

func (p *Pipeline) buildResult(req types.DiagnosisRequest, out *services.DiagnoseOutput, diagErr error) types.DiagnosisResult {
	res := types.DiagnosisResult{
		CorrelationID: req.CorrelationID,
		ImageID:       req.ImageID,
		CompletedAt:   time.Now(),
	}
	if diagErr != nil {
		res.Status = types.APIStatusFailed
		res.ErrorMessage = diagErr.Error()
		return res
	}
	pred := out.Prediction
	res.Status = types.APIStatusSuccess
	res.DiseaseLabel = pred.DiseaseLabel
	res.Confidence = pred.Confidence
	if pred.FinalConfidence != nil {
		res.FinalConfidence = *pred.FinalConfidence
	}
	res.Severity = pred.Severity
	res.ModelVersion = pred.ModelVersion
	return res
}

// apiStatus maps the outcome onto the prediction log vocabulary. A symptom
// classifier timeout is logged as such even though the diagnosis still
// resolved on the image-only fallback.
func (p *Pipeline) apiStatus(out *services.DiagnoseOutput, diagErr error) string {
	if diagErr != nil {
		if errors.Is(diagErr, context.DeadlineExceeded) {
			return types.APIStatusTimeout
		}
		return types.APIStatusFailed
	}
	if out != nil && out.SymptomOutcome.State == ml.OutcomeFaulted && errors.Is(out.SymptomOutcome.Err, context.DeadlineExceeded) {
		return types.APIStatusTimeout
	}
	return types.APIStatusSuccess
}

func (p *Pipeline) ack(ctx context.Context, messageID string) {
	if messageID == "" {
		return
	}
	if err := p.queue.AckRequest(ctx, messageID); err != nil {
		p.log.Warn("Failed to ack message", "message_id", messageID, "error", err)
	}
}
