package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/grovelabs/leafsense-backend/internal/artifacts"
	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/repos"
	"github.com/grovelabs/leafsense-backend/internal/types"
)

// NeutralConfidence is the degraded-mode scalar returned when no symptom
// model is loaded or inference fails. Upstream orchestration never blocks on
// model availability.
const NeutralConfidence = 0.5

type OutcomeState int

const (
	OutcomeOK OutcomeState = iota
	OutcomeUnavailable
	OutcomeFaulted
)

// Outcome is the explicit result variant of one inference attempt. The
// caller decides fallback values from the state, not from error types.
type Outcome struct {
	State   OutcomeState
	Dist    map[string]float64
	Version string
	Err     error
}

type loadedArtifact struct {
	artifact *Artifact
	version  string
}

// SymptomClassifier loads the active symptom artifact from the registry
// tables and serves predictions from it. The loaded artifact is held behind
// an atomic pointer: swaps are copy-and-swap, in-flight calls keep the handle
// they grabbed, and the previous artifact is reclaimed once its last user
// returns.
type SymptomClassifier struct {
	log       *logger.Logger
	modelName string
	classes   []string

	versions     repos.ModelVersionRepo
	symptoms     repos.SymptomRepo
	trainingData repos.TrainingDataRepo
	observations repos.SymptomObservationRepo
	store        artifacts.Store

	retrainMinRows int

	handle atomic.Pointer[loadedArtifact]
	loadMu sync.Mutex
}

type SymptomClassifierDeps struct {
	Versions     repos.ModelVersionRepo
	Symptoms     repos.SymptomRepo
	TrainingData repos.TrainingDataRepo
	Observations repos.SymptomObservationRepo
	Store        artifacts.Store
}

func NewSymptomClassifier(modelName string, classes []string, retrainMinRows int, deps SymptomClassifierDeps, baseLog *logger.Logger) *SymptomClassifier {
	if retrainMinRows <= 0 {
		retrainMinRows = 50
	}
	return &SymptomClassifier{
		log:            baseLog.With("component", "SymptomClassifier", "model_name", modelName),
		modelName:      modelName,
		classes:        classes,
		versions:       deps.Versions,
		symptoms:       deps.Symptoms,
		trainingData:   deps.TrainingData,
		observations:   deps.Observations,
		store:          deps.Store,
		retrainMinRows: retrainMinRows,
	}
}

// Reload resolves the active symptom ModelVersion and swaps it in. Any
// failure (no active row, missing file, checksum mismatch, malformed
// artifact) leaves the classifier Unloaded; that is degraded mode, not an
// error surfaced to predict callers.
func (c *SymptomClassifier) Reload(ctx context.Context) {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	mv, err := c.versions.GetLatestActive(ctx, nil, c.modelName, types.ModelTypeSymptom)
	if err != nil {
		c.log.Warn("Active model lookup failed, staying unloaded", "error", err)
		c.handle.Store(nil)
		return
	}
	if mv == nil {
		c.log.Warn("No active symptom model registered, running in fallback mode")
		c.handle.Store(nil)
		return
	}

	versionTag := mv.ModelName + ":" + mv.Version

	if !c.store.Exists(mv.FilePath) {
		c.log.Warn("Artifact file missing, staying unloaded", "version", versionTag, "file_path", mv.FilePath)
		c.handle.Store(nil)
		return
	}
	data, err := c.store.ReadBytes(mv.FilePath)
	if err != nil {
		c.log.Warn("Artifact read failed, staying unloaded", "version", versionTag, "error", err)
		c.handle.Store(nil)
		return
	}
	if err := artifacts.VerifyChecksum(data, mv.FileChecksum); err != nil {
		c.log.Warn("Artifact checksum verification failed, staying unloaded", "version", versionTag, "error", err)
		c.handle.Store(nil)
		return
	}
	artifact, err := ParseArtifact(data)
	if err != nil {
		c.log.Warn("Artifact parse failed, staying unloaded", "version", versionTag, "error", err)
		c.handle.Store(nil)
		return
	}

	c.handle.Store(&loadedArtifact{artifact: artifact, version: versionTag})
	c.log.Info("Symptom model loaded", "version", versionTag, "feature_width", artifact.FeatureWidth, "classes", len(artifact.Classes))
}

// IsAvailable reports whether an artifact is loaded, attempting a load first
// when none is.
func (c *SymptomClassifier) IsAvailable(ctx context.Context) bool {
	if c.handle.Load() == nil {
		c.Reload(ctx)
	}
	return c.handle.Load() != nil
}

// ActiveVersionTag returns the loaded artifact's "name:version" tag, or ""
// when unloaded.
func (c *SymptomClassifier) ActiveVersionTag() string {
	if h := c.handle.Load(); h != nil {
		return h.version
	}
	return ""
}

// PredictTop returns the maximum class probability for the observed
// symptoms, falling back to NeutralConfidence when no model is available or
// inference faults. It never returns an error for availability reasons; the
// Outcome carries the detail for telemetry.
func (c *SymptomClassifier) PredictTop(ctx context.Context, symptomIDs []uuid.UUID) (float64, Outcome) {
	outcome := c.infer(ctx, symptomIDs)
	if outcome.State != OutcomeOK {
		return NeutralConfidence, outcome
	}
	top := 0.0
	for _, p := range outcome.Dist {
		if p > top {
			top = p
		}
	}
	return top, outcome
}

// PredictDistribution returns the class probability distribution, falling
// back to a uniform 1/N distribution over the configured class list. Both
// paths sum to 1.
func (c *SymptomClassifier) PredictDistribution(ctx context.Context, symptomIDs []uuid.UUID) (map[string]float64, Outcome) {
	outcome := c.infer(ctx, symptomIDs)
	if outcome.State != OutcomeOK {
		return c.uniformDistribution(), outcome
	}
	return outcome.Dist, outcome
}

func (c *SymptomClassifier) uniformDistribution() map[string]float64 {
	dist := make(map[string]float64, len(c.classes))
	if len(c.classes) == 0 {
		return dist
	}
	p := 1.0 / float64(len(c.classes))
	for _, label := range c.classes {
		dist[label] = p
	}
	return dist
}

func (c *SymptomClassifier) infer(ctx context.Context, symptomIDs []uuid.UUID) Outcome {
	if c.handle.Load() == nil {
		c.Reload(ctx)
	}
	h := c.handle.Load()
	if h == nil {
		return Outcome{State: OutcomeUnavailable}
	}

	ontology, err := c.symptoms.GetActiveOrdered(ctx, nil)
	if err != nil {
		c.log.Warn("Ontology lookup failed, using fallback", "error", err)
		return Outcome{State: OutcomeFaulted, Version: h.version, Err: err}
	}

	features := EncodeFeatures(symptomIDs, ontology, h.artifact.FeatureWidth)

	type result struct {
		probs []float64
		err   error
	}
	done := make(chan result, 1)
	go func() {
		probs, ferr := h.artifact.Forward(features)
		done <- result{probs: probs, err: ferr}
	}()

	select {
	case <-ctx.Done():
		c.log.Warn("Inference cancelled, using fallback", "version", h.version, "error", ctx.Err())
		return Outcome{State: OutcomeFaulted, Version: h.version, Err: ctx.Err()}
	case res := <-done:
		if res.err != nil {
			c.log.Warn("Inference faulted, using fallback", "version", h.version, "error", res.err)
			return Outcome{State: OutcomeFaulted, Version: h.version, Err: res.err}
		}
		dist := make(map[string]float64, len(h.artifact.Classes))
		for i, label := range h.artifact.Classes {
			dist[label] = res.probs[i]
		}
		return Outcome{State: OutcomeOK, Dist: dist, Version: h.version}
	}
}

// datasetManifest is what Retrain hands to the external trainer: the
// prepared feature/label pairs plus the ontology snapshot they were encoded
// against.
type datasetManifest struct {
	ModelName    string      `json:"model_name"`
	DatasetTag   string      `json:"dataset_tag"`
	FeatureWidth int         `json:"feature_width"`
	Classes      []string    `json:"classes"`
	Rows         []pairEntry `json:"rows"`
	PreparedAt   time.Time   `json:"prepared_at"`
}

type pairEntry struct {
	ImageID  uuid.UUID `json:"image_id"`
	Label    string    `json:"label"`
	Features []float32 `json:"features"`
}

// Retrain prepares the next training dataset from validated training rows
// whose image carries at least one symptom observation. Below the minimum
// row count it logs a warning and returns nil; the entry condition is
// idempotent so the trigger task can call it repeatedly. The optimization
// itself is delegated to the external trainer: Retrain writes the dataset
// manifest to the artifact store and records an inactive ModelVersion row
// describing the prepared run.
func (c *SymptomClassifier) Retrain(ctx context.Context) error {
	count, err := c.trainingData.CountValidatedWithObservations(ctx, nil)
	if err != nil {
		return fmt.Errorf("count training rows: %w", err)
	}
	if count < int64(c.retrainMinRows) {
		c.log.Warn("Not enough training data for retrain, skipping", "rows", count, "required", c.retrainMinRows)
		return nil
	}

	rows, err := c.trainingData.GetValidatedWithObservations(ctx, nil)
	if err != nil {
		return fmt.Errorf("load training rows: %w", err)
	}
	ontology, err := c.symptoms.GetActiveOrdered(ctx, nil)
	if err != nil {
		return fmt.Errorf("load ontology: %w", err)
	}

	// New artifacts own their width: size to the live ontology.
	width := len(ontology)

	now := time.Now()
	datasetTag := fmt.Sprintf("symptom-%s", now.UTC().Format("20060102T150405Z"))

	manifest := datasetManifest{
		ModelName:    c.modelName,
		DatasetTag:   datasetTag,
		FeatureWidth: width,
		Classes:      c.classes,
		PreparedAt:   now,
	}
	usedIDs := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		obs, oerr := c.observations.GetByImageID(ctx, nil, row.ImageID)
		if oerr != nil {
			return fmt.Errorf("load observations for image %s: %w", row.ImageID, oerr)
		}
		if len(obs) == 0 {
			continue
		}
		ids := make([]uuid.UUID, 0, len(obs))
		for _, o := range obs {
			ids = append(ids, o.SymptomID)
		}
		manifest.Rows = append(manifest.Rows, pairEntry{
			ImageID:  row.ImageID,
			Label:    row.DiseaseLabel,
			Features: EncodeFeatures(ids, ontology, width),
		})
		usedIDs = append(usedIDs, row.ID)
	}

	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encode dataset manifest: %w", err)
	}
	manifestPath := fmt.Sprintf("datasets/%s.json", datasetTag)
	if err := c.store.WriteBytes(manifestPath, data); err != nil {
		return fmt.Errorf("write dataset manifest: %w", err)
	}

	meta, _ := json.Marshal(map[string]interface{}{
		"prepared_rows": len(manifest.Rows),
		"feature_width": width,
	})
	record := &types.ModelVersion{
		ModelName:              c.modelName,
		Version:                datasetTag,
		ModelType:              types.ModelTypeSymptom,
		FilePath:               manifestPath,
		FileChecksum:           artifacts.Checksum(data),
		FileSizeBytes:          int64(len(data)),
		Accuracy:               0,
		TrainingSampleCount:    len(manifest.Rows),
		TrainingDatasetVersion: datasetTag,
		Active:                 false,
		Production:             false,
		Notes:                  "dataset prepared, awaiting external trainer",
		Metadata:               datatypes.JSON(meta),
	}
	if err := c.versions.Create(ctx, nil, record); err != nil {
		return fmt.Errorf("record prepared training run: %w", err)
	}
	if err := c.trainingData.MarkUsedForTraining(ctx, nil, usedIDs); err != nil {
		return fmt.Errorf("mark training rows used: %w", err)
	}

	c.log.Info("Training dataset prepared", "dataset_tag", datasetTag, "rows", len(manifest.Rows), "feature_width", width)
	return nil
}
