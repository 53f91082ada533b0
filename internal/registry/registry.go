package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/repos"
	"github.com/grovelabs/leafsense-backend/internal/types"
)

var (
	// ErrDuplicateVersion rejects a second registration of the same
	// (model name, version) pair.
	ErrDuplicateVersion = errors.New("model version already registered")
	// ErrVersionNotFound is returned by mutations naming an unknown version.
	ErrVersionNotFound = errors.New("model version not found")
	// ErrAlreadyActive is returned when switching to the version that is
	// already the active one.
	ErrAlreadyActive = errors.New("model version already active")
)

// ArtifactReloader is notified after an activation switch so the serving
// runtime swaps to the new artifact. In-flight inference keeps the artifact
// it started with.
type ArtifactReloader interface {
	Reload(ctx context.Context)
}

// RegisterInput is the payload for recording a new trained artifact.
type RegisterInput struct {
	ModelName              string
	Version                string
	ModelType              string
	FilePath               string
	FileChecksum           string
	FileSizeBytes          int64
	Accuracy               float64
	ValidationAccuracy     *float64
	TestAccuracy           *float64
	TrainingSampleCount    int
	ValidationSampleCount  int
	TestSampleCount        int
	TrainingDatasetVersion string
	Notes                  string
}

// Registry owns ModelVersion lifecycle transitions. Activation and promotion
// are serialized behind a mutex and run inside one transaction so there is
// no window with zero or more than one active/production row per
// (name, type).
type Registry struct {
	db       *gorm.DB
	log      *logger.Logger
	versions repos.ModelVersionRepo
	symptoms repos.SymptomRepo

	mu        sync.Mutex
	reloaders []ArtifactReloader
}

func NewRegistry(db *gorm.DB, versions repos.ModelVersionRepo, symptoms repos.SymptomRepo, baseLog *logger.Logger) *Registry {
	return &Registry{
		db:       db,
		log:      baseLog.With("service", "ModelRegistry"),
		versions: versions,
		symptoms: symptoms,
	}
}

// Subscribe registers a runtime to be reloaded after activation switches.
func (r *Registry) Subscribe(rel ArtifactReloader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reloaders = append(r.reloaders, rel)
}

// GetActive returns the active ModelVersion for (name, type): newest created
// among rows flagged active, nil when none.
func (r *Registry) GetActive(ctx context.Context, name, modelType string) (*types.ModelVersion, error) {
	return r.versions.GetLatestActive(ctx, nil, name, modelType)
}

// Register records a new trained artifact. Caller mistakes (missing required
// fields, out-of-range accuracy, duplicate version) are rejected with
// descriptive errors; nothing here is mapped to fallback behavior.
func (r *Registry) Register(ctx context.Context, in RegisterInput) (*types.ModelVersion, error) {
	if in.ModelName == "" || in.Version == "" {
		return nil, fmt.Errorf("model name and version are required")
	}
	if in.ModelType == "" {
		return nil, fmt.Errorf("model type is required")
	}
	if in.FilePath == "" {
		return nil, fmt.Errorf("artifact file reference is required")
	}
	if in.TrainingDatasetVersion == "" {
		return nil, fmt.Errorf("training dataset version is required")
	}
	if err := validateAccuracy("accuracy", in.Accuracy); err != nil {
		return nil, err
	}
	if in.ValidationAccuracy != nil {
		if err := validateAccuracy("validation accuracy", *in.ValidationAccuracy); err != nil {
			return nil, err
		}
	}
	if in.TestAccuracy != nil {
		if err := validateAccuracy("test accuracy", *in.TestAccuracy); err != nil {
			return nil, err
		}
	}

	existing, err := r.versions.GetByNameVersion(ctx, nil, in.ModelName, in.Version)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s %s", ErrDuplicateVersion, in.ModelName, in.Version)
	}

	row := &types.ModelVersion{
		ModelName:              in.ModelName,
		Version:                in.Version,
		ModelType:              in.ModelType,
		FilePath:               in.FilePath,
		FileChecksum:           in.FileChecksum,
		FileSizeBytes:          in.FileSizeBytes,
		Accuracy:               in.Accuracy,
		ValidationAccuracy:     in.ValidationAccuracy,
		TestAccuracy:           in.TestAccuracy,
		TrainingSampleCount:    in.TrainingSampleCount,
		ValidationSampleCount:  in.ValidationSampleCount,
		TestSampleCount:        in.TestSampleCount,
		TrainingDatasetVersion: in.TrainingDatasetVersion,
		Notes:                  in.Notes,
	}
	if err := r.versions.Create(ctx, nil, row); err != nil {
		return nil, fmt.Errorf("register model version: %w", err)
	}
	r.log.Info("Model version registered", "model_name", in.ModelName, "version", in.Version, "model_type", in.ModelType, "accuracy", in.Accuracy)
	return row, nil
}

// SwitchActive makes (name, version) the active artifact for its model type.
// The deactivate-then-activate pair runs in one serialized transaction, then
// subscribed runtimes are reloaded (copy-and-swap: in-flight predictions
// finish on the previous artifact).
func (r *Registry) SwitchActive(ctx context.Context, name, version string) (*types.ModelVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, err := r.versions.GetByNameVersion(ctx, nil, name, version)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrVersionNotFound, name, version)
	}
	if target.Active {
		return target, fmt.Errorf("%w: %s %s", ErrAlreadyActive, name, version)
	}

	now := time.Now()
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.versions.DeactivateAll(ctx, tx, name, target.ModelType); err != nil {
			return err
		}
		return r.versions.SetActive(ctx, tx, target.ID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("switch active model version: %w", err)
	}
	target.Active = true
	target.DeployedAt = &now

	r.log.Info("Active model version switched", "model_name", name, "version", version, "model_type", target.ModelType)
	for _, rel := range r.reloaders {
		rel.Reload(ctx)
	}
	return target, nil
}

// PromoteToProduction marks (name, version) as the production artifact for
// its model type, with the same exclusive-row discipline as SwitchActive.
func (r *Registry) PromoteToProduction(ctx context.Context, name, version string) (*types.ModelVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, err := r.versions.GetByNameVersion(ctx, nil, name, version)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrVersionNotFound, name, version)
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.versions.ClearProduction(ctx, tx, name, target.ModelType); err != nil {
			return err
		}
		return r.versions.SetProduction(ctx, tx, target.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("promote model version: %w", err)
	}
	target.Production = true

	r.log.Info("Model version promoted to production", "model_name", name, "version", version, "model_type", target.ModelType)
	return target, nil
}

// OntologyExceedsWidth reports whether the live active ontology has grown
// past the active symptom artifact's feature width. Encoding stays total and
// truncates deterministically; this makes the capacity boundary observable
// instead of silent.
func (r *Registry) OntologyExceedsWidth(ctx context.Context, name string, featureWidth int) (bool, int, error) {
	ontology, err := r.symptoms.GetActiveOrdered(ctx, nil)
	if err != nil {
		return false, 0, err
	}
	if featureWidth > 0 && len(ontology) > featureWidth {
		r.log.Warn("Active ontology exceeds artifact feature width; trailing symptoms are not representable",
			"model_name", name, "ontology_size", len(ontology), "feature_width", featureWidth)
		return true, len(ontology), nil
	}
	return false, len(ontology), nil
}

func validateAccuracy(field string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s %v out of range [0,1]", field, v)
	}
	return nil
}
