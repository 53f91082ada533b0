package ml

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/grovelabs/leafsense-backend/internal/artifacts"
	"github.com/grovelabs/leafsense-backend/internal/repos"
	"github.com/grovelabs/leafsense-backend/internal/types"
)

var testClasses = []string{"healthy", "rust", "miner", "phoma", "cercospora"}

func classifierTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Each sqlite in-memory connection is its own database, so pin the
	// pool to one connection for tests that touch the DB concurrently.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("underlying sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&types.Symptom{},
		&types.ModelVersion{},
		&types.LeafImage{},
		&types.SymptomObservation{},
		&types.TrainingData{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestClassifier(t *testing.T, db *gorm.DB, store artifacts.Store) *SymptomClassifier {
	t.Helper()
	log := testLogger(t)
	return NewSymptomClassifier("leafsense-symptom", testClasses, 50, SymptomClassifierDeps{
		Versions:     repos.NewModelVersionRepo(db, log),
		Symptoms:     repos.NewSymptomRepo(db, log),
		TrainingData: repos.NewTrainingDataRepo(db, log),
		Observations: repos.NewSymptomObservationRepo(db, log),
		Store:        store,
	}, log)
}

func seedSymptoms(t *testing.T, db *gorm.DB, weights ...float64) []*types.Symptom {
	t.Helper()
	log := testLogger(t)
	repo := repos.NewSymptomRepo(db, log)
	rows := make([]*types.Symptom, len(weights))
	for i, w := range weights {
		rows[i] = &types.Symptom{Name: string(rune('a' + i)), Weight: w, Active: true}
	}
	created, err := repo.Create(context.Background(), nil, rows)
	if err != nil {
		t.Fatalf("seed symptoms: %v", err)
	}
	return created
}

// registerTestArtifact writes an artifact file and an active ModelVersion
// row pointing at it.
func registerTestArtifact(t *testing.T, db *gorm.DB, store artifacts.Store, version string, a Artifact) {
	t.Helper()
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	path := "models/" + version + ".json"
	if err := store.WriteBytes(path, data); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	log := testLogger(t)
	repo := repos.NewModelVersionRepo(db, log)
	row := &types.ModelVersion{
		ModelName:              "leafsense-symptom",
		Version:                version,
		ModelType:              types.ModelTypeSymptom,
		FilePath:               path,
		FileChecksum:           artifacts.Checksum(data),
		Accuracy:               0.9,
		TrainingDatasetVersion: version,
		Active:                 true,
	}
	if err := repo.Create(context.Background(), nil, row); err != nil {
		t.Fatalf("create model version: %v", err)
	}
}

func TestPredictFallsBackWhenUnloaded(t *testing.T) {
	db := classifierTestDB(t)
	store := artifacts.NewLocalStoreAt(t.TempDir(), testLogger(t))
	c := newTestClassifier(t, db, store)
	symptoms := seedSymptoms(t, db, 1.0)

	top, outcome := c.PredictTop(context.Background(), []uuid.UUID{symptoms[0].ID})
	if top != NeutralConfidence {
		t.Fatalf("unloaded PredictTop=%v, want neutral %v", top, NeutralConfidence)
	}
	if outcome.State != OutcomeUnavailable {
		t.Fatalf("outcome state=%v, want unavailable", outcome.State)
	}

	dist, outcome := c.PredictDistribution(context.Background(), []uuid.UUID{symptoms[0].ID})
	if outcome.State != OutcomeUnavailable {
		t.Fatalf("outcome state=%v, want unavailable", outcome.State)
	}
	if len(dist) != len(testClasses) {
		t.Fatalf("fallback distribution has %d classes, want %d", len(dist), len(testClasses))
	}
	var sum float64
	for label, p := range dist {
		if math.Abs(p-1.0/float64(len(testClasses))) > 1e-9 {
			t.Fatalf("fallback distribution not uniform: %s=%v", label, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("fallback distribution sums to %v, want 1", sum)
	}
}

func TestPredictUsesLoadedArtifact(t *testing.T) {
	db := classifierTestDB(t)
	store := artifacts.NewLocalStoreAt(t.TempDir(), testLogger(t))
	symptoms := seedSymptoms(t, db, 0.8, 1.0)
	registerTestArtifact(t, db, store, "v1", Artifact{
		FeatureWidth: 2,
		Classes:      []string{"healthy", "rust"},
		Layers: []Layer{
			{Weights: [][]float64{{1, 0}, {0, 1}}, Biases: []float64{0, 0}},
		},
	})

	c := newTestClassifier(t, db, store)
	dist, outcome := c.PredictDistribution(context.Background(), []uuid.UUID{symptoms[0].ID})
	if outcome.State != OutcomeOK {
		t.Fatalf("outcome state=%v (err=%v), want ok", outcome.State, outcome.Err)
	}
	if outcome.Version != "leafsense-symptom:v1" {
		t.Fatalf("outcome version=%q", outcome.Version)
	}
	if dist["healthy"] <= dist["rust"] {
		t.Fatalf("expected healthy to dominate when only symptom 0 observed: %v", dist)
	}

	top, outcome := c.PredictTop(context.Background(), []uuid.UUID{symptoms[0].ID})
	if outcome.State != OutcomeOK {
		t.Fatalf("outcome state=%v, want ok", outcome.State)
	}
	if math.Abs(top-dist["healthy"]) > 1e-9 {
		t.Fatalf("top=%v, want max prob %v", top, dist["healthy"])
	}
}

func TestReloadRejectsChecksumMismatch(t *testing.T) {
	db := classifierTestDB(t)
	store := artifacts.NewLocalStoreAt(t.TempDir(), testLogger(t))
	seedSymptoms(t, db, 1.0)
	registerTestArtifact(t, db, store, "v1", Artifact{
		FeatureWidth: 1,
		Classes:      []string{"healthy"},
		Layers: []Layer{
			{Weights: [][]float64{{1}}, Biases: []float64{0}},
		},
	})

	// Corrupt the stored file after registration.
	if err := store.WriteBytes("models/v1.json", []byte(`{"feature_width":1,"classes":["healthy"],"layers":[{"weights":[[2]],"biases":[0]}]}`)); err != nil {
		t.Fatalf("corrupt artifact: %v", err)
	}

	c := newTestClassifier(t, db, store)
	if c.IsAvailable(context.Background()) {
		t.Fatalf("classifier loaded an artifact with a bad checksum")
	}
	if tag := c.ActiveVersionTag(); tag != "" {
		t.Fatalf("version tag=%q, want empty while unloaded", tag)
	}
}

func TestReloadSwapsToNewArtifact(t *testing.T) {
	db := classifierTestDB(t)
	store := artifacts.NewLocalStoreAt(t.TempDir(), testLogger(t))
	seedSymptoms(t, db, 1.0)
	small := Artifact{
		FeatureWidth: 1,
		Classes:      []string{"healthy"},
		Layers: []Layer{
			{Weights: [][]float64{{1}}, Biases: []float64{0}},
		},
	}
	registerTestArtifact(t, db, store, "v1", small)

	c := newTestClassifier(t, db, store)
	c.Reload(context.Background())
	if tag := c.ActiveVersionTag(); tag != "leafsense-symptom:v1" {
		t.Fatalf("version tag=%q, want v1", tag)
	}

	// Deactivate v1 and activate v2, then reload.
	log := testLogger(t)
	repo := repos.NewModelVersionRepo(db, log)
	if err := repo.DeactivateAll(context.Background(), nil, "leafsense-symptom", types.ModelTypeSymptom); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	registerTestArtifact(t, db, store, "v2", small)

	c.Reload(context.Background())
	if tag := c.ActiveVersionTag(); tag != "leafsense-symptom:v2" {
		t.Fatalf("version tag=%q, want v2 after reload", tag)
	}
}

// Growing the ontology must never move the feature position of an existing
// symptom, or loaded artifacts would silently read scrambled inputs.
func TestOntologyPositionsStableUnderGrowth(t *testing.T) {
	db := classifierTestDB(t)
	repo := repos.NewSymptomRepo(db, testLogger(t))
	ctx := context.Background()

	first := &types.Symptom{
		ID:     uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff"),
		Name:   "serpentine_mines",
		Weight: 0.8,
		Active: true,
	}
	if _, err := repo.Create(ctx, nil, []*types.Symptom{first}); err != nil {
		t.Fatalf("create first symptom: %v", err)
	}

	ontology, err := repo.GetActiveOrdered(ctx, nil)
	if err != nil {
		t.Fatalf("load ontology: %v", err)
	}
	before := EncodeFeatures([]uuid.UUID{first.ID}, ontology, 2)
	if before[0] != 0.8 || before[1] != 0 {
		t.Fatalf("initial encoding=%v, want [0.8 0]", before)
	}

	// A later symptom that sorts lexicographically before the first one.
	second := &types.Symptom{
		ID:     uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		Name:   "chlorotic_patches",
		Weight: 1.0,
		Active: true,
	}
	if _, err := repo.Create(ctx, nil, []*types.Symptom{second}); err != nil {
		t.Fatalf("create second symptom: %v", err)
	}

	ontology, err = repo.GetActiveOrdered(ctx, nil)
	if err != nil {
		t.Fatalf("reload ontology: %v", err)
	}
	if ontology[0].ID != first.ID || ontology[1].ID != second.ID {
		t.Fatalf("ontology order changed: got [%s %s]", ontology[0].Name, ontology[1].Name)
	}
	after := EncodeFeatures([]uuid.UUID{first.ID}, ontology, 2)
	if after[0] != 0.8 || after[1] != 0 {
		t.Fatalf("adding a symptom moved an existing symptom's feature position: before=%v after=%v", before, after)
	}
	both := EncodeFeatures([]uuid.UUID{first.ID, second.ID}, ontology, 2)
	if both[0] != 0.8 || both[1] != 1.0 {
		t.Fatalf("new symptom did not append at the end: %v", both)
	}
}

// Predict calls in flight across a version switch must complete on the
// artifact they began with: the reported version and the distribution it
// produced always agree.
func TestPredictConsistentAcrossConcurrentSwaps(t *testing.T) {
	db := classifierTestDB(t)
	store := artifacts.NewLocalStoreAt(t.TempDir(), testLogger(t))
	symptoms := seedSymptoms(t, db, 1.0)
	ctx := context.Background()

	healthyBiased := Artifact{
		FeatureWidth: 1,
		Classes:      []string{"healthy", "rust"},
		Layers: []Layer{
			{Weights: [][]float64{{2}, {0}}, Biases: []float64{0, 0}},
		},
	}
	rustBiased := Artifact{
		FeatureWidth: 1,
		Classes:      []string{"healthy", "rust"},
		Layers: []Layer{
			{Weights: [][]float64{{0}, {2}}, Biases: []float64{0, 0}},
		},
	}
	registerTestArtifact(t, db, store, "v1", healthyBiased)
	registerTestArtifact(t, db, store, "v2", rustBiased)

	log := testLogger(t)
	repo := repos.NewModelVersionRepo(db, log)
	v1, err := repo.GetByNameVersion(ctx, nil, "leafsense-symptom", "v1")
	if err != nil || v1 == nil {
		t.Fatalf("load v1 row: %v", err)
	}
	v2, err := repo.GetByNameVersion(ctx, nil, "leafsense-symptom", "v2")
	if err != nil || v2 == nil {
		t.Fatalf("load v2 row: %v", err)
	}

	activate := func(id uuid.UUID) {
		if err := repo.DeactivateAll(ctx, nil, "leafsense-symptom", types.ModelTypeSymptom); err != nil {
			t.Fatalf("deactivate: %v", err)
		}
		if err := repo.SetActive(ctx, nil, id, time.Now()); err != nil {
			t.Fatalf("set active: %v", err)
		}
	}

	c := newTestClassifier(t, db, store)
	activate(v1.ID)
	c.Reload(ctx)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				dist, outcome := c.PredictDistribution(ctx, []uuid.UUID{symptoms[0].ID})
				if outcome.State != OutcomeOK {
					continue
				}
				switch outcome.Version {
				case "leafsense-symptom:v1":
					if dist["healthy"] <= dist["rust"] {
						t.Errorf("v1 outcome carried v2 distribution: %v", dist)
						return
					}
				case "leafsense-symptom:v2":
					if dist["rust"] <= dist["healthy"] {
						t.Errorf("v2 outcome carried v1 distribution: %v", dist)
						return
					}
				default:
					t.Errorf("unexpected outcome version %q", outcome.Version)
					return
				}
			}
		}()
	}

	for i := 0; i < 25; i++ {
		if i%2 == 0 {
			activate(v2.ID)
		} else {
			activate(v1.ID)
		}
		c.Reload(ctx)
	}
	close(stop)
	wg.Wait()
}

func TestRetrainSkipsBelowThreshold(t *testing.T) {
	db := classifierTestDB(t)
	store := artifacts.NewLocalStoreAt(t.TempDir(), testLogger(t))
	seedSymptoms(t, db, 1.0)

	c := newTestClassifier(t, db, store)
	if err := c.Retrain(context.Background()); err != nil {
		t.Fatalf("Retrain below threshold should be a no-op, got %v", err)
	}

	log := testLogger(t)
	repo := repos.NewModelVersionRepo(db, log)
	rows, err := repo.ListByName(context.Background(), nil, "leafsense-symptom")
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("Retrain below threshold recorded %d versions, want 0", len(rows))
	}
}
