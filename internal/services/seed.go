package services

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/repos"
	"github.com/grovelabs/leafsense-backend/internal/types"
)

type seedFile struct {
	Symptoms []struct {
		Name        string `yaml:"name"`
		Category    string `yaml:"category"`
		Description string `yaml:"description"`
		// Pointer so an explicit 0 is distinguishable from an omitted
		// weight, which defaults to 1.0.
		Weight *float64 `yaml:"weight"`
	} `yaml:"symptoms"`
	Diseases []struct {
		Label          string `yaml:"label"`
		ScientificName string `yaml:"scientific_name"`
		Description    string `yaml:"description"`
		Treatment      string `yaml:"treatment"`
	} `yaml:"diseases"`
}

// SeedService loads the symptom ontology and disease catalog from a YAML
// file at boot. Upserts by natural key, so re-running against an already
// seeded database is a no-op apart from updates.
type SeedService interface {
	SeedFromFile(ctx context.Context, path string) error
}

type seedService struct {
	log      *logger.Logger
	symptoms repos.SymptomRepo
	diseases repos.DiseaseRepo
}

func NewSeedService(symptoms repos.SymptomRepo, diseases repos.DiseaseRepo, baseLog *logger.Logger) SeedService {
	return &seedService{
		log:      baseLog.With("service", "SeedService"),
		symptoms: symptoms,
		diseases: diseases,
	}
}

func (s *seedService) SeedFromFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file %q: %w", path, err)
	}
	var parsed seedFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("parse seed file %q: %w", path, err)
	}

	for _, sym := range parsed.Symptoms {
		if sym.Name == "" {
			return fmt.Errorf("seed symptom with empty name")
		}
		weight := 1.0
		if sym.Weight != nil {
			weight = *sym.Weight
		}
		row := &types.Symptom{
			Name:        sym.Name,
			Category:    sym.Category,
			Description: sym.Description,
			Active:      true,
			Weight:      weight,
		}
		if err := s.symptoms.UpsertByName(ctx, nil, row); err != nil {
			return fmt.Errorf("seed symptom %q: %w", sym.Name, err)
		}
	}

	for _, d := range parsed.Diseases {
		if d.Label == "" {
			return fmt.Errorf("seed disease with empty label")
		}
		row := &types.Disease{
			Label:          d.Label,
			ScientificName: d.ScientificName,
			Description:    d.Description,
			Treatment:      d.Treatment,
		}
		if err := s.diseases.UpsertByLabel(ctx, nil, row); err != nil {
			return fmt.Errorf("seed disease %q: %w", d.Label, err)
		}
	}

	s.log.Info("Seed data loaded", "symptoms", len(parsed.Symptoms), "diseases", len(parsed.Diseases))
	return nil
}
