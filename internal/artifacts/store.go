package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/utils"
)

// Store is the artifact file store consumed by the classifier runtime and
// the retrain data-preparation step.
type Store interface {
	Exists(path string) bool
	ReadBytes(path string) ([]byte, error)
	WriteBytes(path string, data []byte) error
}

type localStore struct {
	root string
	log  *logger.Logger
}

func NewLocalStore(baseLog *logger.Logger) Store {
	root := utils.GetEnv("ARTIFACT_ROOT", "./artifacts", baseLog)
	return &localStore{
		root: root,
		log:  baseLog.With("service", "ArtifactStore"),
	}
}

func NewLocalStoreAt(root string, baseLog *logger.Logger) Store {
	return &localStore{root: root, log: baseLog.With("service", "ArtifactStore")}
}

func (s *localStore) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.root, path)
}

func (s *localStore) Exists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	info, err := os.Stat(s.resolve(path))
	return err == nil && !info.IsDir()
}

func (s *localStore) ReadBytes(path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("artifact path is empty")
	}
	data, err := os.ReadFile(s.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("read artifact %q: %w", path, err)
	}
	return data, nil
}

func (s *localStore) WriteBytes(path string, data []byte) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("artifact path is empty")
	}
	full := s.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("mkdir for artifact %q: %w", path, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write artifact %q: %w", path, err)
	}
	return nil
}

// Checksum returns the sha256 hex digest used as the registry file checksum.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum compares artifact bytes against the registry checksum.
// An empty expected checksum skips verification.
func VerifyChecksum(data []byte, expected string) error {
	expected = strings.TrimSpace(strings.ToLower(expected))
	if expected == "" {
		return nil
	}
	actual := Checksum(data)
	if actual != expected {
		return fmt.Errorf("artifact checksum mismatch: have %s, want %s", actual, expected)
	}
	return nil
}
