package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
)

const (
	artifactFile = "artifact.json"
	metadataFile = "metadata.json"
	metricsFile  = "metrics.json"
	versionsDir  = "versions"
	latestDir    = "latest"
)

// Store is a versioned, append-only artifact store on the local filesystem:
//
//	<root>/versions/v1.0.3/artifact.json
//	<root>/versions/v1.0.3/metadata.json
//	<root>/versions/v1.0.3/metrics.json
//	<root>/latest/artifact.json          (copy of the newest version)
//	<root>/metadata.json                 (global index)
type Store struct {
	root   string
	logger *zap.Logger
}

// index is the global metadata file tracking all saved versions.
type index struct {
	LatestVersion string     `json:"latest_version"`
	LastUpdated   time.Time  `json:"last_updated"`
	Versions      []Metadata `json:"versions"`
}

// NewStore creates the store directories if needed.
func NewStore(root string, logger *zap.Logger) (*Store, error) {
	for _, dir := range []string{filepath.Join(root, versionsDir), filepath.Join(root, latestDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
		}
	}
	return &Store{root: root, logger: logger}, nil
}

// NextVersion returns the next patch version after the newest stored one,
// or v1.0.0 for an empty store.
func (s *Store) NextVersion() (string, error) {
	versions, err := s.versionNames()
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "v1.0.0", nil
	}

	latest := versions[len(versions)-1]
	major, minor, patch, ok := parseVersion(latest)
	if !ok {
		return "", fmt.Errorf("unparsable version directory %q", latest)
	}
	return fmt.Sprintf("v%d.%d.%d", major, minor, patch+1), nil
}

// parseVersion parses a canonical vMAJOR.MINOR.PATCH name. Sscanf alone
// accepts trailing garbage, so the parsed triple is formatted back and
// compared against the input.
func parseVersion(v string) (major, minor, patch int, ok bool) {
	if _, err := fmt.Sscanf(v, "v%d.%d.%d", &major, &minor, &patch); err != nil {
		return 0, 0, 0, false
	}
	if fmt.Sprintf("v%d.%d.%d", major, minor, patch) != v {
		return 0, 0, 0, false
	}
	return major, minor, patch, true
}

// Save writes the artifact under the given version (next patch version when
// empty) and points latest/ at it. The versioned copy is never overwritten;
// the latest copy is.
func (s *Store) Save(a *Artifact, version string) (string, error) {
	if version == "" {
		next, err := s.NextVersion()
		if err != nil {
			return "", err
		}
		version = next
	}
	if _, _, _, ok := parseVersion(version); !ok {
		return "", fmt.Errorf("invalid version %q, expected vMAJOR.MINOR.PATCH", version)
	}
	a.Metadata.Version = version

	dir := filepath.Join(s.root, versionsDir, version)
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("version %s already exists", version)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create version directory: %w", err)
	}

	data, err := a.Encode()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, artifactFile), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, metadataFile), a.Metadata); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(dir, metricsFile), a.Metadata.Metrics); err != nil {
		return "", err
	}

	// latest/ is a plain copy so readers never depend on symlink support.
	if err := os.WriteFile(filepath.Join(s.root, latestDir, artifactFile), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to update latest artifact: %w", err)
	}

	if err := s.updateIndex(a.Metadata); err != nil {
		return "", err
	}

	s.logger.Info("Artifact saved",
		zap.String("version", version),
		zap.String("path", dir),
		zap.Int("size_bytes", len(data)),
	)
	return version, nil
}

// LoadLatest loads and verifies the newest artifact.
func (s *Store) LoadLatest() (*Artifact, error) {
	return LoadFile(s.LatestPath())
}

// LoadVersion loads and verifies a specific version.
func (s *Store) LoadVersion(version string) (*Artifact, error) {
	return LoadFile(filepath.Join(s.root, versionsDir, version, artifactFile))
}

// LatestPath returns the path of the latest artifact copy.
func (s *Store) LatestPath() string {
	return filepath.Join(s.root, latestDir, artifactFile)
}

// List returns metadata for all stored versions, oldest first.
func (s *Store) List() ([]Metadata, error) {
	versions, err := s.versionNames()
	if err != nil {
		return nil, err
	}

	var out []Metadata
	for _, v := range versions {
		var meta Metadata
		path := filepath.Join(s.root, versionsDir, v, metadataFile)
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("Skipping version without metadata", zap.String("version", v), zap.Error(err))
			continue
		}
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("unparsable metadata for version %s: %w", v, err)
		}
		out = append(out, meta)
	}
	return out, nil
}

// Prune deletes the oldest stored versions, keeping the newest keep of them.
// The latest/ copy and the index always reflect the surviving versions.
func (s *Store) Prune(keep int) (int, error) {
	if keep < 1 {
		return 0, fmt.Errorf("must keep at least one version, got %d", keep)
	}

	versions, err := s.versionNames()
	if err != nil {
		return 0, err
	}
	if len(versions) <= keep {
		return 0, nil
	}

	victims := versions[:len(versions)-keep]
	for _, v := range victims {
		if err := os.RemoveAll(filepath.Join(s.root, versionsDir, v)); err != nil {
			return 0, fmt.Errorf("failed to delete version %s: %w", v, err)
		}
		s.logger.Info("Pruned artifact version", zap.String("version", v))
	}

	if err := s.rewriteIndex(); err != nil {
		return 0, err
	}
	return len(victims), nil
}

// rewriteIndex rebuilds the global index from the surviving version dirs.
func (s *Store) rewriteIndex() error {
	metas, err := s.List()
	if err != nil {
		return err
	}

	var idx index
	idx.Versions = metas
	if len(metas) > 0 {
		last := metas[len(metas)-1]
		idx.LatestVersion = last.Version
		idx.LastUpdated = last.TrainedAt
	}
	return writeJSON(filepath.Join(s.root, metadataFile), idx)
}

func (s *Store) versionNames() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, versionsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}

	var versions []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		// Only canonical version directories count; anything else would
		// corrupt the next bump.
		if _, _, _, ok := parseVersion(e.Name()); !ok {
			s.logger.Warn("Ignoring non-version directory", zap.String("name", e.Name()))
			continue
		}
		versions = append(versions, e.Name())
	}
	// Numeric ordering, so v1.0.10 sorts after v1.0.9.
	sort.Slice(versions, func(i, j int) bool {
		return versionLess(versions[i], versions[j])
	})
	return versions, nil
}

func versionLess(a, b string) bool {
	am, an, ap, aok := parseVersion(a)
	bm, bn, bp, bok := parseVersion(b)
	if !aok || !bok {
		return a < b
	}
	if am != bm {
		return am < bm
	}
	if an != bn {
		return an < bn
	}
	return ap < bp
}

func (s *Store) updateIndex(meta Metadata) error {
	path := filepath.Join(s.root, metadataFile)

	var idx index
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &idx); err != nil {
			return fmt.Errorf("unparsable store index: %w", err)
		}
	}

	kept := idx.Versions[:0]
	for _, v := range idx.Versions {
		if v.Version != meta.Version {
			kept = append(kept, v)
		}
	}
	idx.Versions = append(kept, meta)
	sort.Slice(idx.Versions, func(i, j int) bool {
		return idx.Versions[i].TrainedAt.Before(idx.Versions[j].TrainedAt)
	})
	idx.LatestVersion = meta.Version
	idx.LastUpdated = meta.TrainedAt

	return writeJSON(path, idx)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
