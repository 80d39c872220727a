// Package artifact defines the serialized model artifact shared between the
// trainer and the inference service, and the versioned store it lives in.
package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/stayml/listing-price-service/internal/model"
	"github.com/stayml/listing-price-service/internal/schema"
)

var (
	// ErrNotFound means no artifact exists at the requested location.
	ErrNotFound = errors.New("artifact not found")
	// ErrCorrupt means the artifact bytes fail checksum or decode checks.
	ErrCorrupt = errors.New("artifact is corrupt")
)

// Metadata describes one training run's output.
type Metadata struct {
	Version      string             `json:"version"`
	ModelType    string             `json:"model_type"`
	TrainedAt    time.Time          `json:"trained_at"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	TrainingRows int                `json:"training_rows"`
	DroppedRows  int                `json:"dropped_rows"`
	FeatureCount int                `json:"feature_count"`
}

// Artifact is the immutable unit the producer writes and the service loads:
// the fitted model, the exact feature schema it was fitted against, and run
// metadata. Once written it is never mutated, only superseded.
type Artifact struct {
	Schema   *schema.Schema `json:"schema"`
	Model    *model.Linear  `json:"model"`
	Metadata Metadata       `json:"metadata"`
}

// envelope wraps the payload with a sha256 checksum so a truncated or
// hand-edited file is detected at load time.
type envelope struct {
	Checksum string          `json:"checksum"`
	Payload  json.RawMessage `json:"payload"`
}

// checksum hashes the compact form of the payload, so re-indenting the file
// does not count as corruption but any value change does.
func checksum(payload json.RawMessage) (string, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err != nil {
		return "", fmt.Errorf("unhashable payload: %v", err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(compact.Bytes())), nil
}

// Encode serializes the artifact with its checksum envelope.
func (a *Artifact) Encode() ([]byte, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal artifact: %w", err)
	}

	sum, err := checksum(payload)
	if err != nil {
		return nil, err
	}
	env := envelope{
		Checksum: sum,
		Payload:  payload,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal artifact envelope: %w", err)
	}
	return data, nil
}

// Decode parses and verifies artifact bytes. Checksum mismatches and invalid
// model/schema state both surface as ErrCorrupt.
func Decode(data []byte) (*Artifact, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: not a valid artifact envelope: %v", ErrCorrupt, err)
	}

	sum, err := checksum(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if sum != env.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	var a Artifact
	if err := json.Unmarshal(env.Payload, &a); err != nil {
		return nil, fmt.Errorf("%w: undecodable payload: %v", ErrCorrupt, err)
	}
	if a.Schema == nil || a.Model == nil {
		return nil, fmt.Errorf("%w: missing schema or model", ErrCorrupt)
	}
	if err := a.Schema.ValidateSpec(); err != nil {
		return nil, fmt.Errorf("%w: invalid schema: %v", ErrCorrupt, err)
	}
	if err := a.Model.Validate(a.Schema); err != nil {
		return nil, fmt.Errorf("%w: invalid model: %v", ErrCorrupt, err)
	}
	return &a, nil
}

// LoadFile reads and verifies an artifact from a local path.
func LoadFile(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	return Decode(data)
}
