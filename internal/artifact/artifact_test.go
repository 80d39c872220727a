package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/stayml/listing-price-service/internal/model"
	"github.com/stayml/listing-price-service/internal/schema"
)

func testArtifact(t *testing.T) *Artifact {
	t.Helper()

	minZero := 0.0
	s := &schema.Schema{
		Fields: []schema.Field{
			{Name: "location", Kind: schema.KindCategorical, Categories: []string{"A", "B"}},
			{Name: "room_type", Kind: schema.KindCategorical, Categories: []string{"entire_home", "private_room"}},
			{Name: "availability_days", Kind: schema.KindNumeric, Min: &minZero},
		},
	}
	cols := model.EncodedColumns(s)
	m := &model.Linear{
		Intercept: 50,
		Weights:   []float64{0, -20, 2},
		Columns:   cols,
	}
	require.NoError(t, m.Validate(s))

	return &Artifact{
		Schema: s,
		Model:  m,
		Metadata: Metadata{
			ModelType:    "linear_regression",
			TrainedAt:    time.Now().UTC().Truncate(time.Second),
			Metrics:      map[string]float64{"mae": 1.2, "rmse": 2.3, "r2": 0.91},
			TrainingRows: 480,
			FeatureCount: 3,
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	a := testArtifact(t)

	data, err := a.Encode()
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, a.Model.Intercept, got.Model.Intercept)
	assert.Equal(t, a.Model.Weights, got.Model.Weights)
	assert.Equal(t, a.Schema.Names(), got.Schema.Names())
	assert.Equal(t, a.Metadata.Metrics, got.Metadata.Metrics)
}

func TestDecodeRejectsCorruption(t *testing.T) {
	a := testArtifact(t)
	data, err := a.Encode()
	require.NoError(t, err)

	t.Run("edited payload", func(t *testing.T) {
		tampered := bytes.Replace(data, []byte("linear_regression"), []byte("linear_regressioN"), 1)
		require.NotEqual(t, data, tampered)

		_, err := Decode(tampered)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrCorrupt))
	})

	t.Run("stale checksum", func(t *testing.T) {
		var env map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &env))
		env["checksum"] = json.RawMessage(fmt.Sprintf("%q", strings.Repeat("0", 64)))

		tampered, err := json.Marshal(env)
		require.NoError(t, err)

		_, err = Decode(tampered)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrCorrupt))
	})

	t.Run("truncated file", func(t *testing.T) {
		_, err := Decode(data[:len(data)/2])
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrCorrupt))
	})

	t.Run("not json", func(t *testing.T) {
		_, err := Decode([]byte("not an artifact"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrCorrupt))
	})
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStoreSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, zaptest.NewLogger(t))
	require.NoError(t, err)

	a := testArtifact(t)
	version, err := store.Save(a, "")
	require.NoError(t, err)
	assert.Equal(t, "v1.0.0", version)

	got, err := store.LoadLatest()
	require.NoError(t, err)
	assert.Equal(t, "v1.0.0", got.Metadata.Version)
	assert.Equal(t, a.Model.Weights, got.Model.Weights)

	// Second save bumps the patch version and re-points latest.
	b := testArtifact(t)
	b.Model.Intercept = 60
	version, err = store.Save(b, "")
	require.NoError(t, err)
	assert.Equal(t, "v1.0.1", version)

	got, err = store.LoadLatest()
	require.NoError(t, err)
	assert.Equal(t, "v1.0.1", got.Metadata.Version)
	assert.Equal(t, 60.0, got.Model.Intercept)

	// The first version remains loadable and unchanged.
	got, err = store.LoadVersion("v1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.Model.Intercept)

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "v1.0.0", list[0].Version)
	assert.Equal(t, "v1.0.1", list[1].Version)
}

func TestStoreRefusesOverwrite(t *testing.T) {
	store, err := NewStore(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = store.Save(testArtifact(t), "v2.0.0")
	require.NoError(t, err)

	_, err = store.Save(testArtifact(t), "v2.0.0")
	require.Error(t, err)
}

func TestStorePrune(t *testing.T) {
	store, err := NewStore(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := store.Save(testArtifact(t), "")
		require.NoError(t, err)
	}

	deleted, err := store.Prune(2)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "v1.0.2", list[0].Version)
	assert.Equal(t, "v1.0.3", list[1].Version)

	// Pruned versions are gone; the newest still loads.
	_, err = store.LoadVersion("v1.0.0")
	require.Error(t, err)
	_, err = store.LoadVersion("v1.0.3")
	require.NoError(t, err)

	// Pruning below the floor is rejected; pruning a satisfied store is a no-op.
	_, err = store.Prune(0)
	require.Error(t, err)
	deleted, err = store.Prune(5)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestStoreVersionHygiene(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = store.Save(testArtifact(t), "v1.0.1")
	require.NoError(t, err)

	// A stray directory with a version-like prefix must not influence the
	// next bump or show up in listings.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "versions", "v1.0.1-rc"), 0o755))

	next, err := store.NextVersion()
	require.NoError(t, err)
	assert.Equal(t, "v1.0.2", next)

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "v1.0.1", list[0].Version)

	// Forced versions must be canonical.
	for _, bad := range []string{"1.0.0", "v1.0", "v1.0.0-rc", "v1.0.0 "} {
		_, err := store.Save(testArtifact(t), bad)
		assert.Error(t, err, "version %q", bad)
	}
}

func TestStoreVersionOrdering(t *testing.T) {
	store, err := NewStore(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)

	for _, v := range []string{"v1.0.9", "v1.0.10", "v1.0.2"} {
		_, err := store.Save(testArtifact(t), v)
		require.NoError(t, err)
	}

	// Numeric, not lexicographic: the bump follows v1.0.10.
	next, err := store.NextVersion()
	require.NoError(t, err)
	assert.Equal(t, "v1.0.11", next)
}

func TestStoreIndexFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = store.Save(testArtifact(t), "")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	require.NoError(t, err)

	var idx struct {
		LatestVersion string     `json:"latest_version"`
		Versions      []Metadata `json:"versions"`
	}
	require.NoError(t, json.Unmarshal(data, &idx))
	assert.Equal(t, "v1.0.0", idx.LatestVersion)
	require.Len(t, idx.Versions, 1)
}
