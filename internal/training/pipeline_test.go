package training

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/stayml/listing-price-service/internal/artifact"
	"github.com/stayml/listing-price-service/internal/schema"
)

func writeTrainingFixture(t *testing.T) (csvPath string, cfg *Config) {
	t.Helper()
	dir := t.TempDir()

	var rows []string
	rows = append(rows, "location,room_type,availability_days,price")
	for _, loc := range []string{"A", "B"} {
		for _, rt := range []string{"entire_home", "private_room"} {
			base := 50.0
			if rt == "private_room" {
				base = 30.0
			}
			for days := 0; days <= 90; days += 5 {
				rows = append(rows, fmt.Sprintf("%s,%s,%d,%g", loc, rt, days, base+2*float64(days)))
			}
		}
	}
	// A couple of rows without a price, which the loader must drop.
	rows = append(rows, "A,entire_home,12,")
	rows = append(rows, "B,private_room,7,")

	csvPath = filepath.Join(dir, "listings.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(strings.Join(rows, "\n")+"\n"), 0o644))

	minZero := 0.0
	cfg = &Config{
		Dataset:      csvPath,
		Target:       "price",
		TestFraction: 0.2,
		Seed:         42,
		Schema: schema.Schema{
			Fields: []schema.Field{
				{Name: "location", Kind: schema.KindCategorical, Categories: []string{"A", "B"}},
				{Name: "room_type", Kind: schema.KindCategorical, Categories: []string{"entire_home", "private_room"}},
				{Name: "availability_days", Kind: schema.KindNumeric, Min: &minZero},
			},
		},
	}
	return csvPath, cfg
}

type memRecorder struct {
	runs []Run
}

func (m *memRecorder) RecordRun(_ context.Context, run Run) error {
	m.runs = append(m.runs, run)
	return nil
}

func TestPipelineRun(t *testing.T) {
	_, cfg := writeTrainingFixture(t)

	store, err := artifact.NewStore(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)

	rec := &memRecorder{}
	p := NewPipeline(store, rec, nil, zaptest.NewLogger(t))

	meta, err := p.Run(context.Background(), cfg, "")
	require.NoError(t, err)
	assert.Equal(t, "v1.0.0", meta.Version)
	assert.Equal(t, "linear_regression", meta.ModelType)
	assert.Equal(t, 2, meta.DroppedRows)

	// The synthetic relation is exactly linear, so the held-out error is
	// numerically zero and R² is 1.
	assert.Less(t, meta.Metrics["mae"], 1e-6)
	assert.Less(t, meta.Metrics["rmse"], 1e-6)
	assert.InDelta(t, 1.0, meta.Metrics["r2"], 1e-9)

	// The saved artifact reproduces the training relation.
	art, err := store.LoadLatest()
	require.NoError(t, err)

	vec, fieldErrs := art.Schema.Validate(map[string]interface{}{
		"location":          "A",
		"room_type":         "entire_home",
		"availability_days": 30.0,
	})
	require.Empty(t, fieldErrs)

	price, err := art.Model.Predict(art.Schema, vec)
	require.NoError(t, err)
	assert.InDelta(t, 110.0, price, 1e-6)

	// The run was recorded.
	require.Len(t, rec.runs, 1)
	assert.Equal(t, "v1.0.0", rec.runs[0].Version)
	assert.Equal(t, meta.TrainingRows, rec.runs[0].TrainingRows)
}

func TestPipelineRunIsDeterministic(t *testing.T) {
	_, cfg := writeTrainingFixture(t)

	storeA, err := artifact.NewStore(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	storeB, err := artifact.NewStore(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = NewPipeline(storeA, nil, nil, zaptest.NewLogger(t)).Run(context.Background(), cfg, "")
	require.NoError(t, err)
	_, err = NewPipeline(storeB, nil, nil, zaptest.NewLogger(t)).Run(context.Background(), cfg, "")
	require.NoError(t, err)

	a, err := storeA.LoadLatest()
	require.NoError(t, err)
	b, err := storeB.LoadLatest()
	require.NoError(t, err)

	require.Len(t, b.Model.Weights, len(a.Model.Weights))
	for i := range a.Model.Weights {
		if math.Abs(a.Model.Weights[i]-b.Model.Weights[i]) > 1e-12 {
			t.Fatalf("weight %d differs between identical runs: %v vs %v", i, a.Model.Weights[i], b.Model.Weights[i])
		}
	}
}

func TestPipelineFailsOnBadDataset(t *testing.T) {
	_, cfg := writeTrainingFixture(t)
	cfg.Dataset = filepath.Join(t.TempDir(), "absent.csv")

	store, err := artifact.NewStore(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = NewPipeline(store, nil, nil, zaptest.NewLogger(t)).Run(context.Background(), cfg, "")
	require.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "train.yaml")

	const doc = `
dataset: data/listings.csv
target: price
test_fraction: 0.25
seed: 7
schema:
  fields:
    - name: location
      kind: categorical
      categories: [A, B, C]
    - name: availability_days
      kind: numeric
      min: 0
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "data/listings.csv", cfg.Dataset)
	assert.Equal(t, "price", cfg.Target)
	assert.Equal(t, 0.25, cfg.TestFraction)
	assert.Equal(t, int64(7), cfg.Seed)
	require.Len(t, cfg.Schema.Fields, 2)
	require.NotNil(t, cfg.Schema.Fields[1].Min)
	assert.Equal(t, 0.0, *cfg.Schema.Fields[1].Min)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		doc  string
	}{
		{name: "no dataset", doc: "target: price\nschema:\n  fields:\n    - {name: x, kind: numeric}\n"},
		{name: "no target", doc: "dataset: d.csv\nschema:\n  fields:\n    - {name: x, kind: numeric}\n"},
		{name: "empty schema", doc: "dataset: d.csv\ntarget: price\n"},
		{name: "bad yaml", doc: "dataset: [unclosed\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.doc), 0o644))
			_, err := LoadConfig(path)
			require.Error(t, err)
		})
	}
}
