// Package training runs the offline pipeline that produces model artifacts:
// load dataset, fit, evaluate, persist, and optionally record and mirror the
// run. Nothing here runs in the request path of the inference service.
package training

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/stayml/listing-price-service/internal/artifact"
	"github.com/stayml/listing-price-service/internal/dataset"
	"github.com/stayml/listing-price-service/internal/model"
	"github.com/stayml/listing-price-service/internal/schema"
)

const modelType = "linear_regression"

// Config is the trainer's YAML configuration: where the data lives, which
// column is the target, how to split, and the fixed feature schema the
// artifact will carry.
type Config struct {
	Dataset      string        `yaml:"dataset"`
	Target       string        `yaml:"target"`
	TestFraction float64       `yaml:"test_fraction"`
	Seed         int64         `yaml:"seed"`
	Schema       schema.Schema `yaml:"schema"`
}

// LoadConfig reads and validates a trainer config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read training config %s: %w", path, err)
	}

	cfg := &Config{TestFraction: 0.2, Seed: 42}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse training config: %w", err)
	}

	if cfg.Dataset == "" {
		return nil, fmt.Errorf("training config: dataset path is required")
	}
	if cfg.Target == "" {
		return nil, fmt.Errorf("training config: target column is required")
	}
	if err := cfg.Schema.ValidateSpec(); err != nil {
		return nil, fmt.Errorf("training config: %w", err)
	}
	return cfg, nil
}

// Pipeline wires the training steps together. Recorder and Mirror are
// optional; a nil value disables that step.
type Pipeline struct {
	store    *artifact.Store
	recorder Recorder
	mirror   *artifact.Mirror
	logger   *zap.Logger
}

// NewPipeline creates a pipeline writing to the given store.
func NewPipeline(store *artifact.Store, recorder Recorder, mirror *artifact.Mirror, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		recorder: recorder,
		mirror:   mirror,
		logger:   logger,
	}
}

// Run executes one training run and returns the metadata of the saved
// artifact. The version is assigned by the store unless forced.
func (p *Pipeline) Run(ctx context.Context, cfg *Config, version string) (*artifact.Metadata, error) {
	start := time.Now()

	ds, err := dataset.Load(cfg.Dataset, &cfg.Schema, cfg.Target)
	if err != nil {
		return nil, err
	}
	p.logger.Info("Dataset loaded",
		zap.String("path", cfg.Dataset),
		zap.Int("rows", len(ds.Rows)),
		zap.Int("dropped_rows", ds.DroppedRows),
	)

	train, test, err := ds.Split(cfg.TestFraction, cfg.Seed)
	if err != nil {
		return nil, err
	}

	m, err := model.Fit(&cfg.Schema, train.Rows, train.Targets)
	if err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}

	// Score on the held-out split when there is one; report training error
	// otherwise so small runs still carry metrics.
	scored := test
	if len(test.Rows) == 0 {
		scored = train
	}
	metrics, err := Evaluate(&cfg.Schema, m, scored)
	if err != nil {
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}
	p.logger.Info("Model evaluated",
		zap.Float64("mae", metrics["mae"]),
		zap.Float64("rmse", metrics["rmse"]),
		zap.Float64("r2", metrics["r2"]),
		zap.Int("test_rows", len(scored.Rows)),
	)

	art := &artifact.Artifact{
		Schema: &cfg.Schema,
		Model:  m,
		Metadata: artifact.Metadata{
			ModelType:    modelType,
			TrainedAt:    time.Now().UTC(),
			Metrics:      metrics,
			TrainingRows: len(train.Rows),
			DroppedRows:  ds.DroppedRows,
			FeatureCount: len(cfg.Schema.Fields),
		},
	}

	savedVersion, err := p.store.Save(art, version)
	if err != nil {
		return nil, err
	}

	if p.recorder != nil {
		run := Run{
			Version:      savedVersion,
			ModelType:    modelType,
			Metrics:      metrics,
			TrainedAt:    art.Metadata.TrainedAt,
			TrainingRows: len(train.Rows),
			DroppedRows:  ds.DroppedRows,
			Duration:     time.Since(start),
		}
		if err := p.recorder.RecordRun(ctx, run); err != nil {
			// The artifact is already persisted; a lost run record is not
			// worth failing the whole training run over.
			p.logger.Warn("Failed to record training run", zap.Error(err))
		}
	}

	if p.mirror != nil {
		data, err := art.Encode()
		if err != nil {
			return nil, err
		}
		if err := p.mirror.Upload(ctx, savedVersion, data); err != nil {
			return nil, fmt.Errorf("failed to mirror artifact: %w", err)
		}
	}

	p.logger.Info("Training run completed",
		zap.String("version", savedVersion),
		zap.Duration("duration", time.Since(start)),
	)
	return &art.Metadata, nil
}
