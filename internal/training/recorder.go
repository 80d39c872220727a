package training

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Run is one completed training run, as recorded for experiment tracking.
type Run struct {
	Version      string
	ModelType    string
	Metrics      map[string]float64
	TrainedAt    time.Time
	TrainingRows int
	DroppedRows  int
	Duration     time.Duration
}

// Recorder persists training runs for later comparison.
type Recorder interface {
	RecordRun(ctx context.Context, run Run) error
}

// PostgresRecorder writes runs to a training_runs table.
type PostgresRecorder struct {
	db *sqlx.DB
}

// NewPostgresRecorder connects to Postgres and ensures the table exists.
func NewPostgresRecorder(ctx context.Context, dsn string) (*PostgresRecorder, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	const ddl = `
		CREATE TABLE IF NOT EXISTS training_runs (
			id            BIGSERIAL PRIMARY KEY,
			version       TEXT NOT NULL,
			model_type    TEXT NOT NULL,
			metrics       JSONB NOT NULL,
			training_rows INTEGER NOT NULL,
			dropped_rows  INTEGER NOT NULL,
			duration_ms   BIGINT NOT NULL,
			trained_at    TIMESTAMPTZ NOT NULL,
			recorded_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure training_runs table: %w", err)
	}

	return &PostgresRecorder{db: db}, nil
}

// RecordRun inserts one run row.
func (r *PostgresRecorder) RecordRun(ctx context.Context, run Run) error {
	metricsJSON, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal run metrics: %w", err)
	}

	const query = `
		INSERT INTO training_runs (
			version, model_type, metrics,
			training_rows, dropped_rows, duration_ms, trained_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.db.ExecContext(ctx, query,
		run.Version, run.ModelType, metricsJSON,
		run.TrainingRows, run.DroppedRows, run.Duration.Milliseconds(), run.TrainedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert training run: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (r *PostgresRecorder) Close() error {
	return r.db.Close()
}
