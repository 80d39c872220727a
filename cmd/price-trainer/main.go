package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"cloud.google.com/go/storage"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/stayml/listing-price-service/internal/artifact"
	"github.com/stayml/listing-price-service/internal/dataset"
	"github.com/stayml/listing-price-service/internal/drift"
	"github.com/stayml/listing-price-service/internal/training"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cmd := &cli.Command{
		Name:  "price-trainer",
		Usage: "Train listing price models and manage their artifacts",
		Commands: []*cli.Command{
			trainCmd(logger),
			versionsCmd(logger),
			pruneCmd(logger),
			driftCmd(logger),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Fatal("Command failed", zap.Error(err))
	}
}

func trainCmd(logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "train",
		Usage: "Fit a model from a CSV dataset and save a versioned artifact",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "train.yaml",
				Usage:   "Path to the training config file",
			},
			&cli.StringFlag{
				Name:  "artifacts",
				Value: "artifacts",
				Usage: "Root directory of the artifact store",
			},
			&cli.StringFlag{
				Name:  "version",
				Usage: "Force a version instead of bumping the latest patch",
			},
			&cli.StringFlag{
				Name:  "postgres-dsn",
				Usage: "Record the run to this Postgres instance (optional)",
			},
			&cli.StringFlag{
				Name:  "bucket",
				Usage: "Mirror the artifact to this Cloud Storage bucket (optional)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := training.LoadConfig(cmd.String("config"))
			if err != nil {
				return err
			}

			store, err := artifact.NewStore(cmd.String("artifacts"), logger.Named("store"))
			if err != nil {
				return err
			}

			var recorder training.Recorder
			if dsn := cmd.String("postgres-dsn"); dsn != "" {
				pg, err := training.NewPostgresRecorder(ctx, dsn)
				if err != nil {
					return err
				}
				defer pg.Close()
				recorder = pg
			}

			var mirror *artifact.Mirror
			if bucket := cmd.String("bucket"); bucket != "" {
				client, err := storage.NewClient(ctx)
				if err != nil {
					return fmt.Errorf("failed to create storage client: %w", err)
				}
				defer client.Close()
				mirror = artifact.NewMirror(client, bucket, logger.Named("gcs"))
			}

			pipeline := training.NewPipeline(store, recorder, mirror, logger.Named("pipeline"))
			meta, err := pipeline.Run(ctx, cfg, cmd.String("version"))
			if err != nil {
				return err
			}

			return printJSON(meta)
		},
	}
}

func versionsCmd(logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "versions",
		Usage: "List stored artifact versions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "artifacts",
				Value: "artifacts",
				Usage: "Root directory of the artifact store",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			store, err := artifact.NewStore(cmd.String("artifacts"), logger.Named("store"))
			if err != nil {
				return err
			}

			list, err := store.List()
			if err != nil {
				return err
			}
			return printJSON(list)
		},
	}
}

func pruneCmd(logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete old artifact versions, keeping the newest ones",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "artifacts",
				Value: "artifacts",
				Usage: "Root directory of the artifact store",
			},
			&cli.IntFlag{
				Name:  "keep",
				Value: 5,
				Usage: "Number of most recent versions to keep",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			store, err := artifact.NewStore(cmd.String("artifacts"), logger.Named("store"))
			if err != nil {
				return err
			}

			deleted, err := store.Prune(int(cmd.Int("keep")))
			if err != nil {
				return err
			}
			logger.Info("Prune completed", zap.Int("deleted_versions", deleted))
			return nil
		},
	}
}

func driftCmd(logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "drift",
		Usage: "Compare a current dataset against the training reference",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "train.yaml",
				Usage:   "Training config holding the schema and reference dataset",
			},
			&cli.StringFlag{
				Name:     "current",
				Required: true,
				Usage:    "Path to the current dataset CSV",
			},
			&cli.FloatFlag{
				Name:  "threshold",
				Value: 2.0,
				Usage: "Mean shift, in reference standard deviations, that counts as drift",
			},
			&cli.StringFlag{
				Name:  "output",
				Value: "drift_report.json",
				Usage: "Where to write the report",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := training.LoadConfig(cmd.String("config"))
			if err != nil {
				return err
			}

			reference, err := dataset.Load(cfg.Dataset, &cfg.Schema, cfg.Target)
			if err != nil {
				return fmt.Errorf("failed to load reference dataset: %w", err)
			}
			current, err := dataset.Load(cmd.String("current"), &cfg.Schema, cfg.Target)
			if err != nil {
				return fmt.Errorf("failed to load current dataset: %w", err)
			}

			report, err := drift.Compare(&cfg.Schema, reference, current, cmd.Float("threshold"))
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			out := cmd.String("output")
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("failed to write drift report: %w", err)
			}

			logger.Info("Drift report written",
				zap.String("path", out),
				zap.Int("drifted_features", report.DriftedCount),
			)
			return nil
		},
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
