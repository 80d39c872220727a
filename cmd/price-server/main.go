package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stayml/listing-price-service/internal/artifact"
	"github.com/stayml/listing-price-service/internal/config"
	"github.com/stayml/listing-price-service/internal/metrics"
	"github.com/stayml/listing-price-service/internal/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Initialize structured logging
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load the artifact exactly once. Any failure here is fatal: the
	// service never starts without a verified model.
	art, err := loadArtifact(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to load model artifact", zap.Error(err))
	}
	logger.Info("Artifact loaded",
		zap.String("version", art.Metadata.Version),
		zap.String("model_type", art.Metadata.ModelType),
		zap.Int("feature_count", art.Metadata.FeatureCount),
		zap.Time("trained_at", art.Metadata.TrainedAt),
	)

	// Initialize metrics
	metricsRegistry := prometheus.NewRegistry()
	metricsCollector := metrics.NewCollector()
	metricsRegistry.MustRegister(metricsCollector)

	srv := server.New(cfg.Server, art, logger.Named("http"), metricsCollector)

	logger.Info("Starting inference service",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start(gctx)
	})

	// Metrics server on its own port
	g.Go(func() error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))

		metricsServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}

		go func() {
			<-gctx.Done()
			metricsServer.Close()
		}()

		logger.Info("Starting metrics server", zap.Int("port", cfg.Metrics.Port))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
	logger.Info("Server stopped gracefully")
}

// loadArtifact acquires the single model artifact from the configured source.
func loadArtifact(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*artifact.Artifact, error) {
	if cfg.Artifact.Bucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		defer client.Close()

		mirror := artifact.NewMirror(client, cfg.Artifact.Bucket, logger.Named("gcs"))
		return mirror.FetchLatest(ctx)
	}
	return artifact.LoadFile(cfg.Artifact.Path)
}
