// Package server implements the stateless HTTP surface of the inference
// service. The loaded artifact is injected at construction time and never
// mutated afterwards, so request handlers share it without locking.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/stayml/listing-price-service/internal/artifact"
	"github.com/stayml/listing-price-service/internal/config"
	"github.com/stayml/listing-price-service/internal/metrics"
)

// Server answers prediction requests using exactly one loaded artifact.
type Server struct {
	cfg         config.ServerConfig
	art         *artifact.Artifact
	logger      *zap.Logger
	metrics     *metrics.Collector
	rateLimiter *rate.Limiter
	httpServer  *http.Server
}

// New builds a server around a verified artifact.
func New(cfg config.ServerConfig, art *artifact.Artifact, logger *zap.Logger, collector *metrics.Collector) *Server {
	s := &Server{
		cfg:         cfg,
		art:         art,
		logger:      logger,
		metrics:     collector,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	collector.ArtifactInfo.WithLabelValues(art.Metadata.Version, art.Metadata.ModelType).Set(1)

	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// System endpoints stay outside the rate limiter.
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)

	mux.HandleFunc("/v1/predict", s.withMiddleware(s.handlePredict))
	mux.HandleFunc("/v1/schema", s.withMiddleware(s.handleSchema))
	mux.HandleFunc("/v1/model", s.withMiddleware(s.handleModel))

	return mux
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server",
			zap.String("addr", s.httpServer.Addr),
			zap.String("artifact_version", s.art.Metadata.Version),
		)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		s.logger.Info("Shutting down HTTP server")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("Forcing server shutdown", zap.Error(err))
			return s.httpServer.Close()
		}
		return nil
	case err := <-errChan:
		return err
	}
}
