package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/stayml/listing-price-service/internal/schema"
)

// PredictRequest is the body of POST /v1/predict. Features carries the raw
// feature object, validated against the artifact's schema.
type PredictRequest struct {
	RequestID string                 `json:"request_id,omitempty"`
	Features  map[string]interface{} `json:"features"`
}

// PredictResponse is the successful prediction body.
type PredictResponse struct {
	Price        float64 `json:"price"`
	Currency     string  `json:"currency"`
	ModelVersion string  `json:"model_version"`
	RequestID    string  `json:"request_id,omitempty"`
}

// handlePredict validates the request against the loaded schema and evaluates
// the model. Invalid requests never reach the model.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed,
			"predict requires POST", nil)
		return
	}

	start := time.Now()
	defer func() {
		s.metrics.PredictionDuration.Observe(time.Since(start).Seconds())
	}()

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	var req PredictRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, ErrCodeInvalidRequest,
				"request body too large", nil)
			return
		}
		s.metrics.PredictionsTotal.WithLabelValues("validation_error").Inc()
		s.writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest,
			"request body is not a valid predict request", nil)
		return
	}
	if req.Features == nil {
		s.metrics.PredictionsTotal.WithLabelValues("validation_error").Inc()
		s.writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest,
			"features object is required", nil)
		return
	}

	vec, fieldErrs := s.art.Schema.Validate(req.Features)
	if len(fieldErrs) > 0 {
		s.metrics.PredictionsTotal.WithLabelValues("validation_error").Inc()
		for _, fe := range fieldErrs {
			s.metrics.ValidationErrors.WithLabelValues(fe.Field).Inc()
		}
		s.writeError(w, r, http.StatusBadRequest, ErrCodeValidationError,
			"request failed feature validation", fieldErrs)
		return
	}

	price, err := s.art.Model.Predict(s.art.Schema, vec)
	if err != nil {
		s.metrics.PredictionsTotal.WithLabelValues("internal_error").Inc()
		s.logger.Error("Model evaluation failed",
			zap.Error(err),
			zap.String("request_id", requestIDFrom(r.Context())),
		)
		s.writeError(w, r, http.StatusInternalServerError, ErrCodeInternalError,
			"prediction failed", nil)
		return
	}

	s.metrics.PredictionsTotal.WithLabelValues("ok").Inc()
	s.metrics.PredictedPrice.Observe(price)

	respondJSON(w, http.StatusOK, PredictResponse{
		Price:        price,
		Currency:     "USD",
		ModelVersion: s.art.Metadata.Version,
		RequestID:    req.RequestID,
	})
}

// handleSchema returns the feature schema required for prediction.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed,
			"schema requires GET", nil)
		return
	}

	respondJSON(w, http.StatusOK, struct {
		Fields []schema.Field `json:"fields"`
	}{Fields: s.art.Schema.Fields})
}

// handleModel returns metadata of the loaded artifact.
func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed,
			"model requires GET", nil)
		return
	}

	respondJSON(w, http.StatusOK, s.art.Metadata)
}

// HealthResponse is the body of the health and readiness endpoints.
type HealthResponse struct {
	Status       string    `json:"status"`
	ModelVersion string    `json:"model_version"`
	Timestamp    time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:       "healthy",
		ModelVersion: s.art.Metadata.Version,
		Timestamp:    time.Now().UTC(),
	})
}

// handleReady mirrors handleHealth: the artifact is loaded before the server
// is constructed, so a running server is always ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:       "ready",
		ModelVersion: s.art.Metadata.Version,
		Timestamp:    time.Now().UTC(),
	})
}
