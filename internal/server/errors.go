package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/stayml/listing-price-service/internal/schema"
)

// Error codes returned in structured error bodies.
const (
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeValidationError   = "VALIDATION_ERROR"
	ErrCodeMethodNotAllowed  = "METHOD_NOT_ALLOWED"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// ErrorResponse is the structured error body. FieldErrors is populated only
// for validation failures and names every offending field.
type ErrorResponse struct {
	Code        string              `json:"code"`
	Message     string              `json:"message"`
	FieldErrors []schema.FieldError `json:"field_errors,omitempty"`
	RequestID   string              `json:"request_id,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, fieldErrs []schema.FieldError) {
	resp := ErrorResponse{
		Code:        code,
		Message:     message,
		FieldErrors: fieldErrs,
		RequestID:   requestIDFrom(r.Context()),
		Timestamp:   time.Now().UTC(),
	}
	respondJSON(w, status, resp)
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The response writer is the only sink left at this point; an encode
	// failure here has nowhere useful to go.
	_ = json.NewEncoder(w).Encode(v)
}
