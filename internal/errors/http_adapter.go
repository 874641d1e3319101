package errors

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
)

// HTTPErrorAdapter maps PipelineError values to HTTP responses for the daemon endpoints.
type HTTPErrorAdapter struct {
	logger *slog.Logger
}

// NewHTTPErrorAdapter creates a new HTTP error adapter.
func NewHTTPErrorAdapter(logger *slog.Logger) *HTTPErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPErrorAdapter{logger: logger}
}

// HTTPErrorResponse represents a standard JSON error payload.
type HTTPErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// StatusCodeFor determines the HTTP status code for a given error based on
// its classification. Unknown errors map to 500.
func (a *HTTPErrorAdapter) StatusCodeFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		switch pe.Category {
		case CategoryValidation, CategoryConfig:
			return http.StatusBadRequest
		case CategoryAuth:
			return http.StatusUnauthorized
		case CategoryDaemon:
			return http.StatusServiceUnavailable
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse writes a JSON error response and logs it.
func (a *HTTPErrorAdapter) WriteErrorResponse(w http.ResponseWriter, err error) {
	status := a.StatusCodeFor(err)
	resp := HTTPErrorResponse{Error: err.Error()}
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		resp.Error = pe.Message
		resp.Code = string(pe.Category)
		resp.Details = pe.Context
	}

	a.logger.Warn("HTTP error response", slog.Int("status", status), slog.String("error", err.Error()))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		a.logger.Error("Failed to encode error response", slog.String("error", encErr.Error()))
	}
}
