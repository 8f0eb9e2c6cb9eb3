package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

type ValidationErrorResponse struct {
	Error      string           `json:"error"`
	Code       string           `json:"code"`
	Violations []FieldViolation `json:"violations"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, code, message string) {
	h.respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func (h *Handler) respondViolations(w http.ResponseWriter, violations []FieldViolation) {
	h.respondJSON(w, http.StatusUnprocessableEntity, ValidationErrorResponse{
		Error:      "request validation failed",
		Code:       "validation_error",
		Violations: violations,
	})
}
