package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/markdave123-py/Studyhall/internal/core"
	"github.com/markdave123-py/Studyhall/internal/logger"
	"github.com/markdave123-py/Studyhall/internal/models"
	"github.com/markdave123-py/Studyhall/internal/services"
)

type errorBody struct {
	Error  string               `json:"error"`
	Reason models.FailureReason `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeServiceError maps service and ingestion errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Errorw("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Reason: core.ReasonOf(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrAlreadyProcessing):
		return http.StatusConflict
	case errors.Is(err, core.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrCanceled):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrExtraction),
		errors.Is(err, core.ErrEmptyContent),
		errors.Is(err, core.ErrUnsupportedMediaType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrStorage), errors.Is(err, core.ErrEmbedding):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
