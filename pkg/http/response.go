package http

import (
	"encoding/json"
	"net/http"

	apperrors "holdfast/pkg/errors"
)

type ErrorResponse struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

type SuccessResponse struct {
	Data any `json:"data,omitempty"`
}

func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError maps an AppError to its HTTP status and body. Anything that is
// not an AppError is hidden behind a generic 500 so internals never leak.
func WriteError(w http.ResponseWriter, err error) error {
	if appErr, ok := apperrors.AsAppError(err); ok {
		return WriteJSON(w, appErr.StatusCode(), ErrorResponse{
			Error:   appErr.Message,
			Details: appErr.Details,
		})
	}
	return WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: "Internal server error",
	})
}

func WriteSuccess(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{Data: data})
}

func WriteAccepted(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusAccepted, SuccessResponse{Data: data})
}

func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
