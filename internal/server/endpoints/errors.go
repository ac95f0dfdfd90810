package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/jackzampolin/larder/internal/recipe"
)

// statusClientClosed is reported for requests the caller cancelled.
const statusClientClosed = 499

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Remedy string `json:"remedy,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeRecipeError writes a pipeline error with its kind and remedy.
func writeRecipeError(w http.ResponseWriter, info *recipe.ErrorInfo) {
	if info == nil {
		writeError(w, http.StatusInternalServerError, "unknown error")
		return
	}
	writeJSON(w, statusFor(info.Kind), ErrorResponse{
		Error:  info.Message,
		Kind:   string(info.Kind),
		Remedy: info.Remedy,
	})
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind recipe.Kind) int {
	switch kind {
	case recipe.KindOversized:
		return http.StatusRequestEntityTooLarge
	case recipe.KindUnsupported:
		return http.StatusUnsupportedMediaType
	case recipe.KindTimeout:
		return http.StatusGatewayTimeout
	case recipe.KindCancelled:
		return statusClientClosed
	case recipe.KindEmpty, recipe.KindParsing, recipe.KindConversion:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
