package httpapi

import (
	"encoding/json"
	"net/http"

	"modeld/internal/status"
	"modeld/pkg/types"
)

// HTTPError allows a collaborator error to carry its own HTTP status code,
// taking precedence over the status.Kind-driven mapping in writeError.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: code})
}

// writeError maps err to an HTTP status and writes it as JSON, preferring
// an HTTPError's own status code, then the Kind-driven table in
// internal/status, falling back to 500.
func writeError(w http.ResponseWriter, err error) {
	if he, ok := err.(HTTPError); ok {
		writeJSONError(w, he.StatusCode(), he.Error())
		return
	}
	writeJSONError(w, status.HTTPStatusCode(err), err.Error())
}
