package http

import (
	"net/http"

	json "github.com/goccy/go-json"
)

// jsonError represents a JSON error payload.
type jsonError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// writeError writes a JSON error payload with the given status code.
func writeError(rw http.ResponseWriter, status int, message, details string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(jsonError{Error: message, Details: details})
}

// writeJSON writes a JSON payload with the given status code.
func writeJSON(rw http.ResponseWriter, status int, payload any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(payload)
}
