package server

import (
	"encoding/json"
	"net/http"

	"github.com/vibelab/chatrelay/internal/logger"
)

// errorResponse is the client-safe error payload. The message never
// carries internal detail; that goes to the log instead.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code. If encoding
// fails after WriteHeader there is no way to notify the client; the error
// is only logged.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.L.Error("failed to encode JSON response", "error", err)
	}
}

// writeError writes a JSON error payload.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
