// Package api contains the HTTP handlers for the cart and order endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type errorJSON struct {
	Error string `json:"error"`
}

type dataJSON struct {
	Data any `json:"data"`
}

type successJSON struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent; nothing left to do but log.
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// writeStorageError reports an unclassified failure. The underlying message
// is preserved in the body so structural faults (missing column, broken
// constraint) stay diagnosable instead of hiding behind a generic 500.
func writeStorageError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	logger.Error(op, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorJSON{Error: err.Error()})
}
