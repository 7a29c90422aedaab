package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// maxBodyBytes bounds the size of a run request body.
const maxBodyBytes = 1 << 16

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// decodeJobConfig reads a run request over the defaults.
// An empty body submits the default run.
func decodeJobConfig(r *http.Request) (JobConfig, error) {
	config := DefaultJobConfig()

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&config); err != nil && err != io.EOF {
		return JobConfig{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return config, nil
}
