package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ConnectionChecker reports whether the publish sink can currently deliver.
type ConnectionChecker interface {
	Connected() bool
}

type healthchecker struct {
	sink ConnectionChecker
}

func (h *healthchecker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !h.sink.Connected() {
		writeError(w, http.StatusServiceUnavailable, "sink not connected")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func registerHealthcheck(mux *http.ServeMux, sink ConnectionChecker) {
	h := &healthchecker{sink: sink}
	mux.HandleFunc("GET /healthz", h.handleHealthz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error":   http.StatusText(status),
		"message": msg,
	})
}
