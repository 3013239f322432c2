package server

import (
	"context"
	"net/http"
	"time"
)

// healthHandler is a plain liveness probe.
func (cfg Config) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyHandler reports readiness: the metadata database and the payload
// bucket must both answer.
func (cfg Config) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if cfg.DB != nil {
		if err := cfg.DB.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded", "database": err.Error(),
			})
			return
		}
	}
	if cfg.Blobs != nil {
		if err := cfg.Blobs.Ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded", "blobstore": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
