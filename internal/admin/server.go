// Package admin exposes the scheduled daemon's small liveness and
// metrics surface, mirroring the teacher's chi-router-plus-promhttp
// mount in cmd/server/main.go (internal/routes/router.go) scaled
// down to the two endpoints a poll-driven background job needs.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status reports the daemon's liveness for /healthz.
type Status struct {
	Status    string    `json:"status"`
	Uptime    string    `json:"uptime"`
	LastRunAt time.Time `json:"last_run_at,omitempty"`
	LastRunOK bool      `json:"last_run_ok"`
}

// StatusProvider supplies the current Status at request time, backed
// by whatever the caller's run loop last recorded.
type StatusProvider func() Status

// NewRouter builds the chi router for /healthz and /metrics.
func NewRouter(upSince time.Time, status StatusProvider) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		s := status()
		s.Uptime = time.Since(upSince).Round(time.Second).String()
		w.Header().Set("Content-Type", "application/json")
		if !s.LastRunOK && !s.LastRunAt.IsZero() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(s)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
