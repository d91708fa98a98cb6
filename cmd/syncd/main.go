// Command syncd runs the reconciliation pipeline on a schedule: an
// initial run fires immediately, then one run per configured
// interval, until SIGINT/SIGTERM requests a graceful shutdown (§6.2).
// A small chi-based admin server exposes /healthz and /metrics
// alongside the run loop, mirroring the teacher's
// promhttp.Handler()-plus-router mount in cmd/server/main.go.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sanketpandia/recondrive/internal/admin"
	"github.com/sanketpandia/recondrive/internal/app"
	"github.com/sanketpandia/recondrive/internal/logging"
	"github.com/sanketpandia/recondrive/internal/sync/coordinator"
)

func main() {
	a, err := app.Build()
	if err != nil {
		// Fatal here matches cmd/sync's exit-1-on-startup-error
		// contract (§6.1); Fatal logs then os.Exit(1).
		logging.Fatal("syncd: startup failed", "error", err.Error())
	}
	defer a.Close()
	defer logging.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	upSince := time.Now()
	status := &runStatus{}

	adminSrv := &http.Server{
		Addr:    a.Config.AdminAddr,
		Handler: admin.NewRouter(upSince, status.snapshot),
	}
	go func() {
		logging.Info("syncd: admin server listening", "addr", a.Config.AdminAddr)
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("syncd: admin server stopped unexpectedly", "error", err.Error())
		}
	}()

	interval := time.Duration(a.Config.IntervalMinutes) * time.Minute
	logging.Info("syncd: starting", "interval_minutes", a.Config.IntervalMinutes)

	runOnce(ctx, a, status)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			logging.Info("syncd: shutdown signal received, stopping after in-flight work completes")
			break loop
		case <-ticker.C:
			runOnce(ctx, a, status)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = adminSrv.Shutdown(shutdownCtx)
	logging.Info("syncd: stopped")
}

func runOnce(ctx context.Context, a *app.App, status *runStatus) {
	start := time.Now()
	logging.Info("syncd: run starting")

	result, err := a.Coordinator.Run(ctx, coordinator.RunScheduled, nil)
	ok := err == nil
	status.record(start, ok)

	if err != nil {
		logging.Error("syncd: run failed", "error", err.Error())
		return
	}

	totalErrors := 0
	for _, stats := range result.Entities {
		totalErrors += stats.Errors
	}
	logging.Info("syncd: run complete",
		"duration", time.Since(start).Truncate(time.Second).String(),
		"entities_run", len(result.Entities),
		"total_record_errors", totalErrors)
}

// runStatus tracks the outcome of the most recent cycle for /healthz,
// guarded by a mutex since it is written from the run loop goroutine
// and read from the admin server's handler goroutine.
type runStatus struct {
	mu   sync.Mutex
	at   time.Time
	ok   bool
	seen bool
}

func (s *runStatus) record(at time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.at = at
	s.ok = ok
	s.seen = true
}

func (s *runStatus) snapshot() admin.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := admin.Status{Status: "starting", LastRunOK: true}
	if s.seen {
		st.Status = "ok"
		if !s.ok {
			st.Status = "degraded"
		}
		st.LastRunAt = s.at
		st.LastRunOK = s.ok
	}
	return st
}
