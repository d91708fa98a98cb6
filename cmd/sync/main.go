// Command sync runs one pass of the reconciliation pipeline and
// exits, in the manner of the teacher's cmd/api_key_gen one-shot CLI
// tools (flag-free argv parsing, log and os.Exit(1) on failure).
//
// Usage:
//
//	sync [entity...]
//
// With no arguments every entity syncs in the fixed dependency order
// (§4.7). With one or more arguments, only the named entities sync;
// each must be one of cars, locations, companies, users, loads,
// bookings, requests (§6.1).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sanketpandia/recondrive/internal/app"
	"github.com/sanketpandia/recondrive/internal/logging"
	"github.com/sanketpandia/recondrive/internal/sync/coordinator"
)

func main() {
	os.Exit(run())
}

func run() int {
	entities, err := app.ParseEntities(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "sync:", err)
		fmt.Fprintln(os.Stderr, "valid entities: cars, locations, companies, users, loads, bookings, requests")
		return 1
	}

	a, err := app.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "sync: startup failed:", err)
		return 1
	}
	defer a.Close()
	defer logging.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result, err := a.Coordinator.Run(ctx, coordinator.RunManual, entities)
	if err != nil {
		logging.Error("sync: run failed", "error", err.Error())
		// Per-record errors never abort the run; only a propagated
		// entity-level exception reaches here, and the exit code
		// still stays 0 (§6.1: "0 on completion, even with per-record
		// errors").
	}

	totalErrors := 0
	for _, stats := range result.Entities {
		totalErrors += stats.Errors
		logging.Info("sync: entity pass complete",
			"entity", stats.Entity, "direction", stats.Direction,
			"processed", stats.Processed, "created", stats.Created,
			"updated", stats.Updated, "unchanged", stats.Unchanged,
			"skipped", stats.Skipped, "errors", stats.Errors)
	}

	logging.Info("sync: run complete", "entities_run", len(result.Entities), "total_record_errors", totalErrors)
	return 0
}
