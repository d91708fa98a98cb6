// Package coordinator drives the fixed, ordered per-(entity, direction)
// pipeline for a full sync run: it opens a sync_runs bookkeeping row,
// invokes the EntitySyncer, closes the row with final stats, and
// aggregates a run-level error summary across every entity/direction
// it touched.
//
// Grounded on the teacher's PilotSyncJob.Run/SyncVAPilots shape in
// internal/jobs/pilot_sync_job.go (fetch-configs, loop-with-continue,
// aggregate totals, log start/finish with elapsed time) and
// InitializeJobs in internal/jobs/init.go for the scheduled-launch
// convention, generalized from one hardcoded VA loop into the fixed
// (entity, direction) topological order of §4.7.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sanketpandia/recondrive/internal/db/repository"
	"github.com/sanketpandia/recondrive/internal/logging"
	"github.com/sanketpandia/recondrive/internal/metrics"
	"github.com/sanketpandia/recondrive/internal/provider"
	"github.com/sanketpandia/recondrive/internal/provider/relational"
	"github.com/sanketpandia/recondrive/internal/sync/conflict"
	"github.com/sanketpandia/recondrive/internal/sync/crossref"
	"github.com/sanketpandia/recondrive/internal/sync/payload"
	"github.com/sanketpandia/recondrive/internal/sync/schema"
	"github.com/sanketpandia/recondrive/internal/sync/syncer"
	"github.com/sanketpandia/recondrive/internal/syncerr"
)

// RunType distinguishes a one-shot CLI invocation from a scheduled
// daemon tick, recorded on the sync_runs row (§6.4).
type RunType string

const (
	RunManual    RunType = "manual"
	RunScheduled RunType = "scheduled"
)

// order is the fixed dependency order of §4.7: parents before
// children, so link resolution succeeds within one pass as often as
// possible.
var order = []schema.Entity{
	schema.Location, schema.Company, schema.User, schema.Car, schema.Load, schema.Booking, schema.Request,
}

// Coordinator runs the ordered sheet→relational then relational→sheet
// pipeline across some or all of the seven entities.
type Coordinator struct {
	Relational provider.Store
	Sheet      provider.Store

	// RelationalAdapter is used directly (not through the Store
	// interface) only for the load_cars join-table fetch, which has
	// no equivalent on the sheet side.
	RelationalAdapter *relational.Adapter

	Runs *repository.SyncRunRepo

	// Window holds the relational tolerance in Source and the sheet
	// tolerance in Target; runOne orients it per direction so each side
	// is judged by its own tolerance.
	Window       conflict.Window
	SheetEpsilon time.Duration
	Prep         *payload.Preparer
	Metrics      *metrics.Registry
}

// ErrorSummaryKey groups per-record errors for the run-level report
// (§7): one line per (entity, direction, kind, message).
type ErrorSummaryKey struct {
	Entity    schema.Entity
	Direction schema.Direction
	Kind      syncerr.Kind
	Message   string
}

// ErrorSummaryEntry tallies how many records hit a given error and
// which record ids they were.
type ErrorSummaryEntry struct {
	Count     int
	RecordIDs []string
}

// RunResult aggregates every (entity, direction) pass of one full run.
type RunResult struct {
	Entities []*syncer.EntityStats
	Errors   map[ErrorSummaryKey]*ErrorSummaryEntry
}

// Run executes the fixed pipeline (§4.7): every sheet→relational
// entity completes before any relational→sheet entity begins (§5).
// entities restricts the run to a subset in CLI-requested order
// filtered back down to the fixed dependency order; nil/empty means
// all seven.
func (c *Coordinator) Run(ctx context.Context, runType RunType, entities []schema.Entity) (*RunResult, error) {
	wanted := entitySet(entities)
	result := &RunResult{Errors: make(map[ErrorSummaryKey]*ErrorSummaryEntry)}

	if c.Metrics != nil {
		start := time.Now()
		defer func() {
			c.Metrics.RunDuration.WithLabelValues(string(runType)).Observe(time.Since(start).Seconds())
		}()
	}

	// One cross-ref index is shared by every pass of the run, so link
	// fields can resolve against pairs seeded by earlier entities.
	index := crossref.New()

	directions := []schema.Direction{schema.SheetToRelational, schema.RelationalToSheet}
	for _, dir := range directions {
		for _, e := range order {
			if len(wanted) > 0 && !wanted[e] {
				continue
			}
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			default:
			}

			stats, err := c.runOne(ctx, e, dir, runType, index)
			if stats != nil {
				result.Entities = append(result.Entities, stats)
				for _, re := range stats.RecordErrors {
					key := ErrorSummaryKey{Entity: e, Direction: dir, Kind: re.Kind, Message: re.Message}
					entry := result.Errors[key]
					if entry == nil {
						entry = &ErrorSummaryEntry{}
						result.Errors[key] = entry
					}
					entry.Count++
					entry.RecordIDs = append(entry.RecordIDs, re.RecordID)
				}
			}
			// An entity-level exception (not a per-record error) is
			// logged and propagated only after the sync_runs row has
			// been closed, so bookkeeping always reflects whatever
			// partial progress was made (§4.7).
			if err != nil {
				logging.Error("coordinator: entity pass failed", "entity", e, "direction", dir, "error", err.Error())
				return result, fmt.Errorf("coordinator: %s %s: %w", e, dir, err)
			}
		}
	}

	LogSummary(result)
	return result, nil
}

func entitySet(entities []schema.Entity) map[schema.Entity]bool {
	if len(entities) == 0 {
		return nil
	}
	set := make(map[schema.Entity]bool, len(entities))
	for _, e := range entities {
		set[e] = true
	}
	return set
}

// runOne opens the sync_runs row, runs the EntitySyncer, and closes
// the row with final stats regardless of whether the pass errored.
// Failure to open or close the bookkeeping row is logged but never
// aborts the run (§4.7).
func (c *Coordinator) runOne(ctx context.Context, e schema.Entity, dir schema.Direction, runType RunType, index *crossref.Index) (*syncer.EntityStats, error) {
	def := schema.Defs[e]

	var runID uuid.UUID
	var opened bool
	if c.Runs != nil {
		id, err := c.Runs.Open(ctx, def.TableName, string(dir), string(runType))
		if err != nil {
			logging.Warn("coordinator: failed to open sync_runs row", "entity", e, "direction", dir, "error", err.Error())
		} else {
			runID = id
			opened = true
		}
	}

	source, target := c.sourceTarget(dir)

	// The syncer judges its source with window.Source; on the
	// sheet→relational leg the source is the sheet side.
	window := c.Window
	if dir == schema.SheetToRelational {
		window = conflict.Window{Source: c.Window.Target, Target: c.Window.Source}
	}

	var hook *syncer.LoadCarsHook
	if def.HasLoadCarsLink && dir == schema.RelationalToSheet && c.RelationalAdapter != nil {
		hook = c.buildLoadCarsHook(index)
	}

	s := syncer.New(def, dir, source, target, index, c.Prep, window, c.SheetEpsilon, c.Metrics, hook)
	stats, runErr := s.Run(ctx)

	if opened && c.Runs != nil {
		closeErr := c.Runs.Close(ctx, runID, repository.Stats{
			Processed: stats.Processed,
			Updated:   stats.Created + stats.Updated,
			Errors:    stats.Errors,
		})
		if closeErr != nil {
			logging.Warn("coordinator: failed to close sync_runs row", "entity", e, "direction", dir, "error", closeErr.Error())
		}
	}

	return stats, runErr
}

func (c *Coordinator) sourceTarget(dir schema.Direction) (source, target provider.Store) {
	if dir == schema.SheetToRelational {
		return c.Sheet, c.Relational
	}
	return c.Relational, c.Sheet
}

// buildLoadCarsHook wires the load_cars join-table aggregation into
// the Load entity's relational→sheet pass (§4.4), and precomputes the
// max last_changed_for_sync across each load's join rows for the
// conflict check's "source LC is max(load.LC, max(row.LC))" rule (§4.3).
func (c *Coordinator) buildLoadCarsHook(index *crossref.Index) *syncer.LoadCarsHook {
	changedByLoad := make(map[string]time.Time)
	return &syncer.LoadCarsHook{
		Populate: func(ctx context.Context) error {
			rows, err := c.RelationalAdapter.FetchLoadCars(ctx)
			if err != nil {
				return err
			}
			index.BuildLoadCars(rows)
			for _, row := range rows {
				if row.LastChangedForSync == nil {
					continue
				}
				if cur, ok := changedByLoad[row.LoadID]; !ok || row.LastChangedForSync.After(cur) {
					changedByLoad[row.LoadID] = *row.LastChangedForSync
				}
			}
			return nil
		},
		ExtraChangedSince: func(loadID string) (time.Time, bool) {
			t, ok := changedByLoad[loadID]
			return t, ok
		},
	}
}

// LogSummary prints one line per (entity, direction, kind, message)
// group, matching §7's run-level error summary.
func LogSummary(result *RunResult) {
	for key, entry := range result.Errors {
		logging.Warn("sync run error summary",
			"entity", key.Entity, "direction", key.Direction, "kind", key.Kind,
			"message", key.Message, "count", entry.Count, "record_ids", entry.RecordIDs)
	}
}
