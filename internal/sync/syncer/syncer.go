// Package syncer implements the per-entity, per-direction pipeline:
// fetch both sides, build the cross-reference index, then for each
// source record gate on ConflictResolver, map fields, prepare the
// minimal payload, write, back-link, and stamp last_synced.
//
// Grounded on the teacher's orchestration shape in
// internal/services/pilot_stats_service.go (fetch-then-iterate over a
// provider, per-item try/log/continue, aggregate counts), generalized
// from one fixed pilot-stats pull into a bidirectional per-entity
// loop driven by internal/sync/schema.
package syncer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sanketpandia/recondrive/internal/logging"
	"github.com/sanketpandia/recondrive/internal/metrics"
	"github.com/sanketpandia/recondrive/internal/provider"
	"github.com/sanketpandia/recondrive/internal/sync/conflict"
	"github.com/sanketpandia/recondrive/internal/sync/crossref"
	"github.com/sanketpandia/recondrive/internal/sync/fieldmapper"
	"github.com/sanketpandia/recondrive/internal/sync/payload"
	"github.com/sanketpandia/recondrive/internal/sync/record"
	"github.com/sanketpandia/recondrive/internal/sync/schema"
	"github.com/sanketpandia/recondrive/internal/sync/syncutil"
	"github.com/sanketpandia/recondrive/internal/syncerr"
)

// EntityStats tallies the outcome of one (entity, direction) pass.
type EntityStats struct {
	Entity    schema.Entity
	Direction schema.Direction
	Processed int
	Created   int
	Updated   int
	Unchanged int
	Skipped   int
	Errors    int
	// RecordErrors feeds the run-level error summary, one entry per
	// failed record.
	RecordErrors []RecordError
}

// RecordError is one per-record failure, keyed for aggregation by
// (entity, direction, kind, message).
type RecordError struct {
	RecordID string
	Kind     syncerr.Kind
	Message  string
}

// LoadCarsHook lets the coordinator wire the load_cars join-table
// aggregation into the Load entity's relational→sheet pass without
// every other entity's Syncer needing to know load_cars exists.
type LoadCarsHook struct {
	// Populate fetches and aggregates load_cars into the shared index
	// before the pass begins.
	Populate func(ctx context.Context) error
	// ExtraChangedSince returns the latest last_changed_for_sync
	// across a load's join rows, if any, so the conflict check can
	// take max(load.LC, max(row.LC)) per §4.3.
	ExtraChangedSince func(loadID string) (time.Time, bool)
}

// Syncer runs one (entity, direction) pass.
type Syncer struct {
	def       schema.Def
	direction schema.Direction

	source, target provider.Store
	index          *crossref.Index
	mapper         *fieldmapper.Mapper
	prep           *payload.Preparer
	window         conflict.Window
	sheetEpsilon   time.Duration
	metrics        *metrics.Registry

	loadCars *LoadCarsHook
}

// New builds a Syncer. source/target are oriented per direction:
// sheet→relational passes source=sheet target=relational, and
// relational→sheet passes the reverse.
func New(
	def schema.Def,
	direction schema.Direction,
	source, target provider.Store,
	index *crossref.Index,
	prep *payload.Preparer,
	window conflict.Window,
	sheetEpsilon time.Duration,
	reg *metrics.Registry,
	loadCars *LoadCarsHook,
) *Syncer {
	return &Syncer{
		def:          def,
		direction:    direction,
		source:       source,
		target:       target,
		index:        index,
		mapper:       fieldmapper.New(def, index),
		prep:         prep,
		window:       window,
		sheetEpsilon: sheetEpsilon,
		metrics:      reg,
		loadCars:     loadCars,
	}
}

// Run executes the full pass and returns its stats.
func (s *Syncer) Run(ctx context.Context) (*EntityStats, error) {
	stats := &EntityStats{Entity: s.def.Entity, Direction: s.direction}
	start := time.Now()
	if s.metrics != nil {
		defer func() {
			s.metrics.EntityDirectionDuration.WithLabelValues(string(s.def.Entity), string(s.direction)).Observe(time.Since(start).Seconds())
		}()
	}

	var sourceRecords, targetRecords []*record.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sourceRecords, err = s.source.FetchAll(gctx, s.def.Entity)
		return err
	})
	g.Go(func() error {
		var err error
		targetRecords, err = s.target.FetchAll(gctx, s.def.Entity)
		return err
	})
	if s.loadCars != nil && s.loadCars.Populate != nil {
		g.Go(func() error { return s.loadCars.Populate(gctx) })
	}
	if err := g.Wait(); err != nil {
		return stats, fmt.Errorf("syncer: fetch %s (%s): %w", s.def.Entity, s.direction, err)
	}

	s.seedIndex(sourceRecords, targetRecords)

	targetBySheetID, targetByRelID, targetBySecondary := s.indexTargets(targetRecords)

	for _, src := range sourceRecords {
		// Cancellation ends the pass between records; a record already
		// started always completes.
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("syncer: %s (%s): %w", s.def.Entity, s.direction, err)
		}
		stats.Processed++
		if s.metrics != nil {
			s.metrics.RecordsProcessedTotal.WithLabelValues(string(s.def.Entity), string(s.direction)).Inc()
		}

		tgt := s.locateTarget(src, targetBySheetID, targetByRelID, targetBySecondary)

		outcome, err := s.syncOne(ctx, src, tgt)
		switch outcome {
		case outcomeCreated:
			stats.Created++
			if s.metrics != nil {
				s.metrics.RecordsCreatedTotal.WithLabelValues(string(s.def.Entity), string(s.direction)).Inc()
			}
		case outcomeUpdated:
			stats.Updated++
			if s.metrics != nil {
				s.metrics.RecordsUpdatedTotal.WithLabelValues(string(s.def.Entity), string(s.direction)).Inc()
			}
		case outcomeUnchanged, outcomeSkipped:
			if outcome == outcomeUnchanged {
				stats.Unchanged++
			} else {
				stats.Skipped++
			}
			if s.metrics != nil {
				s.metrics.RecordsSkippedTotal.WithLabelValues(string(s.def.Entity), string(s.direction)).Inc()
			}
		}
		if err != nil {
			stats.Errors++
			kind := syncerr.KindOf(err)
			recID := src.ID
			if recID == "" {
				recID = fieldmapper.NameLabel(src)
			}
			logging.Warn("sync: per-record error", "entity", s.def.Entity, "direction", s.direction, "record_id", recID, "kind", kind, "error", err.Error())
			stats.RecordErrors = append(stats.RecordErrors, RecordError{RecordID: recID, Kind: kind, Message: err.Error()})
			if s.metrics != nil {
				s.metrics.RecordsErrorTotal.WithLabelValues(string(s.def.Entity), string(s.direction), string(kind)).Inc()
			}
		}
	}

	return stats, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeUnchanged
	outcomeCreated
	outcomeUpdated
)

// seedIndex populates the shared cross-ref index for this entity from
// the pairs visible in this pass's fetch, unioning both sides (§4.4).
func (s *Syncer) seedIndex(sourceRecords, targetRecords []*record.Record) {
	isSheetSource := s.direction == schema.SheetToRelational
	for _, r := range sourceRecords {
		if isSheetSource {
			s.index.Add(s.def.Entity, r.ID, r.SupabaseID)
		} else {
			s.index.Add(s.def.Entity, r.AirtableID, r.ID)
		}
	}
	for _, r := range targetRecords {
		if isSheetSource {
			s.index.Add(s.def.Entity, r.AirtableID, r.ID)
		} else {
			s.index.Add(s.def.Entity, r.ID, r.SupabaseID)
		}
	}
}

func (s *Syncer) indexTargets(targetRecords []*record.Record) (bySheetID, byRelID, bySecondary map[string]*record.Record) {
	bySheetID = make(map[string]*record.Record, len(targetRecords))
	byRelID = make(map[string]*record.Record, len(targetRecords))
	bySecondary = make(map[string]*record.Record, len(targetRecords))

	secondaryField := schema.SecondaryKeyField(s.def.Entity)

	for _, r := range targetRecords {
		if r.AirtableID != "" {
			bySheetID[r.AirtableID] = r
		}
		if r.ID != "" {
			byRelID[r.ID] = r
		}
		if secondaryField != "" {
			if v, ok := r.Get(secondaryField); ok {
				if key := syncutil.NormalizeString(v); key != "" {
					bySecondary[normalizeSecondary(s.def.Entity, key)] = r
				}
			}
		} else if r.AirtableID != "" {
			bySecondary[r.AirtableID] = r
		}
	}
	return
}

// normalizeSecondary canonicalizes a secondary-key value for matching.
// Company names and user emails fold to lowercase (§4.6.3.a); the
// other secondary keys (external_id, load_number) are case-sensitive
// identifiers and are left as-is.
func normalizeSecondary(e schema.Entity, v string) string {
	switch e {
	case schema.Company, schema.User:
		return strings.ToLower(v)
	default:
		return v
	}
}

// locateTarget implements §4.6.3.a: cross-ref first, then secondary
// key fallback.
func (s *Syncer) locateTarget(
	src *record.Record,
	bySheetID, byRelID, bySecondary map[string]*record.Record,
) *record.Record {
	isSheetSource := s.direction == schema.SheetToRelational

	if isSheetSource {
		if relID, ok := s.index.RelationalID(s.def.Entity, src.ID); ok {
			if t, ok := byRelID[relID]; ok {
				return t
			}
		}
	} else {
		if sheetID, ok := s.index.SheetID(s.def.Entity, src.ID); ok {
			if t, ok := bySheetID[sheetID]; ok {
				return t
			}
		}
	}

	secondaryField := schema.SecondaryKeyField(s.def.Entity)
	var key string
	if secondaryField != "" {
		if v, ok := src.Get(secondaryField); ok {
			key = normalizeSecondary(s.def.Entity, syncutil.NormalizeString(v))
		}
	} else if isSheetSource {
		key = src.ID
	} else {
		key = src.AirtableID
	}
	if key == "" {
		return nil
	}
	if t, ok := bySecondary[key]; ok {
		return t
	}
	return nil
}

// nativeID returns the target side's own identifier: the sheet record
// id when target is the sheet, the relational UUID when target is
// relational.
func (s *Syncer) nativeID(tgt *record.Record) string {
	if tgt == nil {
		return ""
	}
	return tgt.ID
}

func (s *Syncer) syncOne(ctx context.Context, src, tgt *record.Record) (outcome, error) {
	sourceChanged, sourceSynced := s.sourceTiming(src)
	var targetChanged, targetSynced *time.Time
	if tgt != nil {
		targetChanged, targetSynced = tgt.LastChangedForSync, tgt.LastSynced
	}

	decision := conflict.Resolve(sourceChanged, targetChanged, sourceSynced, targetSynced, s.window, s.sheetEpsilon)

	loadCarsDiffers := false
	if s.def.HasLoadCarsLink && s.direction == schema.RelationalToSheet {
		loadCarsDiffers = s.loadCarsDiffer(src, tgt)
	}

	if decision == conflict.Skip && !loadCarsDiffers {
		return outcomeUnchanged, nil
	}

	var candidate map[string]interface{}
	if s.direction == schema.SheetToRelational {
		candidate = s.mapper.ToRelational(src)
	} else {
		candidate = s.mapper.ToSheet(src)
	}

	if tgt == nil {
		if err := s.checkRequired(candidate); err != nil {
			return outcomeSkipped, err
		}
		prepared := s.prep.ForCreate(candidate)
		if s.direction == schema.SheetToRelational && src.SupabaseID != "" {
			// The source already referenced a relational id (e.g. a
			// pre-provisioned row); honor it instead of minting a new
			// UUID so the existing reference stays valid.
			prepared["id"] = src.SupabaseID
		}
		newID, err := s.target.Create(ctx, s.def.Entity, prepared)
		if err != nil {
			return outcomeSkipped, err
		}
		if err := s.backLinkAndStamp(ctx, src, newID, sourceChanged, sourceSynced); err != nil {
			return outcomeCreated, err
		}
		return outcomeCreated, nil
	}

	current := tgt.Fields
	prepared := s.prep.ForUpdate(string(s.direction), s.def.Entity, candidate, current)
	if err := s.checkRequired(mergeForValidation(current, prepared)); err != nil {
		return outcomeSkipped, err
	}

	targetID := s.nativeID(tgt)

	if len(prepared) == 0 {
		if err := s.backLinkAndStamp(ctx, src, targetID, sourceChanged, sourceSynced); err != nil {
			return outcomeUnchanged, err
		}
		return outcomeUnchanged, nil
	}

	if err := s.target.Update(ctx, s.def.Entity, targetID, prepared); err != nil {
		return outcomeSkipped, err
	}
	if err := s.backLinkAndStamp(ctx, src, targetID, sourceChanged, sourceSynced); err != nil {
		return outcomeUpdated, err
	}
	return outcomeUpdated, nil
}

// sourceTiming returns the source side's LC/LS, taking the Load
// entity's load_cars-aware max when applicable (§4.3).
func (s *Syncer) sourceTiming(src *record.Record) (changed, synced *time.Time) {
	changed, synced = src.LastChangedForSync, src.LastSynced
	if s.def.HasLoadCarsLink && s.direction == schema.RelationalToSheet && s.loadCars != nil && s.loadCars.ExtraChangedSince != nil {
		if extra, ok := s.loadCars.ExtraChangedSince(src.ID); ok {
			if changed == nil || extra.After(*changed) {
				changed = &extra
			}
		}
	}
	return changed, synced
}

// loadCarsDiffer forces a write even with no timestamp trigger when
// the aggregated load_cars set differs from the sheet's current list
// (§4.3's set-equality override).
func (s *Syncer) loadCarsDiffer(src, tgt *record.Record) bool {
	want := s.index.LoadCars(src.SupabaseID)
	if len(want) == 0 {
		want = s.index.LoadCars(src.ID)
	}
	var have []string
	if tgt != nil {
		if v, ok := tgt.Get("load_cars"); ok {
			switch t := v.(type) {
			case []string:
				have = t
			case []interface{}:
				for _, e := range t {
					if s, ok := e.(string); ok {
						have = append(have, s)
					}
				}
			}
		}
	}
	return !setEqual(want, have)
}

func setEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, v := range a {
		seen[v] = true
	}
	for _, v := range b {
		if !seen[v] {
			return false
		}
	}
	return true
}

// checkRequired enforces I3: a required field must not be emitted as
// null or the undefined sentinel in a create/update payload.
func (s *Syncer) checkRequired(candidate map[string]interface{}) error {
	for field := range s.def.Required {
		v, ok := candidate[field]
		if !ok {
			continue
		}
		if fieldmapper.IsUndefined(v) || v == nil {
			return syncerr.New(syncerr.KindMissingRequired, "", fmt.Errorf("required field %q missing", field))
		}
		if s, ok := v.(string); ok && s == "" {
			return syncerr.New(syncerr.KindMissingRequired, "", fmt.Errorf("required field %q empty", field))
		}
	}
	return nil
}

// mergeForValidation overlays the prepared update onto the target's
// current values so checkRequired sees the record's effective state
// post-update, not just the fields that changed.
func mergeForValidation(current, update map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(current)+len(update))
	for k, v := range current {
		out[k] = v
	}
	for k, v := range update {
		out[k] = v
	}
	return out
}

// backLinkAndStamp writes the back-link on the other side when
// missing/stale and stamps last_synced on the source (§4.6.3.e/f).
func (s *Syncer) backLinkAndStamp(ctx context.Context, src *record.Record, targetID string, sourceChanged, sourceSynced *time.Time) error {
	now := time.Now().UTC()
	stampValue := conflict.StampLastSynced(sourceChanged, sourceSynced, now)

	if s.direction == schema.SheetToRelational {
		if src.SupabaseID != targetID {
			if err := s.source.SetBackLink(ctx, s.def.Entity, src.ID, provider.BackLink{SupabaseID: targetID}); err != nil {
				return err
			}
		}
		s.index.Add(s.def.Entity, src.ID, targetID)
	} else {
		label := fieldmapper.NameLabel(src)
		if src.AirtableID != targetID {
			if err := s.source.SetBackLink(ctx, s.def.Entity, src.ID, provider.BackLink{AirtableID: targetID, AirtableIDNameLabel: label}); err != nil {
				return err
			}
		}
		s.index.Add(s.def.Entity, targetID, src.ID)
	}

	return s.source.StampLastSynced(ctx, s.def.Entity, src.ID, stampValue)
}
