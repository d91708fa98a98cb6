package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the Prometheus metrics emitted by the sync engine. One
// process-wide instance is created at startup and threaded through the
// RunCoordinator and the EntitySyncer.
type Registry struct {
	RecordsProcessedTotal prometheus.CounterVec
	RecordsCreatedTotal   prometheus.CounterVec
	RecordsUpdatedTotal   prometheus.CounterVec
	RecordsSkippedTotal   prometheus.CounterVec
	RecordsErrorTotal     prometheus.CounterVec

	EntityDirectionDuration prometheus.HistogramVec
	RunDuration             prometheus.HistogramVec

	CacheHitsTotal   prometheus.CounterVec
	CacheMissesTotal prometheus.CounterVec

	SheetWriteRetriesTotal prometheus.CounterVec
}

// NewRegistry initializes and returns a new Registry with all metrics
// registered against the default Prometheus registerer.
func NewRegistry() *Registry {
	return &Registry{
		RecordsProcessedTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recondrive_records_processed_total",
				Help: "Total source records evaluated by the sync engine, by entity and direction",
			},
			[]string{"entity", "direction"},
		),
		RecordsCreatedTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recondrive_records_created_total",
				Help: "Total records created on the target side, by entity and direction",
			},
			[]string{"entity", "direction"},
		),
		RecordsUpdatedTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recondrive_records_updated_total",
				Help: "Total records updated on the target side, by entity and direction",
			},
			[]string{"entity", "direction"},
		),
		RecordsSkippedTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recondrive_records_skipped_total",
				Help: "Total records skipped (unchanged or destination newer), by entity and direction",
			},
			[]string{"entity", "direction"},
		),
		RecordsErrorTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recondrive_records_error_total",
				Help: "Total per-record errors, by entity, direction, and error kind",
			},
			[]string{"entity", "direction", "kind"},
		),
		EntityDirectionDuration: *promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recondrive_entity_direction_duration_seconds",
				Help:    "Wall-clock time to complete one (entity, direction) pass",
				Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"entity", "direction"},
		),
		RunDuration: *promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recondrive_run_duration_seconds",
				Help:    "Wall-clock time to complete a full coordinator run",
				Buckets: []float64{1, 5, 15, 30, 60, 180, 300, 900, 1800},
			},
			[]string{"run_type"},
		),
		CacheHitsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recondrive_field_cache_hits_total",
				Help: "Field-id/field-name memoization cache hits",
			},
			[]string{"entity"},
		),
		CacheMissesTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recondrive_field_cache_misses_total",
				Help: "Field-id/field-name memoization cache misses",
			},
			[]string{"entity"},
		),
		SheetWriteRetriesTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recondrive_sheet_write_retries_total",
				Help: "Sheet-side write retries, by reason (unknown_field, invalid_value)",
			},
			[]string{"entity", "reason"},
		),
	}
}
