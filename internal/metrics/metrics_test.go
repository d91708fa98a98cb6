package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewRegistry registers against the global Prometheus registerer, so
// every assertion in this package runs against one shared instance to
// avoid a duplicate-registration panic across test functions.
var reg = NewRegistry()

func TestNewRegistry_CountersIncrement(t *testing.T) {
	reg.RecordsProcessedTotal.WithLabelValues("car", "airtable_to_supabase").Inc()
	reg.RecordsCreatedTotal.WithLabelValues("car", "airtable_to_supabase").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(reg.RecordsProcessedTotal.WithLabelValues("car", "airtable_to_supabase")))
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.RecordsCreatedTotal.WithLabelValues("car", "airtable_to_supabase")))
}

func TestNewRegistry_HistogramsObserve(t *testing.T) {
	reg.EntityDirectionDuration.WithLabelValues("load", "supabase_to_airtable").Observe(1.5)
	reg.RunDuration.WithLabelValues("manual").Observe(12)

	require.NotPanics(t, func() {
		reg.CacheHitsTotal.WithLabelValues("car").Inc()
		reg.CacheMissesTotal.WithLabelValues("car").Inc()
		reg.SheetWriteRetriesTotal.WithLabelValues("car", "unknown_field").Inc()
	})
}
