package crossref

import (
	"testing"

	"github.com/sanketpandia/recondrive/internal/sync/schema"
	"github.com/stretchr/testify/assert"
)

func TestAddAndLookup(t *testing.T) {
	idx := New()
	idx.Add(schema.Car, "recCar1", "car-uuid-1")

	rel, ok := idx.RelationalID(schema.Car, "recCar1")
	assert.True(t, ok)
	assert.Equal(t, "car-uuid-1", rel)

	sheet, ok := idx.SheetID(schema.Car, "car-uuid-1")
	assert.True(t, ok)
	assert.Equal(t, "recCar1", sheet)

	_, ok = idx.RelationalID(schema.Car, "missing")
	assert.False(t, ok)
}

func TestAdd_BlankIDsIgnored(t *testing.T) {
	idx := New()
	idx.Add(schema.Car, "", "car-uuid-1")
	idx.Add(schema.Car, "recCar1", "")
	_, ok := idx.RelationalID(schema.Car, "recCar1")
	assert.False(t, ok)
}

func TestAdd_FirstWriteWins(t *testing.T) {
	idx := New()
	idx.Add(schema.Car, "recCar1", "car-uuid-1")
	idx.Add(schema.Car, "recCar1", "car-uuid-2") // should be ignored
	rel, ok := idx.RelationalID(schema.Car, "recCar1")
	assert.True(t, ok)
	assert.Equal(t, "car-uuid-1", rel)
}

func TestAdd_EntitiesAreIsolated(t *testing.T) {
	idx := New()
	idx.Add(schema.Car, "recX", "car-1")
	idx.Add(schema.Location, "recX", "loc-1")

	rel, ok := idx.RelationalID(schema.Car, "recX")
	assert.True(t, ok)
	assert.Equal(t, "car-1", rel)

	rel, ok = idx.RelationalID(schema.Location, "recX")
	assert.True(t, ok)
	assert.Equal(t, "loc-1", rel)
}

// TestBuildLoadCars_DedupAndSort covers the fix where a load_cars scan
// might repeat the same car for a load (stale history rows alongside
// a current assignment) and must not duplicate it in the sheet link.
func TestBuildLoadCars_DedupAndSort(t *testing.T) {
	idx := New()
	idx.Add(schema.Car, "recCarB", "car-b")

	rows := []LoadCarsRow{
		{LoadID: "load-1", CarID: "car-a", CarAirtableID: "recCarA", IsAssigned: true},
		{LoadID: "load-1", CarID: "car-a", CarAirtableID: "recCarA", IsAssigned: true}, // duplicate
		{LoadID: "load-1", CarID: "car-b", IsAssigned: "yes"},                          // resolved via index
	}
	idx.BuildLoadCars(rows)

	got := idx.LoadCars("load-1")
	assert.Equal(t, []string{"recCarA", "recCarB"}, got)
}

func TestBuildLoadCars_UnassignedExcluded(t *testing.T) {
	idx := New()
	rows := []LoadCarsRow{
		{LoadID: "load-1", CarAirtableID: "recCarA", IsAssigned: false},
		{LoadID: "load-1", CarAirtableID: "recCarB", IsAssigned: "no"},
	}
	idx.BuildLoadCars(rows)
	assert.Equal(t, []string{}, idx.LoadCars("load-1"))
}

func TestBuildLoadCars_UnresolvableCarSkipped(t *testing.T) {
	idx := New()
	rows := []LoadCarsRow{
		{LoadID: "load-1", CarID: "unknown-car", IsAssigned: true},
	}
	idx.BuildLoadCars(rows)
	assert.Equal(t, []string{}, idx.LoadCars("load-1"))
}

func TestLoadCars_UnknownLoadReturnsEmptyNonNilSlice(t *testing.T) {
	idx := New()
	got := idx.LoadCars("no-such-load")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

// TestLoadCars_ReturnsCopy verifies mutating a returned slice cannot
// corrupt the index's internal state.
func TestLoadCars_ReturnsCopy(t *testing.T) {
	idx := New()
	rows := []LoadCarsRow{
		{LoadID: "load-1", CarAirtableID: "recCarA", IsAssigned: true},
	}
	idx.BuildLoadCars(rows)

	got := idx.LoadCars("load-1")
	got[0] = "mutated"

	again := idx.LoadCars("load-1")
	assert.Equal(t, []string{"recCarA"}, again)
}
