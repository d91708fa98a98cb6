// Package crossref maintains the bidirectional id maps that let the
// rest of the engine translate a link field from one side's id space
// to the other's, and aggregates the load_cars join table into the
// sheet-side load_cars link list.
//
// Grounded on the teacher's in-memory id-cache pass over Airtable
// linked records in internal/providers/data_provider.go, generalized
// here into a standalone index built once per run and shared across
// every entity's FieldMapper.
package crossref

import (
	"sort"
	"sync"
	"time"

	"github.com/sanketpandia/recondrive/internal/sync/schema"
	"github.com/sanketpandia/recondrive/internal/sync/syncutil"
)

// Index holds, per entity, the sheet-id<->relational-id bijection and
// the relational load id -> sheet car ids aggregation.
type Index struct {
	mu sync.RWMutex

	sheetToRel map[schema.Entity]map[string]string
	relToSheet map[schema.Entity]map[string]string

	// loadCars maps a relational load id to the sheet ids of the cars
	// currently assigned to it, per load_cars.is_assigned.
	loadCars map[string][]string
}

// New returns an empty Index ready for Add calls.
func New() *Index {
	return &Index{
		sheetToRel: make(map[schema.Entity]map[string]string),
		relToSheet: make(map[schema.Entity]map[string]string),
		loadCars:   make(map[string][]string),
	}
}

// Add records one (sheetID, relID) pair for entity e. First write
// wins in each direction on its own: an id already mapped keeps its
// existing counterpart in that direction's map, so a duplicate or
// stale row never overwrites a mapping already trusted by an
// in-progress run, while the other direction's entry is still added
// when its id is not yet mapped.
func (idx *Index) Add(e schema.Entity, sheetID, relID string) {
	if sheetID == "" || relID == "" {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.sheetToRel[e] == nil {
		idx.sheetToRel[e] = make(map[string]string)
	}
	if idx.relToSheet[e] == nil {
		idx.relToSheet[e] = make(map[string]string)
	}

	if _, ok := idx.sheetToRel[e][sheetID]; !ok {
		idx.sheetToRel[e][sheetID] = relID
	}
	if _, ok := idx.relToSheet[e][relID]; !ok {
		idx.relToSheet[e][relID] = sheetID
	}
}

// RelationalID looks up the relational id paired with a sheet id.
func (idx *Index) RelationalID(e schema.Entity, sheetID string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	v, ok := idx.sheetToRel[e][sheetID]
	return v, ok
}

// SheetID looks up the sheet id paired with a relational id.
func (idx *Index) SheetID(e schema.Entity, relID string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	v, ok := idx.relToSheet[e][relID]
	return v, ok
}

// LoadCarsRow is one scanned row of the load_cars join table.
type LoadCarsRow struct {
	LoadID             string
	CarID              string // relational car id
	CarAirtableID      string // embedded sheet car id, if the query joined it in
	IsAssigned         interface{}
	LastChangedForSync *time.Time
}

// BuildLoadCars populates the load->assigned-cars aggregation from a
// batch of load_cars rows. Rows whose is_assigned flag does not parse
// truthy are excluded (§4.4): an unassigned join row records history,
// not a current assignment. A row's sheet car id is taken from its
// embedded CarAirtableID when present, else resolved via cross-ref.
func (idx *Index) BuildLoadCars(rows []LoadCarsRow) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	seen := make(map[string]map[string]bool)
	byLoad := make(map[string][]string)
	for _, row := range rows {
		if !syncutil.TruthyFlag(row.IsAssigned) {
			continue
		}
		carSheetID := row.CarAirtableID
		if carSheetID == "" {
			var ok bool
			carSheetID, ok = idx.relToSheet[schema.Car][row.CarID]
			if !ok {
				continue
			}
		}
		if carSheetID == "" {
			continue
		}
		if seen[row.LoadID] == nil {
			seen[row.LoadID] = make(map[string]bool)
		}
		if seen[row.LoadID][carSheetID] {
			continue
		}
		seen[row.LoadID][carSheetID] = true
		byLoad[row.LoadID] = append(byLoad[row.LoadID], carSheetID)
	}
	for loadID, ids := range byLoad {
		sort.Strings(ids)
		byLoad[loadID] = ids
	}
	idx.loadCars = byLoad
}

// LoadCars returns the sheet car ids currently assigned to a
// relational load id, or an empty (non-nil) slice when none are
// assigned, so the caller always has a concrete list value to send.
func (idx *Index) LoadCars(loadID string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := idx.loadCars[loadID]
	if ids == nil {
		return []string{}
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
