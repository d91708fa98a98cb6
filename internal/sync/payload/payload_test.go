package payload

import (
	"testing"

	"github.com/sanketpandia/recondrive/internal/sync/crossref"
	"github.com/sanketpandia/recondrive/internal/sync/fieldmapper"
	"github.com/sanketpandia/recondrive/internal/sync/record"
	"github.com/sanketpandia/recondrive/internal/sync/schema"
	"github.com/stretchr/testify/assert"
)

// realUndefined produces the fieldmapper package's actual undefined
// sentinel (its type is unexported, so a required-but-blank field
// mapped through a real Mapper is the only way an external package
// can obtain one) so ForCreate/ForUpdate are exercised against the
// exact value the rest of the pipeline would hand them.
func realUndefined() interface{} {
	m := fieldmapper.New(schema.Defs[schema.Car], crossref.New())
	out := m.ToRelational(&record.Record{Fields: map[string]interface{}{
		"make":  "",
		"model": "F150",
	}})
	return out["make"]
}

func TestForCreate_DropsUndefined(t *testing.T) {
	p := New(nil)
	candidate := map[string]interface{}{
		"make":  "Ford",
		"model": realUndefined(),
	}
	out := p.ForCreate(candidate)
	assert.Equal(t, "Ford", out["make"])
	_, present := out["model"]
	assert.False(t, present)
}

func TestForUpdate_OnlyDiffingFieldsIncluded(t *testing.T) {
	p := New(nil)
	candidate := map[string]interface{}{
		"make":  "Ford",
		"model": "F150",
	}
	current := map[string]interface{}{
		"make":  "Ford",
		"model": "F250",
	}
	out := p.ForUpdate("supabase_to_airtable", schema.Car, candidate, current)
	_, makePresent := out["make"]
	assert.False(t, makePresent, "unchanged field should be excluded")
	assert.Equal(t, "F150", out["model"])
}

func TestForUpdate_BlankOverwriteGuarded(t *testing.T) {
	p := New(nil)
	candidate := map[string]interface{}{"model": ""}
	current := map[string]interface{}{"model": "F250"}
	out := p.ForUpdate("supabase_to_airtable", schema.Car, candidate, current)
	_, present := out["model"]
	assert.False(t, present, "blank candidate must not overwrite non-blank current without allowlist")
}

func TestForUpdate_BlankOverwriteAllowedByAllowlist(t *testing.T) {
	allow := Allowlist{
		"supabase_to_airtable": {
			schema.Car: {"model": true},
		},
	}
	p := New(allow)
	candidate := map[string]interface{}{"model": ""}
	current := map[string]interface{}{"model": "F250"}
	out := p.ForUpdate("supabase_to_airtable", schema.Car, candidate, current)
	assert.Equal(t, "", out["model"])
}

func TestForUpdate_BlankOverwritingBlank_TreatedAsEqual(t *testing.T) {
	p := New(nil)
	candidate := map[string]interface{}{"model": ""}
	current := map[string]interface{}{"model": nil}
	out := p.ForUpdate("supabase_to_airtable", schema.Car, candidate, current)
	// Both sides blank: normalizedEqual should already exclude it, but
	// even if it didn't, blank-overwriting-blank is not guarded.
	_, present := out["model"]
	assert.False(t, present)
}

func TestNormalizedEqual_WhitespaceAndListOrdering(t *testing.T) {
	p := New(nil)
	candidate := map[string]interface{}{
		"name":   "  Acme Co  ",
		"cars":   []string{"recB", "recA"},
	}
	current := map[string]interface{}{
		"name": "Acme Co",
		"cars": []string{"recA", "recB"},
	}
	out := p.ForUpdate("supabase_to_airtable", schema.Company, candidate, current)
	assert.Empty(t, out, "whitespace and list ordering differences must not trigger a write")
}

func TestNormalizedEqual_ActualListDiffDetected(t *testing.T) {
	p := New(nil)
	candidate := map[string]interface{}{"cars": []string{"recA", "recC"}}
	current := map[string]interface{}{"cars": []string{"recA", "recB"}}
	out := p.ForUpdate("supabase_to_airtable", schema.Load, candidate, current)
	assert.Contains(t, out, "cars")
}

func TestAllowlist_NilIsNeverAllowed(t *testing.T) {
	var a Allowlist
	assert.False(t, a.Allowed("supabase_to_airtable", schema.Car, "model"))
}
