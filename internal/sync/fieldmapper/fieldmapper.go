// Package fieldmapper translates field values between the relational
// and sheet representations of a record: value normalization, numeric
// coercion, link translation, date-only reformatting, and the
// name-label fallback chain that gives a record its display label
// (written as the relational back-link label, and used to identify a
// record with no id in error reports).
//
// Grounded on the teacher's field-mapping pass in
// internal/providers/data_provider.go, generalized from the
// teacher's per-VA configurable mapping into the fixed per-entity
// Defs table in internal/sync/schema.
package fieldmapper

import (
	"github.com/sanketpandia/recondrive/internal/logging"
	"github.com/sanketpandia/recondrive/internal/sync/crossref"
	"github.com/sanketpandia/recondrive/internal/sync/record"
	"github.com/sanketpandia/recondrive/internal/sync/schema"
	"github.com/sanketpandia/recondrive/internal/sync/syncutil"
)

// Mapper translates Records between sides for one entity.
type Mapper struct {
	def   schema.Def
	index *crossref.Index
}

// New builds a Mapper for the given entity, backed by the supplied
// cross-reference index for link translation.
func New(def schema.Def, index *crossref.Index) *Mapper {
	return &Mapper{def: def, index: index}
}

// ToRelational converts a sheet-shaped Record's Fields into the
// relational column shape: links collapsed to scalar ids, numerics
// coerced, blanks nulled. Date-only reformatting is a sheet-bound
// concern only (§4.1) so relational-bound values pass through as
// plain scalars.
func (m *Mapper) ToRelational(src *record.Record) map[string]interface{} {
	out := make(map[string]interface{}, len(m.def.Fields)+len(m.def.Links))

	for _, key := range m.def.Fields {
		v, _ := src.Get(key)
		out[key] = m.normalizeScalar(key, v, false)
	}

	for _, link := range m.def.Links {
		v, _ := src.Get(link.Key)
		sheetID := syncutil.FirstLinkID(v)
		if sheetID == "" {
			// No link on the source side at all: an explicit clear,
			// not a missing translation, so the target is nulled.
			out[link.Key] = nil
			continue
		}
		relID, ok := m.index.RelationalID(link.Target, sheetID)
		if !ok {
			logging.Warn("fieldmapper: link reference missing from cross-ref index",
				"entity", m.def.Entity, "link", link.Key, "target", link.Target, "sheet_id", sheetID)
			// Missing translation omits the key rather than nulling
			// it (§4.1, §7 reference-missing warning).
			out[link.Key] = undefined{}
			continue
		}
		out[link.Key] = relID
	}

	return out
}

// ToSheet converts a relational-shaped Record's Fields into the sheet
// field shape: scalar ids expanded to single-element link lists, and
// date-only fields reformatted to YYYY-MM-DD.
func (m *Mapper) ToSheet(src *record.Record) map[string]interface{} {
	out := make(map[string]interface{}, len(m.def.Fields)+len(m.def.Links)+1)

	for _, key := range m.def.Fields {
		v, _ := src.Get(key)
		out[key] = m.normalizeScalar(key, v, true)
	}

	for _, link := range m.def.Links {
		v, _ := src.Get(link.Key)
		relID := syncutil.NormalizeString(v)
		if relID == "" {
			out[link.Key] = []string{}
			continue
		}
		sheetID, ok := m.index.SheetID(link.Target, relID)
		if !ok {
			logging.Warn("fieldmapper: link reference missing from cross-ref index",
				"entity", m.def.Entity, "link", link.Key, "target", link.Target, "relational_id", relID)
			out[link.Key] = []string{}
			continue
		}
		out[link.Key] = []string{sheetID}
	}

	if m.def.HasLoadCarsLink {
		relID := syncutil.NormalizeString(src.SupabaseID)
		if relID == "" {
			relID = src.ID
		}
		out["load_cars"] = m.index.LoadCars(relID)
		// load_number is the sheet's own read-only column; the
		// engine must never write it back (§4.1).
		delete(out, "load_number")
	}

	// The relational→sheet direction has no separate back-link write
	// (the sheet adapter addresses records by their own id, so there
	// is nothing to "link back" to); supabase_id rides along in this
	// same create/update payload instead (§4.6.3.e).
	out["supabase_id"] = src.ID

	return out
}

// normalizeScalar applies required/numeric/date-only rules.
// Date-only reformatting only applies toSheet: an unparseable value
// is left untouched rather than nulled, since the relational side
// already stores it in whatever native shape it was created with.
func (m *Mapper) normalizeScalar(key string, v interface{}, toSheet bool) interface{} {
	if toSheet && m.def.DateOnly[key] {
		if s, ok := syncutil.DateOnly(v); ok {
			return s
		}
		return v
	}

	if m.def.Numeric[key] {
		if f, ok := syncutil.CoerceNumeric(v); ok {
			return f
		}
		return nil
	}

	s := syncutil.NormalizeString(v)
	if s == "" {
		if m.def.Required[key] {
			// A blank required field is dropped rather than nulled so
			// PayloadPreparer's drop-undefined pass leaves the
			// target's existing value alone instead of clobbering it.
			return undefined{}
		}
		return nil
	}
	return s
}

// undefined is a sentinel distinguishing "field absent from this
// payload" from "field explicitly set to null". PayloadPreparer drops
// any key whose value is of this type before diffing.
type undefined struct{}

// IsUndefined reports whether v is the undefined sentinel.
func IsUndefined(v interface{}) bool {
	_, ok := v.(undefined)
	return ok
}

// NameLabel resolves the human-readable label for a sheet record,
// following the fallback chain: the dedicated name-label field, then
// the record's own id, then raw_fields.id, then the airtable id.
func NameLabel(r *record.Record) string {
	if r == nil {
		return ""
	}
	if r.AirtableIDNameLabel != "" {
		return r.AirtableIDNameLabel
	}
	if r.ID != "" {
		return r.ID
	}
	if r.RawFields != nil {
		if v, ok := r.RawFields["id"]; ok {
			if s := syncutil.NormalizeString(v); s != "" {
				return s
			}
		}
	}
	return r.AirtableID
}
