// Package payload builds the minimal create/update payload sent to a
// target store: undefined fields are dropped, values are compared
// against the target's current state under a normalized equality, and
// a blank value is only allowed to overwrite existing target data when
// the (direction, entity, field) triple is explicitly allowed.
//
// Grounded on the teacher's diff-before-write pass in
// internal/providers/data_provider.go (comparing a candidate Airtable
// payload against the record already on file before issuing a PATCH).
package payload

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/sanketpandia/recondrive/internal/sync/fieldmapper"
	"github.com/sanketpandia/recondrive/internal/sync/schema"
)

// Allowlist names the (direction, entity, field) triples permitted to
// overwrite a non-blank target value with a blank source value.
// Populated from the sync-rules file (§6.5); empty by default.
type Allowlist map[string]map[schema.Entity]map[string]bool

// Allowed reports whether direction/entity/field may blank-overwrite.
func (a Allowlist) Allowed(direction string, e schema.Entity, field string) bool {
	if a == nil {
		return false
	}
	return a[direction][e][field]
}

// Preparer builds payloads for one entity.
type Preparer struct {
	allow Allowlist
}

// New returns a Preparer using the given blank-overwrite allowlist.
func New(allow Allowlist) *Preparer {
	return &Preparer{allow: allow}
}

// ForCreate returns candidate with undefined fields dropped and
// nothing else filtered, since there is no existing target row to
// guard against clobbering.
func (p *Preparer) ForCreate(candidate map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(candidate))
	for k, v := range candidate {
		if fieldmapper.IsUndefined(v) {
			continue
		}
		out[k] = v
	}
	return out
}

// ForUpdate returns the subset of candidate that actually differs
// from current, applying the blank-overwrite guard per field.
//
// A field is included when:
//  1. it is not undefined in candidate, and
//  2. its normalized value differs from current's, and
//  3. it is not a blank value attempting to overwrite a non-blank
//     target value, unless direction/entity/field is allowlisted.
func (p *Preparer) ForUpdate(direction string, e schema.Entity, candidate, current map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range candidate {
		if fieldmapper.IsUndefined(v) {
			continue
		}
		curV := current[k]
		if normalizedEqual(v, curV) {
			continue
		}
		if isBlankValue(v) && !isBlankValue(curV) && !p.allow.Allowed(direction, e, k) {
			continue
		}
		out[k] = v
	}
	return out
}

func isBlankValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []string:
		return len(t) == 0
	case []interface{}:
		return len(t) == 0
	default:
		return false
	}
}

// normalizedEqual compares two decoded values for equality after
// trimming strings and canonicalizing arrays/objects to sorted JSON,
// so link-list ordering or incidental whitespace never triggers a
// spurious write.
func normalizedEqual(a, b interface{}) bool {
	return canonical(a) == canonical(b)
}

func canonical(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s := strings.TrimSpace(t)
		return s
	case []string:
		cp := append([]string(nil), t...)
		sort.Strings(cp)
		b, _ := json.Marshal(cp)
		return string(b)
	case []interface{}:
		strs := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				strs = append(strs, s)
			} else {
				b, _ := json.Marshal(e)
				strs = append(strs, string(b))
			}
		}
		sort.Strings(strs)
		b, _ := json.Marshal(strs)
		return string(b)
	case float64:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
