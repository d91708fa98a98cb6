// Package syncutil collects small value-normalization helpers shared
// by fieldmapper, crossref, syncer, and both store adapters. None of these depend on the
// network or the database; they operate purely on the Go values that
// come out of a JSON/Airtable decode or a database row scan.
package syncutil

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// NormalizeString trims surrounding whitespace. Returns "" for nil.
func NormalizeString(v interface{}) string {
	if v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// IsBlank reports whether a value should be treated as empty: nil,
// an empty or whitespace-only string, or an empty slice.
func IsBlank(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []interface{}:
		return len(t) == 0
	case []string:
		return len(t) == 0
	default:
		return false
	}
}

// CoerceNumeric converts a decoded JSON/SQL numeric value (float64,
// int64, string, or nil) to a finite float64, or returns ok=false when
// the value is absent, non-numeric, or non-finite (NaN/Inf never
// survive onto the wire).
func CoerceNumeric(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		if isFinite(t) {
			return t, true
		}
		return 0, false
	case float32:
		f := float64(t)
		if isFinite(f) {
			return f, true
		}
		return 0, false
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || !isFinite(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// TruthyFlag interprets the handful of shapes is_assigned shows up as
// across a sheet API (bool, number, or string) and a SQL driver
// (bool, int64, []byte "t"/"f").
func TruthyFlag(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int64:
		return t != 0
	case int:
		return t != 0
	case float64:
		return t != 0
	case []byte:
		return TruthyFlag(string(t))
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "t", "true", "yes", "y":
			return true
		default:
			return false
		}
	default:
		return false
	}
}

// ParseTimestamp accepts the shapes a last-changed/last-synced column
// shows up as: time.Time (from gorm/sqlx scanning), RFC3339 string
// (from a sheet API's JSON), or nil.
func ParseTimestamp(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			return parsed, true
		}
		if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return parsed, true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// DateOnly reformats a timestamp-shaped value down to YYYY-MM-DD, the
// form the sheet side stores date fields in.
func DateOnly(v interface{}) (string, bool) {
	t, ok := ParseTimestamp(v)
	if !ok {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

// FirstLinkID extracts the first element of a sheet-side link value
// (a []string or []interface{} of record ids), or "" if empty/absent.
func FirstLinkID(v interface{}) string {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return ""
		}
		return t[0]
	case []interface{}:
		if len(t) == 0 {
			return ""
		}
		if s, ok := t[0].(string); ok {
			return s
		}
		return ""
	case string:
		return t
	default:
		return ""
	}
}
