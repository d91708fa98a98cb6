// Package syncerr enumerates the per-record error taxonomy the sync
// engine raises, paired with human-readable messages, the way the
// teacher's internal/constants package enumerates Airtable provider
// error codes and their messages.
package syncerr

import (
	"errors"
	"fmt"
)

// Kind identifies one category of per-record sync failure.
type Kind string

const (
	KindConfig            Kind = "CONFIG_ERROR"
	KindReferenceMissing  Kind = "REFERENCE_MISSING"
	KindMissingRequired   Kind = "MISSING_REQUIRED_FIELD"
	KindSheetUnknownField Kind = "SHEET_UNKNOWN_FIELD"
	KindSheetInvalidValue Kind = "SHEET_INVALID_VALUE"
	KindTransient         Kind = "TRANSIENT_REMOTE_FAILURE"
)

// Messages gives a stable human-readable description per Kind, used
// when building the run-level error summary.
var Messages = map[Kind]string{
	KindConfig:            "missing or invalid configuration",
	KindReferenceMissing:  "a link field referenced an id absent from the cross-reference index",
	KindMissingRequired:   "a required field was absent on record creation",
	KindSheetUnknownField: "the sheet API rejected a field name (422 UNKNOWN_FIELD_NAME)",
	KindSheetInvalidValue: "the sheet API rejected one or more field values",
	KindTransient:         "a transient remote failure occurred",
}

// Error is a per-record sync failure tagged with its Kind, the
// record identifier it occurred on, and the underlying cause.
type Error struct {
	Kind     Kind
	RecordID string
	Err      error
}

func New(kind Kind, recordID string, err error) *Error {
	return &Error{Kind: kind, RecordID: recordID, Err: err}
}

func (e *Error) Error() string {
	msg := Messages[e.Kind]
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (record %s): %v", e.Kind, msg, e.RecordID, e.Err)
	}
	return fmt.Sprintf("%s: %s (record %s)", e.Kind, msg, e.RecordID)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the Kind from err if it (or something it wraps) is
// a *Error, defaulting to KindTransient for anything else — an
// unrecognized failure is treated as retryable on the next run.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransient
}
