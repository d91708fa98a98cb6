// Package conflict implements the tolerance-window decision tree that
// decides, for one record pair, whether a sync pass proceeds, skips,
// or ties-breaks on the sheet side, and computes the asymmetric
// last_synced stamp written back afterward.
//
// Grounded on the teacher's "has this row changed since we last saw
// it" check ahead of an Airtable write in internal/providers/data_provider.go,
// generalized here into a two-sided, tolerance-windowed comparison
// since this engine (unlike the teacher's one-way push) must decide
// which side's edit wins.
package conflict

import "time"

// Decision is the outcome of comparing one record pair.
type Decision int

const (
	// Proceed means the sync should write source's data to target.
	Proceed Decision = iota
	// Skip means no write should happen this pass.
	Skip
)

// Window holds the two tolerance windows used to decide whether a
// side has "changed since last sync": a record is considered changed
// only when its last-changed timestamp exceeds its own last-synced
// timestamp by more than the window, absorbing clock skew and
// sub-second write-then-read races.
type Window struct {
	Source time.Duration
	Target time.Duration
}

// changed reports whether lastChanged is more than window past
// lastSynced. A missing lastChanged is never "changed"; a present
// lastChanged with a missing lastSynced always is, since there is no
// baseline to compare against.
func changed(lastChanged, lastSynced *time.Time, window time.Duration) bool {
	if lastChanged == nil {
		return false
	}
	if lastSynced == nil {
		return true
	}
	return lastChanged.Sub(*lastSynced) > window
}

// Resolve implements the four-branch decision tree (§4.3):
//
//	neither side changed  -> Skip
//	only source changed   -> Proceed
//	only target changed   -> Skip (target's edit wins by staying put;
//	                          the reverse-direction pass will pick it up)
//	both changed           -> tiebreak: Skip only if target's change
//	                          is newer than source's by more than the
//	                          sheet epsilon, else Proceed (source wins ties)
func Resolve(
	sourceChanged, targetChanged *time.Time,
	sourceSynced, targetSynced *time.Time,
	window Window,
	sheetEpsilon time.Duration,
) Decision {
	srcChanged := changed(sourceChanged, sourceSynced, window.Source)
	tgtChanged := changed(targetChanged, targetSynced, window.Target)

	switch {
	case !srcChanged && !tgtChanged:
		return Skip
	case srcChanged && !tgtChanged:
		return Proceed
	case !srcChanged && tgtChanged:
		return Skip
	default:
		if sourceChanged == nil || targetChanged == nil {
			return Skip
		}
		// Equal-within-epsilon and source-newer both proceed (source
		// wins ties); only a target strictly newer than epsilon skips.
		if targetChanged.Sub(*sourceChanged) > sheetEpsilon {
			return Skip
		}
		return Proceed
	}
}

// StampLastSynced computes the last_synced value to write back to the
// source after a successful write: the source's own last-changed
// timestamp when it is newer than the source's previous last_synced,
// otherwise the current time. This keeps last_synced monotonic on the
// source even when the write races a concurrent edit to the source
// record made after the pass started reading it.
func StampLastSynced(sourceChanged, sourceSynced *time.Time, now time.Time) time.Time {
	if sourceChanged != nil && (sourceSynced == nil || sourceChanged.After(*sourceSynced)) {
		return *sourceChanged
	}
	return now
}
