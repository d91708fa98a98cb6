// Package provider declares the uniform fetch/create/update contract
// both remote stores implement, so EntitySyncer never branches on
// which side it is talking to.
//
// Grounded on the teacher's DataProvider interface in
// internal/providers/data_provider.go, trimmed to the operations this
// engine actually drives (no validation-phase reporting, no
// single-record fetch-by-id — the engine always works off a full
// per-entity fetch).
package provider

import (
	"context"

	"github.com/sanketpandia/recondrive/internal/sync/record"
	"github.com/sanketpandia/recondrive/internal/sync/schema"
)

// Store is implemented once for the relational side and once for the
// sheet side.
type Store interface {
	// FetchAll returns every record of entity e currently on this
	// side. The engine has no incremental/changed-since fetch: each
	// pass re-reads the full table and lets ConflictResolver decide
	// what changed.
	FetchAll(ctx context.Context, e schema.Entity) ([]*record.Record, error)

	// Create writes a new record and returns its native id.
	Create(ctx context.Context, e schema.Entity, fields map[string]interface{}) (string, error)

	// Update applies a partial field set to an existing record
	// identified by this side's native id.
	Update(ctx context.Context, e schema.Entity, id string, fields map[string]interface{}) error

	// SetBackLink writes the cross-reference fields back onto a
	// record after a successful propagation (§4.6.3.e): the sheet's
	// supabase_id, or the relational row's airtable_id/
	// airtable_id_name_label.
	SetBackLink(ctx context.Context, e schema.Entity, id string, link BackLink) error

	// StampLastSynced updates only the last_synced column/field for a
	// record, independent of any other field write.
	StampLastSynced(ctx context.Context, e schema.Entity, id string, lastSynced interface{}) error
}

// BackLink carries whichever of the two identity fields this side is
// responsible for writing back.
type BackLink struct {
	AirtableID          string
	AirtableIDNameLabel string
	SupabaseID          string
}
