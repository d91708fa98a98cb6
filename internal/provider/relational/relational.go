// Package relational implements provider.Store against the relational
// side using sqlx, generalizing each entity's table/column shape from
// internal/sync/schema instead of hand-writing one repository per
// entity.
//
// Grounded on the teacher's NamedExecContext upsert pattern in
// internal/db/repositories/sync_repository.go, generalized from two
// hardcoded tables (pilot_at_synced, route_at_synced) into one
// reflection-free builder driven by schema.Def.
package relational

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sanketpandia/recondrive/internal/provider"
	"github.com/sanketpandia/recondrive/internal/sync/crossref"
	"github.com/sanketpandia/recondrive/internal/sync/record"
	"github.com/sanketpandia/recondrive/internal/sync/schema"
	"github.com/sanketpandia/recondrive/internal/sync/syncutil"
)

// Adapter implements provider.Store against Postgres (or any
// sqlx-compatible driver, e.g. sqlite in tests).
type Adapter struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Adapter {
	return &Adapter{db: db}
}

var _ provider.Store = (*Adapter)(nil)

func columns(def schema.Def) []string {
	cols := make([]string, 0, len(def.Fields)+len(def.Links)+5)
	cols = append(cols, "id", "airtable_id", "airtable_id_name_label", "last_changed_for_sync", "last_synced")
	cols = append(cols, def.Fields...)
	for _, l := range def.Links {
		cols = append(cols, l.Key)
	}
	return cols
}

// FetchAll scans every row of the entity's table into Records.
func (a *Adapter) FetchAll(ctx context.Context, e schema.Entity) ([]*record.Record, error) {
	def, ok := schema.Defs[e]
	if !ok {
		return nil, fmt.Errorf("relational: unknown entity %q", e)
	}
	cols := columns(def)
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), def.TableName)

	rows, err := a.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("relational: fetch %s: %w", def.TableName, err)
	}
	defer rows.Close()

	var out []*record.Record
	for rows.Next() {
		raw := make(map[string]interface{})
		if err := rows.MapScan(raw); err != nil {
			return nil, fmt.Errorf("relational: scan %s row: %w", def.TableName, err)
		}
		out = append(out, rowToRecord(raw))
	}
	return out, rows.Err()
}

func rowToRecord(raw map[string]interface{}) *record.Record {
	r := &record.Record{
		Fields:    make(map[string]interface{}, len(raw)),
		RawFields: raw,
	}
	if v, ok := raw["id"]; ok {
		r.ID = toString(v)
		r.SupabaseID = r.ID
	}
	if v, ok := raw["airtable_id"]; ok {
		r.AirtableID = toString(v)
	}
	if v, ok := raw["airtable_id_name_label"]; ok {
		r.AirtableIDNameLabel = toString(v)
	}
	if v, ok := raw["last_changed_for_sync"]; ok {
		if t, ok := syncutil.ParseTimestamp(v); ok {
			r.LastChangedForSync = &t
		}
	}
	if v, ok := raw["last_synced"]; ok {
		if t, ok := syncutil.ParseTimestamp(v); ok {
			r.LastSynced = &t
		}
	}
	for k, v := range raw {
		switch k {
		case "id", "airtable_id", "airtable_id_name_label", "last_changed_for_sync", "last_synced":
			continue
		}
		r.Fields[k] = v
	}
	return r
}

// Create inserts a new row, assigning a fresh UUID unless the caller
// already supplied one (§4.6.3.d: the engine honors a source-provided
// id when the source record already referenced one).
func (a *Adapter) Create(ctx context.Context, e schema.Entity, fields map[string]interface{}) (string, error) {
	def, ok := schema.Defs[e]
	if !ok {
		return "", fmt.Errorf("relational: unknown entity %q", e)
	}

	id, _ := fields["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}

	cols := []string{"id"}
	vals := map[string]interface{}{"id": id}
	for k, v := range fields {
		if k == "id" {
			continue
		}
		cols = append(cols, k)
		vals[k] = v
	}

	placeholders := make([]string, len(cols))
	for i, c := range cols {
		placeholders[i] = ":" + c
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		def.TableName, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
	)

	if _, err := a.db.NamedExecContext(ctx, query, vals); err != nil {
		return "", fmt.Errorf("relational: create %s: %w", def.TableName, err)
	}
	return id, nil
}

// Update applies a partial field set by id.
func (a *Adapter) Update(ctx context.Context, e schema.Entity, id string, fields map[string]interface{}) error {
	def, ok := schema.Defs[e]
	if !ok {
		return fmt.Errorf("relational: unknown entity %q", e)
	}
	if len(fields) == 0 {
		return nil
	}

	sets := make([]string, 0, len(fields))
	vals := map[string]interface{}{"id": id}
	for k, v := range fields {
		sets = append(sets, fmt.Sprintf("%s = :%s", k, k))
		vals[k] = v
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = :id", def.TableName, strings.Join(sets, ", "))
	if _, err := a.db.NamedExecContext(ctx, query, vals); err != nil {
		return fmt.Errorf("relational: update %s %s: %w", def.TableName, id, err)
	}
	return nil
}

// SetBackLink writes airtable_id/airtable_id_name_label: the
// relational side never receives its own supabase_id from outside
// (it IS the supabase id).
func (a *Adapter) SetBackLink(ctx context.Context, e schema.Entity, id string, link provider.BackLink) error {
	def, ok := schema.Defs[e]
	if !ok {
		return fmt.Errorf("relational: unknown entity %q", e)
	}
	query := fmt.Sprintf(
		"UPDATE %s SET airtable_id = :airtable_id, airtable_id_name_label = :name_label WHERE id = :id",
		def.TableName,
	)
	_, err := a.db.NamedExecContext(ctx, query, map[string]interface{}{
		"airtable_id": link.AirtableID,
		"name_label":  link.AirtableIDNameLabel,
		"id":          id,
	})
	if err != nil {
		return fmt.Errorf("relational: back-link %s %s: %w", def.TableName, id, err)
	}
	return nil
}

// StampLastSynced updates only the last_synced column.
func (a *Adapter) StampLastSynced(ctx context.Context, e schema.Entity, id string, lastSynced interface{}) error {
	def, ok := schema.Defs[e]
	if !ok {
		return fmt.Errorf("relational: unknown entity %q", e)
	}
	query := fmt.Sprintf("UPDATE %s SET last_synced = :last_synced WHERE id = :id", def.TableName)
	_, err := a.db.NamedExecContext(ctx, query, map[string]interface{}{
		"last_synced": lastSynced,
		"id":          id,
	})
	if err != nil {
		return fmt.Errorf("relational: stamp last_synced %s %s: %w", def.TableName, id, err)
	}
	return nil
}

// FetchLoadCars loads the full load_cars join table into
// crossref.LoadCarsRow values for aggregation.
func (a *Adapter) FetchLoadCars(ctx context.Context) ([]crossref.LoadCarsRow, error) {
	query := fmt.Sprintf("SELECT load_id, car_id, is_assigned, last_changed_for_sync FROM %s", schema.LoadCarsTable)
	rows, err := a.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("relational: fetch %s: %w", schema.LoadCarsTable, err)
	}
	defer rows.Close()

	var out []crossref.LoadCarsRow
	for rows.Next() {
		raw := make(map[string]interface{})
		if err := rows.MapScan(raw); err != nil {
			return nil, fmt.Errorf("relational: scan %s row: %w", schema.LoadCarsTable, err)
		}
		row := crossref.LoadCarsRow{
			LoadID:     toString(raw["load_id"]),
			CarID:      toString(raw["car_id"]),
			IsAssigned: raw["is_assigned"],
		}
		if t, ok := syncutil.ParseTimestamp(raw["last_changed_for_sync"]); ok {
			row.LastChangedForSync = &t
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
