// Package sheet implements provider.Store against the spreadsheet-
// style API, including field-id/field-name dual addressing and the
// 422-driven recovery retries described for the sheet side.
//
// Grounded on the teacher's AirtableProvider in
// internal/providers/airtable_provider.go (http.Client with a fixed
// timeout, Bearer auth, listRecords-via-POST pagination, and
// handleHTTPError's status-code switch), extended with the field-id
// fallback and error-message sanitization the teacher's provider does
// not need (it only ever reads/writes its own fixed pilot schema).
package sheet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sanketpandia/recondrive/internal/cache"
	"github.com/sanketpandia/recondrive/internal/config"
	"github.com/sanketpandia/recondrive/internal/logging"
	"github.com/sanketpandia/recondrive/internal/metrics"
	"github.com/sanketpandia/recondrive/internal/provider"
	"github.com/sanketpandia/recondrive/internal/sync/record"
	"github.com/sanketpandia/recondrive/internal/sync/schema"
	"github.com/sanketpandia/recondrive/internal/sync/syncutil"
	"github.com/sanketpandia/recondrive/internal/syncerr"
)

// Reserved keys the engine must never write to the sheet side (§4.5).
var reservedKeys = map[string]bool{
	"airtable_id":      true,
	"last_modified":    true,
	"raw_fields":       true,
	"raw_fields_by_id": true,
}

// Adapter implements provider.Store against the sheet API.
type Adapter struct {
	client  *http.Client
	cfg     *config.Config
	cache   cache.CacheInterface
	limiter *rate.Limiter
	metrics *metrics.Registry
}

func New(cfg *config.Config, c cache.CacheInterface, reg *metrics.Registry) *Adapter {
	return &Adapter{
		client:  &http.Client{Timeout: 30 * time.Second},
		cfg:     cfg,
		cache:   c,
		limiter: rate.NewLimiter(rate.Limit(cfg.SheetRateLimitPerSec), 1),
		metrics: reg,
	}
}

var _ provider.Store = (*Adapter)(nil)

func (a *Adapter) tableRef(e schema.Entity) (string, error) {
	ref, ok := a.cfg.TableByEntity[e]
	if !ok {
		return "", fmt.Errorf("sheet: no table configured for entity %q", e)
	}
	if ref.ID != "" {
		return ref.ID, nil
	}
	return ref.Name, nil
}

func (a *Adapter) fieldRef(e schema.Entity, key string) config.FieldRef {
	fields, ok := a.cfg.FieldMap[e]
	if !ok {
		return config.FieldRef{Name: key}
	}
	ref, ok := fields[key]
	if !ok || (ref.Name == "" && ref.ID == "") {
		return config.FieldRef{Name: key}
	}
	if ref.Name == "" {
		ref.Name = key
	}
	return ref
}

type listResponse struct {
	Records []struct {
		ID          string                 `json:"id"`
		CreatedTime string                 `json:"createdTime"`
		Fields      map[string]interface{} `json:"fields"`
	} `json:"records"`
	Offset string `json:"offset"`
}

// FetchAll pages through every record of the entity's table.
func (a *Adapter) FetchAll(ctx context.Context, e schema.Entity) ([]*record.Record, error) {
	table, err := a.tableRef(e)
	if err != nil {
		return nil, err
	}

	var out []*record.Record
	offset := ""
	for {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		payload := map[string]interface{}{"pageSize": 100}
		if offset != "" {
			payload["offset"] = offset
		}
		body, _ := json.Marshal(payload)

		url := fmt.Sprintf("https://api.airtable.com/v0/%s/%s/listRecords", a.cfg.SheetBaseID, table)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("sheet: build list request for %s: %w", table, err)
		}
		a.authorize(req)

		resp, err := a.client.Do(req)
		if err != nil {
			return nil, syncerr.New(syncerr.KindTransient, "", fmt.Errorf("sheet: list %s: %w", table, err))
		}
		raw, err := readAndCheck(resp)
		if err != nil {
			return nil, err
		}

		var lr listResponse
		if err := json.Unmarshal(raw, &lr); err != nil {
			return nil, fmt.Errorf("sheet: decode list response for %s: %w", table, err)
		}

		for _, rec := range lr.Records {
			out = append(out, a.toRecord(e, rec.ID, rec.Fields))
		}

		if lr.Offset == "" {
			break
		}
		offset = lr.Offset
	}

	return out, nil
}

func (a *Adapter) toRecord(e schema.Entity, id string, raw map[string]interface{}) *record.Record {
	r := &record.Record{
		ID:         id,
		AirtableID: id,
		Fields:     make(map[string]interface{}, len(raw)),
		RawFields:  raw,
	}

	def := schema.Defs[e]
	lookup := func(key string) (interface{}, bool) {
		ref := a.fieldRef(e, key)
		if v, ok := raw[ref.Name]; ok {
			return v, true
		}
		if v, ok := raw[key]; ok {
			return v, true
		}
		return a.fallbackByFieldID(e, id, ref.ID)
	}

	for _, key := range def.Fields {
		if v, ok := lookup(key); ok {
			r.Fields[key] = v
		}
	}
	for _, link := range def.Links {
		if v, ok := lookup(link.Key); ok {
			r.Fields[link.Key] = v
		}
	}
	if def.HasLoadCarsLink {
		if v, ok := raw["load_cars"]; ok {
			r.Fields["load_cars"] = v
		}
	}

	if v, ok := raw["supabase_id"]; ok {
		if s, ok := v.(string); ok {
			r.SupabaseID = s
		}
	}
	// Mirrored into Fields (in addition to the dedicated SupabaseID)
	// so PayloadPreparer's diff-against-current sees the value already
	// on file and drops a no-op rewrite on an idempotent rerun.
	r.Fields["supabase_id"] = r.SupabaseID
	if v, ok := raw["airtable_id_name_label"]; ok {
		if s, ok := v.(string); ok {
			r.AirtableIDNameLabel = s
		}
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

	return r
}

// fallbackByFieldID runs when a mapped key's value is absent under
// both candidate names. It marks (entity, field id) in the cache and
// counts a cache hit or miss, and it always reports no value: FetchAll
// makes no field-id-keyed request, so a key absent under both names
// stays absent from the record.
func (a *Adapter) fallbackByFieldID(e schema.Entity, recordID, fieldID string) (interface{}, bool) {
	if fieldID == "" {
		return nil, false
	}
	cacheKey := fmt.Sprintf("sheet:fieldid-needed:%s:%s", e, fieldID)
	if a.cache != nil {
		if a.metrics != nil {
			if _, hit := a.cache.Get(cacheKey); hit {
				a.metrics.CacheHitsTotal.WithLabelValues(string(e)).Inc()
			} else {
				a.metrics.CacheMissesTotal.WithLabelValues(string(e)).Inc()
			}
		}
		a.cache.Set(cacheKey, true, time.Hour)
	}
	return nil, false
}

// Create posts a new record, retrying through the field-id / sanitize
// recovery path on failure.
func (a *Adapter) Create(ctx context.Context, e schema.Entity, fields map[string]interface{}) (string, error) {
	table, err := a.tableRef(e)
	if err != nil {
		return "", err
	}
	byName, byID := a.buildPayloads(e, fields)

	id, err := a.writeWithRecovery(ctx, e, table, http.MethodPost, "", byName, byID)
	return id, err
}

// Update patches an existing record by id, through the same recovery
// path as Create.
func (a *Adapter) Update(ctx context.Context, e schema.Entity, id string, fields map[string]interface{}) error {
	table, err := a.tableRef(e)
	if err != nil {
		return err
	}
	byName, byID := a.buildPayloads(e, fields)
	_, err = a.writeWithRecovery(ctx, e, table, http.MethodPatch, id, byName, byID)
	return err
}

// SetBackLink writes supabase_id (the sheet side never receives its
// own airtable_id from outside — it IS the airtable id).
func (a *Adapter) SetBackLink(ctx context.Context, e schema.Entity, id string, link provider.BackLink) error {
	return a.Update(ctx, e, id, map[string]interface{}{"supabase_id": link.SupabaseID})
}

// StampLastSynced updates only last_synced.
func (a *Adapter) StampLastSynced(ctx context.Context, e schema.Entity, id string, lastSynced interface{}) error {
	return a.Update(ctx, e, id, map[string]interface{}{"last_synced": lastSynced})
}

// buildPayloads constructs the name-keyed payload (preferred) and the
// id-keyed fallback, skipping reserved keys.
func (a *Adapter) buildPayloads(e schema.Entity, fields map[string]interface{}) (byName, byID map[string]interface{}) {
	byName = make(map[string]interface{}, len(fields))
	byID = make(map[string]interface{}, len(fields))
	for key, v := range fields {
		if reservedKeys[key] {
			continue
		}
		ref := a.fieldRef(e, key)
		byName[ref.Name] = v
		if ref.ID != "" {
			byID[ref.ID] = v
		} else {
			byID[ref.Name] = v
		}
	}
	return byName, byID
}

var invalidValuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`Field "([^"]+)" cannot accept the provided value`),
	regexp.MustCompile(`Invalid value for field "([^"]+)"`),
	regexp.MustCompile(`Unknown field name: "([^"]+)"`),
}

// extractOffendingFields scans a sheet API error message for field
// names using the known message shapes; the sheet API does not
// structure per-field errors, so this is the only recovery path.
func extractOffendingFields(message string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, pat := range invalidValuePatterns {
		for _, m := range pat.FindAllStringSubmatch(message, -1) {
			if len(m) < 2 || seen[m[1]] {
				continue
			}
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// writeWithRecovery issues a create/update, retrying via the field-id
// payload on UNKNOWN_FIELD_NAME, then via a sanitized payload (both
// variants, offending keys dropped) on an invalid-value error.
func (a *Adapter) writeWithRecovery(
	ctx context.Context,
	e schema.Entity,
	table, method, id string,
	byName, byID map[string]interface{},
) (string, error) {
	recordID, apiErr, err := a.write(ctx, table, method, id, byName)
	if err == nil {
		return recordID, nil
	}

	if apiErr != nil && apiErr.isUnknownFieldName() {
		if a.metrics != nil {
			a.metrics.SheetWriteRetriesTotal.WithLabelValues(string(e), "unknown_field").Inc()
		}
		recordID, apiErr, err = a.write(ctx, table, method, id, byID)
		if err == nil {
			return recordID, nil
		}
	}

	if apiErr != nil {
		offending := extractOffendingFields(apiErr.message)
		if len(offending) > 0 {
			if a.metrics != nil {
				a.metrics.SheetWriteRetriesTotal.WithLabelValues(string(e), "invalid_value").Inc()
			}
			// byID is keyed by field id where one is mapped, so the
			// offending names are translated to their mapped ids too.
			dropIDs := append([]string(nil), offending...)
			for key, ref := range a.cfg.FieldMap[e] {
				name := ref.Name
				if name == "" {
					name = key
				}
				for _, o := range offending {
					if o == name && ref.ID != "" {
						dropIDs = append(dropIDs, ref.ID)
					}
				}
			}
			sanitizedName := dropKeys(byName, offending)
			sanitizedID := dropKeys(byID, dropIDs)
			logging.Warn("sheet write: dropping fields rejected by sheet API", "entity", e, "fields", strings.Join(offending, ","))
			recordID, _, err = a.write(ctx, table, method, id, sanitizedName)
			if err == nil {
				return recordID, nil
			}
			recordID, _, err = a.write(ctx, table, method, id, sanitizedID)
			if err == nil {
				return recordID, nil
			}
		}
	}

	return "", err
}

func dropKeys(m map[string]interface{}, keys []string) map[string]interface{} {
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if drop[k] {
			continue
		}
		out[k] = v
	}
	return out
}

type apiError struct {
	statusCode int
	errorType  string
	message    string
}

func (e *apiError) isUnknownFieldName() bool {
	return e.statusCode == http.StatusUnprocessableEntity &&
		(strings.Contains(e.errorType, "UNKNOWN_FIELD_NAME") || strings.Contains(e.message, "Unknown field name"))
}

type writeEnvelope struct {
	Fields map[string]interface{} `json:"fields"`
}

type writeResponse struct {
	ID    string                 `json:"id"`
	Error *writeErrorBody        `json:"error,omitempty"`
	Raw   map[string]interface{} `json:"-"`
}

type writeErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// write issues a single create/update HTTP call. It returns a
// structured apiError (in addition to the plain error) so the caller
// can branch on the sheet-specific recovery conditions without
// re-parsing the response body.
func (a *Adapter) write(ctx context.Context, table, method, id string, fields map[string]interface{}) (string, *apiError, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", nil, err
	}

	url := fmt.Sprintf("https://api.airtable.com/v0/%s/%s", a.cfg.SheetBaseID, table)
	if id != "" {
		url += "/" + id
	}

	body, err := json.Marshal(writeEnvelope{Fields: fields})
	if err != nil {
		return "", nil, fmt.Errorf("sheet: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("sheet: build %s request: %w", method, err)
	}
	a.authorize(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", nil, syncerr.New(syncerr.KindTransient, id, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var wr writeResponse
		if err := json.Unmarshal(raw, &wr); err != nil {
			return "", nil, fmt.Errorf("sheet: decode write response: %w", err)
		}
		return wr.ID, nil, nil
	}

	var wr writeResponse
	_ = json.Unmarshal(raw, &wr)
	ae := &apiError{statusCode: resp.StatusCode, message: string(raw)}
	if wr.Error != nil {
		ae.errorType = wr.Error.Type
		ae.message = wr.Error.Message
	}

	kind := syncerr.KindTransient
	if resp.StatusCode == http.StatusUnprocessableEntity {
		kind = syncerr.KindSheetInvalidValue
	}
	return "", ae, syncerr.New(kind, id, fmt.Errorf("sheet %s %s: HTTP %d: %s", method, table, resp.StatusCode, ae.message))
}

func (a *Adapter) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.cfg.SheetToken)
	req.Header.Set("Content-Type", "application/json")
}

func readAndCheck(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}
	return nil, syncerr.New(syncerr.KindTransient, "", fmt.Errorf("sheet: HTTP %d: %s", resp.StatusCode, string(raw)))
}
