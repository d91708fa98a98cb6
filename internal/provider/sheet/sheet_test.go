package sheet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanketpandia/recondrive/internal/cache"
	"github.com/sanketpandia/recondrive/internal/config"
	"github.com/sanketpandia/recondrive/internal/metrics"
	"github.com/sanketpandia/recondrive/internal/sync/schema"
)

// rewriteTransport redirects every request to the given test server
// regardless of the scheme/host the Adapter hardcodes, since the
// Adapter always builds URLs against api.airtable.com.
type rewriteTransport struct {
	target *url.URL
}

func (rt *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

var metricsOnce sync.Once
var sharedMetrics *metrics.Registry

func testMetrics() *metrics.Registry {
	metricsOnce.Do(func() { sharedMetrics = metrics.NewRegistry() })
	return sharedMetrics
}

func newTestAdapter(t *testing.T, server *httptest.Server) *Adapter {
	t.Helper()
	cfg := &config.Config{
		SheetToken:           "test-token",
		SheetBaseID:          "appTest",
		SheetRateLimitPerSec: 1000,
		TableByEntity: map[schema.Entity]config.TableRef{
			schema.Car: {Name: "Cars"},
		},
		FieldMap: map[schema.Entity]map[string]config.FieldRef{},
	}
	a := New(cfg, cache.NewCacheService(60, 60), testMetrics())
	target, err := url.Parse(server.URL)
	require.NoError(t, err)
	a.client.Transport = &rewriteTransport{target: target}
	return a
}

func TestFetchAll_Paginates(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)

		w.Header().Set("Content-Type", "application/json")
		if _, hasOffset := body["offset"]; !hasOffset {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"records": []map[string]interface{}{
					{"id": "rec1", "fields": map[string]interface{}{"make": "Ford"}},
				},
				"offset": "page2",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"records": []map[string]interface{}{
				{"id": "rec2", "fields": map[string]interface{}{"make": "Chevy"}},
			},
		})
	}))
	defer server.Close()

	a := newTestAdapter(t, server)
	recs, err := a.FetchAll(context.Background(), schema.Car)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "rec1", recs[0].ID)
	assert.Equal(t, "Ford", recs[0].Fields["make"])
}

func TestFetchAll_ParsesTimestampsAndSupabaseID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"records": []map[string]interface{}{
				{
					"id": "recA",
					"fields": map[string]interface{}{
						"make":                  "Ford",
						"supabase_id":           "rel-uuid-1",
						"last_changed_for_sync": "2024-06-01T10:00:00Z",
						"last_synced":           "2024-06-01T09:00:00Z",
					},
				},
			},
		})
	}))
	defer server.Close()

	a := newTestAdapter(t, server)
	recs, err := a.FetchAll(context.Background(), schema.Car)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "rel-uuid-1", recs[0].SupabaseID)
	require.NotNil(t, recs[0].LastChangedForSync)
	require.NotNil(t, recs[0].LastSynced)
	assert.True(t, recs[0].LastChangedForSync.After(*recs[0].LastSynced))
}

func TestCreate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "recNew"})
	}))
	defer server.Close()

	a := newTestAdapter(t, server)
	id, err := a.Create(context.Background(), schema.Car, map[string]interface{}{"make": "Ford"})
	require.NoError(t, err)
	assert.Equal(t, "recNew", id)
}

// TestCreate_UnknownFieldNameRetriesByID covers the 422
// UNKNOWN_FIELD_NAME recovery path: the first attempt (by field name)
// fails, and a second attempt (by field id) succeeds.
func TestCreate_UnknownFieldNameRetriesByID(t *testing.T) {
	attempt := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt++
		if attempt == 1 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{
					"type":    "UNKNOWN_FIELD_NAME",
					"message": `Unknown field name: "Make"`,
				},
			})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "recRetried"})
	}))
	defer server.Close()

	cfg := &config.Config{
		SheetToken:           "test-token",
		SheetBaseID:          "appTest",
		SheetRateLimitPerSec: 1000,
		TableByEntity: map[schema.Entity]config.TableRef{
			schema.Car: {Name: "Cars"},
		},
		FieldMap: map[schema.Entity]map[string]config.FieldRef{
			schema.Car: {"make": {ID: "fldMake123", Name: "Make"}},
		},
	}
	a := New(cfg, cache.NewCacheService(60, 60), testMetrics())
	target, err := url.Parse(server.URL)
	require.NoError(t, err)
	a.client.Transport = &rewriteTransport{target: target}

	id, err := a.Create(context.Background(), schema.Car, map[string]interface{}{"make": "Ford"})
	require.NoError(t, err)
	assert.Equal(t, "recRetried", id)
	assert.Equal(t, 2, attempt)
}

// TestCreate_InvalidValueRetriesSanitized covers the invalid-value
// recovery path: the offending field is dropped and the write retried.
func TestCreate_InvalidValueRetriesSanitized(t *testing.T) {
	attempt := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt++
		if attempt == 1 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{
					"type":    "INVALID_VALUE_FOR_COLUMN",
					"message": `Field "Distance" cannot accept the provided value`,
				},
			})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "recSanitized"})
	}))
	defer server.Close()

	a := newTestAdapter(t, server)
	id, err := a.Create(context.Background(), schema.Car, map[string]interface{}{
		"make":     "Ford",
		"Distance": "not-a-number",
	})
	require.NoError(t, err)
	assert.Equal(t, "recSanitized", id)
	assert.Equal(t, 2, attempt)
}

func TestUpdate_PatchesByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Contains(t, r.URL.Path, "recABC")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "recABC"})
	}))
	defer server.Close()

	a := newTestAdapter(t, server)
	err := a.Update(context.Background(), schema.Car, "recABC", map[string]interface{}{"make": "Chevy"})
	require.NoError(t, err)
}

func TestExtractOffendingFields(t *testing.T) {
	msg := `Field "Distance" cannot accept the provided value. Invalid value for field "Rate"`
	got := extractOffendingFields(msg)
	assert.Contains(t, got, "Distance")
	assert.Contains(t, got, "Rate")
}

func TestIsUnknownFieldName(t *testing.T) {
	e := &apiError{statusCode: 422, errorType: "UNKNOWN_FIELD_NAME"}
	assert.True(t, e.isUnknownFieldName())

	e2 := &apiError{statusCode: 422, message: "Unknown field name: \"X\""}
	assert.True(t, e2.isUnknownFieldName())

	e3 := &apiError{statusCode: 500, errorType: "UNKNOWN_FIELD_NAME"}
	assert.False(t, e3.isUnknownFieldName())
}
