package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthz_Healthy(t *testing.T) {
	upSince := time.Now().Add(-time.Minute)
	status := func() Status {
		return Status{LastRunAt: time.Now(), LastRunOK: true}
	}
	srv := httptest.NewServer(NewRouter(upSince, status))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.True(t, got.LastRunOK)
	assert.NotEmpty(t, got.Uptime)
}

func TestHealthz_DegradedReturns503(t *testing.T) {
	status := func() Status {
		return Status{LastRunAt: time.Now(), LastRunOK: false}
	}
	srv := httptest.NewServer(NewRouter(time.Now(), status))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthz_NoRunYetIsNotDegraded(t *testing.T) {
	status := func() Status { return Status{Status: "starting", LastRunOK: true} }
	srv := httptest.NewServer(NewRouter(time.Now(), status))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint_Served(t *testing.T) {
	srv := httptest.NewServer(NewRouter(time.Now(), func() Status { return Status{} }))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
