package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheService_SetGetDelete(t *testing.T) {
	cs := NewCacheService(60, 120)
	defer cs.Close()

	_, found := cs.Get("missing")
	assert.False(t, found)

	cs.Set("k", "v", time.Minute)
	v, found := cs.Get("k")
	require.True(t, found)
	assert.Equal(t, "v", v)

	cs.Delete("k")
	_, found = cs.Get("k")
	assert.False(t, found)
}

func TestCacheService_GetOrSet_LoadsOnMiss(t *testing.T) {
	cs := NewCacheService(60, 120)
	defer cs.Close()

	calls := 0
	loader := func() (any, error) {
		calls++
		return "loaded", nil
	}

	v, err := cs.GetOrSet("k", time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, "loaded", v)

	v, err = cs.GetOrSet("k", time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, "loaded", v)
	assert.Equal(t, 1, calls, "loader should not be invoked again once cached")
}

func TestCacheService_GetOrSet_PropagatesLoaderError(t *testing.T) {
	cs := NewCacheService(60, 120)
	defer cs.Close()

	wantErr := errors.New("boom")
	_, err := cs.GetOrSet("k", time.Minute, func() (any, error) { return nil, wantErr })
	assert.ErrorIs(t, err, wantErr)

	_, found := cs.Get("k")
	assert.False(t, found, "a failed load should not populate the cache")
}
