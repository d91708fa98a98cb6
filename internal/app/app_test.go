package app

import (
	"testing"

	"github.com/sanketpandia/recondrive/internal/config"
	"github.com/sanketpandia/recondrive/internal/sync/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntities_Empty(t *testing.T) {
	got, err := ParseEntities(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseEntities_UnknownName(t *testing.T) {
	_, err := ParseEntities([]string{"cars", "spaceships"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spaceships")
}

// TestParseEntities_FixedOrderRegardlessOfArgvOrder covers the
// contract that ParseEntities returns entities in schema.Entities
// order, not the order the operator typed them in.
func TestParseEntities_FixedOrderRegardlessOfArgvOrder(t *testing.T) {
	got, err := ParseEntities([]string{"requests", "cars", "locations"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []schema.Entity{schema.Location, schema.Car, schema.Request}, got)
}

func TestParseEntities_AllAliasesRecognized(t *testing.T) {
	names := []string{"cars", "locations", "companies", "loads", "users", "bookings", "requests"}
	got, err := ParseEntities(names)
	require.NoError(t, err)
	assert.Equal(t, schema.Entities, got)
}

func TestAppEnv_MapsToProductionOrDevelopment(t *testing.T) {
	assert.Equal(t, "production", appEnv(&config.Config{Env: "production"}))
	assert.Equal(t, "production", appEnv(&config.Config{Env: "prod"}))
	assert.Equal(t, "development", appEnv(&config.Config{Env: "dev"}))
	assert.Equal(t, "development", appEnv(&config.Config{Env: "staging"}))
}

func TestBuildCache_DefaultsToMemory(t *testing.T) {
	c, err := buildCache(&config.Config{CacheBackend: ""})
	require.NoError(t, err)
	require.NotNil(t, c)
	defer c.Close()

	c.Set("k", "v", 0)
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}
