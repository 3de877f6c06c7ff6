package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "browser", cfg.Geolocation.Provider)
	assert.Equal(t, 10*time.Second, cfg.Geolocation.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Geolocation.MaxAge)
	assert.InDelta(t, 22.6273, cfg.Geolocation.DefaultLat, 1e-9)
	assert.Equal(t, "mock", cfg.Maps.Backend)
	assert.Equal(t, 10.0, cfg.Discovery.DefaultRadiusKm)
	assert.Equal(t, 300*time.Millisecond, cfg.Discovery.Debounce)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GEOLOCATION_PROVIDER", "mock")
	t.Setenv("GEOLOCATION_TIMEOUT", "2500")
	t.Setenv("GEOLOCATION_MAX_AGE", "1m")
	t.Setenv("MAPS_BACKEND", "google")
	t.Setenv("MAPS_API_KEY", "test-key")
	t.Setenv("DISCOVERY_DEFAULT_RADIUS_KM", "25.5")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mock", cfg.Geolocation.Provider)
	assert.Equal(t, 2500*time.Millisecond, cfg.Geolocation.Timeout)
	assert.Equal(t, time.Minute, cfg.Geolocation.MaxAge)
	assert.Equal(t, "google", cfg.Maps.Backend)
	assert.Equal(t, "test-key", cfg.Maps.APIKey)
	assert.Equal(t, 25.5, cfg.Discovery.DefaultRadiusKm)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("MAPS_BACKEND", "mapquest")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsOutOfRangeDefaultCoordinate(t *testing.T) {
	t.Setenv("GEOLOCATION_DEFAULT_LAT", "91")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_CatalogDatabase(t *testing.T) {
	t.Setenv("CATALOG_DB_ENABLED", "true")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_NAME", "retail")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "stores", cfg.Database.Table)
	assert.Equal(t, "host=db.internal port=5432 user=postgres password= dbname=retail sslmode=disable", cfg.Database.DatabaseDSN())

	t.Setenv("CATALOG_PATH", "/tmp/stores.json")
	_, err = Load()
	assert.Error(t, err)
}
