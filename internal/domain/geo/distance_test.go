package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborleaf/storelocator/internal/domain/entities"
)

var samplePoints = []entities.Coordinate{
	{Lat: 22.63, Lng: 120.30},
	{Lat: 22.70, Lng: 120.35},
	{Lat: 25.0330, Lng: 121.5654},
	{Lat: -33.8688, Lng: 151.2093},
	{Lat: 51.5074, Lng: -0.1278},
	{Lat: 0, Lng: 0},
	{Lat: 90, Lng: 0},
	{Lat: -90, Lng: 180},
}

func TestDistanceKm_ZeroForSamePoint(t *testing.T) {
	for _, p := range samplePoints {
		assert.Equal(t, 0.0, DistanceKm(p, p), "point %v", p)
	}
}

func TestDistanceKm_Symmetric(t *testing.T) {
	for _, a := range samplePoints {
		for _, b := range samplePoints {
			assert.InDelta(t, DistanceKm(a, b), DistanceKm(b, a), 1e-9, "%v <-> %v", a, b)
		}
	}
}

func TestDistanceKm_NonNegative(t *testing.T) {
	for _, a := range samplePoints {
		for _, b := range samplePoints {
			assert.GreaterOrEqual(t, DistanceKm(a, b), 0.0)
		}
	}
}

func TestDistanceKm_KnownPairs(t *testing.T) {
	tests := []struct {
		name     string
		a, b     entities.Coordinate
		expected float64
		delta    float64
	}{
		{
			name:     "kaohsiung stores",
			a:        entities.Coordinate{Lat: 22.63, Lng: 120.30},
			b:        entities.Coordinate{Lat: 22.70, Lng: 120.35},
			expected: 9.3,
			delta:    0.3,
		},
		{
			name:     "one degree of latitude",
			a:        entities.Coordinate{Lat: 0, Lng: 0},
			b:        entities.Coordinate{Lat: 1, Lng: 0},
			expected: 111.19,
			delta:    0.05,
		},
		{
			name:     "london to sydney",
			a:        entities.Coordinate{Lat: 51.5074, Lng: -0.1278},
			b:        entities.Coordinate{Lat: -33.8688, Lng: 151.2093},
			expected: 16994,
			delta:    30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, DistanceKm(tt.a, tt.b), tt.delta)
		})
	}
}

func TestDistanceKm_MonotonicAlongBearing(t *testing.T) {
	origin := entities.Coordinate{Lat: 22.63, Lng: 120.30}
	for _, bearing := range []float64{0, 45, 90, 135, 180, 270} {
		prev := 0.0
		for step := 1; step <= 40; step++ {
			target := Destination(origin, bearing, float64(step)*250)
			d := DistanceKm(origin, target)
			require.Greater(t, d, prev, "bearing %v step %d", bearing, step)
			prev = d
		}
	}
}

func TestDestination_RoundTripsDistance(t *testing.T) {
	origin := entities.Coordinate{Lat: 22.63, Lng: 120.30}
	target := Destination(origin, 60, 12.5)
	assert.InDelta(t, 12.5, DistanceKm(origin, target), 1e-6)
	assert.True(t, target.Valid())
}

func TestBounds(t *testing.T) {
	var empty Bounds
	assert.True(t, empty.Empty())
	assert.False(t, empty.Contains(entities.Coordinate{}))

	b := BoundsOf(
		entities.Coordinate{Lat: 22.6, Lng: 120.2},
		entities.Coordinate{Lat: 22.8, Lng: 120.4},
		entities.Coordinate{Lat: 22.7, Lng: 120.3},
	)
	assert.False(t, b.Empty())
	assert.Equal(t, entities.Coordinate{Lat: 22.6, Lng: 120.2}, b.SouthWest)
	assert.Equal(t, entities.Coordinate{Lat: 22.8, Lng: 120.4}, b.NorthEast)
	assert.InDelta(t, 22.7, b.Center().Lat, 1e-9)
	assert.InDelta(t, 120.3, b.Center().Lng, 1e-9)
	assert.True(t, b.Contains(entities.Coordinate{Lat: 22.65, Lng: 120.35}))
	assert.False(t, b.IsPoint())
	assert.True(t, BoundsOf(entities.Coordinate{Lat: 1, Lng: 2}).IsPoint())
}
