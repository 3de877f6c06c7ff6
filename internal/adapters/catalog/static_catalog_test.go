package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborleaf/storelocator/internal/domain/entities"
	apperrors "github.com/harborleaf/storelocator/pkg/errors"
)

func testStores() []entities.Store {
	return []entities.Store{
		{ID: 1, Name: "A", City: "Kaohsiung", District: "Yancheng", Status: entities.StoreStatusActive, Rating: 4.5,
			Coordinates: entities.Coordinate{Lat: 22.63, Lng: 120.30}, Features: []string{"parking"}},
		{ID: 2, Name: "B", City: "Kaohsiung", District: "Sanmin", Status: entities.StoreStatusMaintenance, Rating: 4.0,
			Coordinates: entities.Coordinate{Lat: 22.70, Lng: 120.35}, Features: []string{"pet-friendly", "parking"}},
		{ID: 3, Name: "C", City: "Tainan", District: "Anping", Status: entities.StoreStatusComingSoon,
			Coordinates: entities.Coordinate{Lat: 23.0, Lng: 120.16}},
	}
}

func TestLoadDefaultCatalog(t *testing.T) {
	c, err := LoadDefaultCatalog()
	require.NoError(t, err)
	assert.Greater(t, c.Len(), 0)

	all, err := c.All(context.Background())
	require.NoError(t, err)
	for _, s := range all {
		assert.Nil(t, s.Distance, "seed record %d must not carry a distance", s.ID)
		assert.True(t, s.Coordinates.Valid())
	}
}

func TestNewStaticCatalog_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]entities.Store) []entities.Store
	}{
		{"duplicate id", func(s []entities.Store) []entities.Store { s[1].ID = 1; return s }},
		{"latitude out of range", func(s []entities.Store) []entities.Store { s[0].Coordinates.Lat = 91; return s }},
		{"unknown status", func(s []entities.Store) []entities.Store { s[0].Status = "closed"; return s }},
		{"rating out of range", func(s []entities.Store) []entities.Store { s[0].Rating = 5.5; return s }},
		{"negative product count", func(s []entities.Store) []entities.Store { s[0].ProductCount = -1; return s }},
		{"missing name", func(s []entities.Store) []entities.Store { s[2].Name = ""; return s }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStaticCatalog(tt.mutate(testStores()))
			assert.Error(t, err)
		})
	}
}

func TestStaticCatalog_Lookups(t *testing.T) {
	ctx := context.Background()
	c, err := NewStaticCatalog(testStores())
	require.NoError(t, err)

	store, err := c.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "B", store.Name)

	_, err = c.GetByID(ctx, 99)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeNotFound))

	byCity, _ := c.ByCity(ctx, "Kaohsiung")
	assert.Len(t, byCity, 2)

	byDistrict, _ := c.ByDistrict(ctx, "Anping")
	require.Len(t, byDistrict, 1)
	assert.Equal(t, 3, byDistrict[0].ID)

	byStatus, _ := c.ByStatus(ctx, entities.StoreStatusMaintenance)
	require.Len(t, byStatus, 1)
	assert.Equal(t, 2, byStatus[0].ID)

	cities, _ := c.Cities(ctx)
	assert.Equal(t, []string{"Kaohsiung", "Tainan"}, cities)

	districts, _ := c.Districts(ctx, "Kaohsiung")
	assert.Equal(t, []string{"Yancheng", "Sanmin"}, districts)

	features, _ := c.Features(ctx)
	assert.Equal(t, []string{"parking", "pet-friendly"}, features)
}

func TestStaticCatalog_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c, err := NewStaticCatalog(testStores())
	require.NoError(t, err)

	all, _ := c.All(ctx)
	all[0].Name = "mutated"
	all[0].Features[0] = "mutated"
	d := 3.0
	all[0].Distance = &d

	again, _ := c.GetByID(ctx, 1)
	assert.Equal(t, "A", again.Name)
	assert.Equal(t, []string{"parking"}, again.Features)
	assert.Nil(t, again.Distance)
}
