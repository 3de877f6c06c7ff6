package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborleaf/storelocator/internal/domain/entities"
	"github.com/harborleaf/storelocator/internal/infrastructure/clients/postgres"
	apperrors "github.com/harborleaf/storelocator/pkg/errors"
)

func setupMockDB(t *testing.T) (*postgres.Client, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return postgres.NewClientFromDB(sqlx.NewDb(mockDB, "postgres")), mock
}

var storeRowColumns = []string{
	"id", "name", "address", "district", "city", "lat", "lng", "phone", "hours",
	"features", "status", "rating", "product_count", "description", "services",
	"manager", "email", "image",
}

func TestStoreLoader_LoadStores(t *testing.T) {
	client, mock := setupMockDB(t)

	rows := sqlmock.NewRows(storeRowColumns).
		AddRow(1, "Harbor Leaf Yancheng", "1 Dayong Rd", "Yancheng", "Kaohsiung", 22.63, 120.30,
			"07-521-8801", "10:00-21:00", "{parking,wifi}", "active", 4.5, 120,
			"Flagship", "{pickup}", "Mei-Ling", "yc@harborleaf.example", nil).
		AddRow(2, "Harbor Leaf Anping", "3 Guosheng Rd", "Anping", "Tainan", 23.00, 120.16,
			nil, nil, nil, "coming_soon", nil, nil,
			nil, nil, nil, nil, nil)
	mock.ExpectQuery(`SELECT "id", "name", (.+) FROM "stores" ORDER BY "id" ASC`).WillReturnRows(rows)

	stores, err := NewStoreLoader(client, "").LoadStores(context.Background())
	require.NoError(t, err)
	require.Len(t, stores, 2)

	first := stores[0]
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, entities.Coordinate{Lat: 22.63, Lng: 120.30}, first.Coordinates)
	assert.Equal(t, []string{"parking", "wifi"}, first.Features)
	assert.Equal(t, []string{"pickup"}, first.Services)
	assert.Equal(t, entities.StoreStatusActive, first.Status)
	assert.Equal(t, 120, first.ProductCount)
	assert.Empty(t, first.Image)
	assert.Nil(t, first.Distance)

	second := stores[1]
	assert.Equal(t, entities.StoreStatusComingSoon, second.Status)
	assert.Empty(t, second.Features)
	assert.Zero(t, second.Rating)
	assert.Empty(t, second.Phone)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreLoader_CustomTable(t *testing.T) {
	client, mock := setupMockDB(t)

	mock.ExpectQuery(`FROM "retail_stores"`).WillReturnRows(sqlmock.NewRows(storeRowColumns))

	stores, err := NewStoreLoader(client, "retail_stores").LoadStores(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stores)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreLoader_QueryError(t *testing.T) {
	client, mock := setupMockDB(t)

	mock.ExpectQuery(`FROM "stores"`).WillReturnError(errors.New("connection reset"))

	_, err := NewStoreLoader(client, "").LoadStores(context.Background())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrorTypeUnavailable, appErr.Type)
}
