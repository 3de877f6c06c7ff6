package database

import (
	"context"
	"database/sql"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/lib/pq"

	"github.com/harborleaf/storelocator/internal/domain/entities"
	"github.com/harborleaf/storelocator/internal/infrastructure/clients/postgres"
	apperrors "github.com/harborleaf/storelocator/pkg/errors"
)

// storeRow mirrors one row of the store table
type storeRow struct {
	ID           int             `db:"id"`
	Name         string          `db:"name"`
	Address      string          `db:"address"`
	District     string          `db:"district"`
	City         string          `db:"city"`
	Lat          float64         `db:"lat"`
	Lng          float64         `db:"lng"`
	Phone        sql.NullString  `db:"phone"`
	Hours        sql.NullString  `db:"hours"`
	Features     pq.StringArray  `db:"features"`
	Status       string          `db:"status"`
	Rating       sql.NullFloat64 `db:"rating"`
	ProductCount sql.NullInt64   `db:"product_count"`
	Description  sql.NullString  `db:"description"`
	Services     pq.StringArray  `db:"services"`
	Manager      sql.NullString  `db:"manager"`
	Email        sql.NullString  `db:"email"`
	Image        sql.NullString  `db:"image"`
}

var storeColumns = []interface{}{
	"id", "name", "address", "district", "city", "lat", "lng", "phone", "hours",
	"features", "status", "rating", "product_count", "description", "services",
	"manager", "email", "image",
}

// StoreLoader reads the store catalog from PostgreSQL. It never writes.
type StoreLoader struct {
	client *postgres.Client
	db     goqu.DialectWrapper
	table  string
}

// NewStoreLoader creates a loader over the given table
func NewStoreLoader(client *postgres.Client, table string) *StoreLoader {
	if table == "" {
		table = "stores"
	}
	return &StoreLoader{
		client: client,
		db:     goqu.Dialect("postgres"),
		table:  table,
	}
}

// LoadStores returns every store ordered by id
func (l *StoreLoader) LoadStores(ctx context.Context) ([]entities.Store, error) {
	query, args, err := l.db.From(l.table).
		Select(storeColumns...).
		Order(goqu.C("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build store query", err)
	}

	var rows []storeRow
	if err := l.client.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.NewUnavailableError("failed to load stores", err)
	}

	stores := make([]entities.Store, 0, len(rows))
	for _, row := range rows {
		stores = append(stores, row.toEntity())
	}
	return stores, nil
}

func (r storeRow) toEntity() entities.Store {
	return entities.Store{
		ID:           r.ID,
		Name:         r.Name,
		Address:      r.Address,
		District:     r.District,
		City:         r.City,
		Coordinates:  entities.Coordinate{Lat: r.Lat, Lng: r.Lng},
		Phone:        r.Phone.String,
		Hours:        r.Hours.String,
		Features:     []string(r.Features),
		Status:       entities.StoreStatus(r.Status),
		Rating:       r.Rating.Float64,
		ProductCount: int(r.ProductCount.Int64),
		Description:  r.Description.String,
		Services:     []string(r.Services),
		Manager:      r.Manager.String,
		Email:        r.Email.String,
		Image:        r.Image.String,
	}
}
