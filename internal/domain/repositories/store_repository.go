package repositories

import (
	"context"

	"github.com/harborleaf/storelocator/internal/domain/entities"
)

// StoreRepository is the read-only store catalog. Implementations return
// copies; callers may annotate them freely without affecting the catalog.
type StoreRepository interface {
	// All returns every store in catalog order
	All(ctx context.Context) ([]entities.Store, error)

	// GetByID retrieves a store by ID
	GetByID(ctx context.Context, id int) (*entities.Store, error)

	// ByCity returns the stores whose city matches exactly
	ByCity(ctx context.Context, city string) ([]entities.Store, error)

	// ByDistrict returns the stores whose district matches exactly
	ByDistrict(ctx context.Context, district string) ([]entities.Store, error)

	// ByStatus returns the stores with the given status
	ByStatus(ctx context.Context, status entities.StoreStatus) ([]entities.Store, error)

	// Cities lists the distinct cities in first-seen order
	Cities(ctx context.Context) ([]string, error)

	// Districts lists the distinct districts of a city, or of the whole
	// catalog when city is empty
	Districts(ctx context.Context, city string) ([]string, error)

	// Features lists the distinct feature tags in first-seen order
	Features(ctx context.Context) ([]string, error)
}
