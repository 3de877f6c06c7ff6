package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/harborleaf/storelocator/internal/domain/entities"
	"github.com/harborleaf/storelocator/internal/domain/repositories"
	apperrors "github.com/harborleaf/storelocator/pkg/errors"
)

//go:embed stores.json
var defaultStoresJSON []byte

// StaticCatalog implements StoreRepository over a fixed, in-memory store
// list. It is immutable after construction and safe for concurrent use
// without locking.
type StaticCatalog struct {
	stores []entities.Store
	byID   map[int]int
}

// NewStaticCatalog validates stores and builds a catalog from them
func NewStaticCatalog(stores []entities.Store) (*StaticCatalog, error) {
	c := &StaticCatalog{
		stores: make([]entities.Store, 0, len(stores)),
		byID:   make(map[int]int, len(stores)),
	}

	for i, s := range stores {
		if err := validateStore(s); err != nil {
			return nil, fmt.Errorf("store #%d: %w", i, err)
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("store #%d: duplicate id %d", i, s.ID)
		}
		c.byID[s.ID] = len(c.stores)
		c.stores = append(c.stores, s.WithoutDistance())
	}

	return c, nil
}

// LoadDefaultCatalog builds the catalog from the embedded seed data
func LoadDefaultCatalog() (*StaticCatalog, error) {
	return LoadCatalogJSON(defaultStoresJSON)
}

// LoadCatalogJSON builds a catalog from a JSON array of stores
func LoadCatalogJSON(data []byte) (*StaticCatalog, error) {
	var stores []entities.Store
	if err := json.Unmarshal(data, &stores); err != nil {
		return nil, fmt.Errorf("failed to decode store catalog: %w", err)
	}
	return NewStaticCatalog(stores)
}

// LoadCatalogFile builds a catalog from a JSON file
func LoadCatalogFile(path string) (*StaticCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read store catalog: %w", err)
	}
	return LoadCatalogJSON(data)
}

var _ repositories.StoreRepository = (*StaticCatalog)(nil)

// Len returns the number of stores
func (c *StaticCatalog) Len() int {
	return len(c.stores)
}

// All returns every store in catalog order
func (c *StaticCatalog) All(ctx context.Context) ([]entities.Store, error) {
	return c.filter(func(entities.Store) bool { return true }), nil
}

// GetByID retrieves a store by ID
func (c *StaticCatalog) GetByID(ctx context.Context, id int) (*entities.Store, error) {
	idx, ok := c.byID[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("store %d not found", id))
	}
	store := c.stores[idx].Clone()
	return &store, nil
}

// ByCity returns the stores whose city matches exactly
func (c *StaticCatalog) ByCity(ctx context.Context, city string) ([]entities.Store, error) {
	return c.filter(func(s entities.Store) bool { return s.City == city }), nil
}

// ByDistrict returns the stores whose district matches exactly
func (c *StaticCatalog) ByDistrict(ctx context.Context, district string) ([]entities.Store, error) {
	return c.filter(func(s entities.Store) bool { return s.District == district }), nil
}

// ByStatus returns the stores with the given status
func (c *StaticCatalog) ByStatus(ctx context.Context, status entities.StoreStatus) ([]entities.Store, error) {
	return c.filter(func(s entities.Store) bool { return s.Status == status }), nil
}

// Cities lists the distinct cities in first-seen order
func (c *StaticCatalog) Cities(ctx context.Context) ([]string, error) {
	return c.distinct(func(s entities.Store) []string { return []string{s.City} }), nil
}

// Districts lists the distinct districts of city, or all districts
func (c *StaticCatalog) Districts(ctx context.Context, city string) ([]string, error) {
	return c.distinct(func(s entities.Store) []string {
		if city != "" && s.City != city {
			return nil
		}
		return []string{s.District}
	}), nil
}

// Features lists the distinct feature tags in first-seen order
func (c *StaticCatalog) Features(ctx context.Context) ([]string, error) {
	return c.distinct(func(s entities.Store) []string { return s.Features }), nil
}

func (c *StaticCatalog) filter(keep func(entities.Store) bool) []entities.Store {
	out := make([]entities.Store, 0, len(c.stores))
	for _, s := range c.stores {
		if keep(s) {
			out = append(out, s.Clone())
		}
	}
	return out
}

func (c *StaticCatalog) distinct(values func(entities.Store) []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, s := range c.stores {
		for _, v := range values(s) {
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func validateStore(s entities.Store) error {
	if s.Name == "" {
		return fmt.Errorf("id %d: name is required", s.ID)
	}
	if !s.Coordinates.Valid() {
		return fmt.Errorf("id %d: coordinates out of range: %s", s.ID, s.Coordinates)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("id %d: unknown status %q", s.ID, s.Status)
	}
	if s.Rating < 0 || s.Rating > 5 {
		return fmt.Errorf("id %d: rating %.2f outside [0,5]", s.ID, s.Rating)
	}
	if s.ProductCount < 0 {
		return fmt.Errorf("id %d: negative product count", s.ID)
	}
	return nil
}
