package services

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/harborleaf/storelocator/internal/domain/entities"
	"github.com/harborleaf/storelocator/internal/domain/geo"
	"github.com/harborleaf/storelocator/internal/domain/repositories"
	"github.com/harborleaf/storelocator/internal/infrastructure/observability"
)

// Discover runs the discovery pipeline over catalog. Stages run in a fixed
// order: text, attributes, features, distance annotation, radius cutoff,
// sort. The result holds annotated copies; catalog is never modified. An
// empty result is returned as an empty, non-nil slice.
func Discover(catalog []entities.Store, filters entities.SearchFilters, reference entities.Coordinate) []entities.Store {
	f := filters.Normalize()

	stores := filterStores(catalog, textMatcher(f.SearchText))
	stores = filterStores(stores, attributeMatcher(f))
	stores = filterStores(stores, featureMatcher(f.Features))

	annotated := make([]entities.Store, 0, len(stores))
	for _, s := range stores {
		annotated = append(annotated, s.WithDistance(geo.DistanceKm(reference, s.Coordinates)))
	}

	inRadius := make([]entities.Store, 0, len(annotated))
	for _, s := range annotated {
		if *s.Distance <= f.RadiusKm {
			inRadius = append(inRadius, s)
		}
	}

	sortStores(inRadius, f.SortBy)
	return inRadius
}

type storeMatcher func(entities.Store) bool

func filterStores(stores []entities.Store, keep storeMatcher) []entities.Store {
	if keep == nil {
		return stores
	}
	out := make([]entities.Store, 0, len(stores))
	for _, s := range stores {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func textMatcher(text string) storeMatcher {
	if text == "" {
		return nil
	}
	needle := strings.ToLower(text)
	contains := func(field string) bool {
		return strings.Contains(strings.ToLower(field), needle)
	}
	return func(s entities.Store) bool {
		if contains(s.Name) || contains(s.Address) || contains(s.District) ||
			contains(s.City) || contains(s.Description) {
			return true
		}
		for _, feat := range s.Features {
			if contains(feat) {
				return true
			}
		}
		return false
	}
}

func attributeMatcher(f entities.SearchFilters) storeMatcher {
	if f.City == "" && f.District == "" && f.Status == "" {
		return nil
	}
	return func(s entities.Store) bool {
		if f.City != "" && s.City != f.City {
			return false
		}
		if f.District != "" && s.District != f.District {
			return false
		}
		if f.Status != "" && string(s.Status) != f.Status {
			return false
		}
		return true
	}
}

// featureMatcher keeps stores carrying at least one requested feature
func featureMatcher(features []string) storeMatcher {
	if len(features) == 0 {
		return nil
	}
	wanted := make(map[string]struct{}, len(features))
	for _, feat := range features {
		wanted[feat] = struct{}{}
	}
	return func(s entities.Store) bool {
		for _, feat := range s.Features {
			if _, ok := wanted[feat]; ok {
				return true
			}
		}
		return false
	}
}

// sortStores orders stores in place. The sort is stable, so ties keep
// catalog order.
func sortStores(stores []entities.Store, by entities.SortOrder) {
	switch by {
	case entities.SortByRating:
		slices.SortStableFunc(stores, func(a, b entities.Store) int {
			return cmp.Compare(b.Rating, a.Rating)
		})
	case entities.SortByName:
		collator := collate.New(language.Und)
		slices.SortStableFunc(stores, func(a, b entities.Store) int {
			return collator.CompareString(a.Name, b.Name)
		})
	case entities.SortByNewest:
		slices.SortStableFunc(stores, func(a, b entities.Store) int {
			return cmp.Compare(b.ID, a.ID)
		})
	default:
		slices.SortStableFunc(stores, func(a, b entities.Store) int {
			return cmp.Compare(*a.Distance, *b.Distance)
		})
	}
}

// Page is one page of discovery results
type Page struct {
	Items      []entities.Store `json:"items"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	Total      int              `json:"total"`
	TotalPages int              `json:"total_pages"`
}

// Paginate slices stores into a page. pageSize 0 returns everything as a
// single page; pages past the end are empty.
func Paginate(stores []entities.Store, page, pageSize int) Page {
	total := len(stores)
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		items := stores
		if items == nil {
			items = []entities.Store{}
		}
		totalPages := 1
		if total == 0 {
			totalPages = 0
		}
		return Page{Items: items, Page: 1, PageSize: 0, Total: total, TotalPages: totalPages}
	}

	// no products or sums that huge page numbers or sizes could overflow
	totalPages := total / pageSize
	if total%pageSize != 0 {
		totalPages++
	}
	start := total
	if page-1 <= total/pageSize {
		start = min((page-1)*pageSize, total)
	}
	end := start + min(pageSize, total-start)

	return Page{
		Items:      stores[start:end:end],
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}
}

// DiscoveryResult is the outcome of a discovery query
type DiscoveryResult struct {
	Page
	Filters   entities.SearchFilters `json:"filters"`
	Reference entities.Coordinate    `json:"reference"`
	Empty     bool                   `json:"empty"`
	Hint      string                 `json:"hint,omitempty"`
}

// HintNoResults tells the shell to show its empty-state message
const HintNoResults = "no_results"

// DiscoveryService runs the pipeline against the injected catalog
type DiscoveryService struct {
	repo            repositories.StoreRepository
	defaultRadiusKm float64
	defaultPageSize int
	metrics         *observability.Metrics
}

// NewDiscoveryService creates a new discovery service
func NewDiscoveryService(repo repositories.StoreRepository, defaultRadiusKm float64, defaultPageSize int) *DiscoveryService {
	if defaultRadiusKm <= 0 {
		defaultRadiusKm = entities.DefaultRadiusKm
	}
	return &DiscoveryService{
		repo:            repo,
		defaultRadiusKm: defaultRadiusKm,
		defaultPageSize: defaultPageSize,
	}
}

// WithMetrics records pipeline runs on metrics
func (s *DiscoveryService) WithMetrics(metrics *observability.Metrics) *DiscoveryService {
	s.metrics = metrics
	return s
}

// Prepare applies service defaults to filters and validates them
func (s *DiscoveryService) Prepare(filters entities.SearchFilters) (entities.SearchFilters, error) {
	if filters.RadiusKm == 0 {
		filters.RadiusKm = s.defaultRadiusKm
	}
	if filters.PageSize == 0 {
		filters.PageSize = s.defaultPageSize
	}
	if err := filters.Validate(); err != nil {
		return filters, err
	}
	return filters.Normalize(), nil
}

// Discover runs one query. Only invalid filters or a failing catalog
// produce errors; no matches is a normal, empty result.
func (s *DiscoveryService) Discover(ctx context.Context, filters entities.SearchFilters, reference entities.Coordinate) (*DiscoveryResult, error) {
	ctx, span := observability.StartSpan(ctx, "discovery.run")
	defer span.End()

	f, err := s.Prepare(filters)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	catalog, err := s.repo.All(ctx)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	start := time.Now()
	stores := Discover(catalog, f, reference)
	page := Paginate(stores, f.Page, f.PageSize)

	observability.RecordDiscoveryRun(ctx, s.metrics, string(f.SortBy), len(stores))
	observability.SetSpanAttributes(span,
		attribute.String("discovery.sort_by", string(f.SortBy)),
		attribute.Float64("discovery.radius_km", f.RadiusKm),
		attribute.Int("discovery.catalog_size", len(catalog)),
		attribute.Int("discovery.matches", len(stores)),
	)
	observability.LoggerFromContext(ctx).Debug().
		Int("matches", len(stores)).
		Int("catalog", len(catalog)).
		Str("sort_by", string(f.SortBy)).
		Float64("radius_km", f.RadiusKm).
		Dur("took", time.Since(start)).
		Msg("discovery run")

	result := &DiscoveryResult{
		Page:      page,
		Filters:   f,
		Reference: reference,
		Empty:     len(stores) == 0,
	}
	if result.Empty {
		result.Hint = HintNoResults
	}
	return result, nil
}

// Store returns one store, annotated with its distance from reference when
// reference is given.
func (s *DiscoveryService) Store(ctx context.Context, id int, reference *entities.Coordinate) (*entities.Store, error) {
	store, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if reference != nil {
		annotated := store.WithDistance(geo.DistanceKm(*reference, store.Coordinates))
		return &annotated, nil
	}
	return store, nil
}

// Options lists the values the shell offers in its filter controls
func (s *DiscoveryService) Options(ctx context.Context, city string) (*FilterOptions, error) {
	cities, err := s.repo.Cities(ctx)
	if err != nil {
		return nil, err
	}
	districts, err := s.repo.Districts(ctx, city)
	if err != nil {
		return nil, err
	}
	features, err := s.repo.Features(ctx)
	if err != nil {
		return nil, err
	}
	return &FilterOptions{
		Cities:    cities,
		Districts: districts,
		Features:  features,
		Statuses: []entities.StoreStatus{
			entities.StoreStatusActive,
			entities.StoreStatusMaintenance,
			entities.StoreStatusComingSoon,
		},
		SortOrders: []entities.SortOrder{
			entities.SortByDistance,
			entities.SortByRating,
			entities.SortByName,
			entities.SortByNewest,
		},
	}, nil
}

// FilterOptions are the choices for each filter control
type FilterOptions struct {
	Cities     []string               `json:"cities"`
	Districts  []string               `json:"districts"`
	Features   []string               `json:"features"`
	Statuses   []entities.StoreStatus `json:"statuses"`
	SortOrders []entities.SortOrder   `json:"sort_orders"`
}
