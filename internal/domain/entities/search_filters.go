package entities

import (
	"fmt"
	"math"
	"strings"

	apperrors "github.com/harborleaf/storelocator/pkg/errors"
)

// SortOrder selects the ordering of discovery results
type SortOrder string

const (
	SortByDistance SortOrder = "distance"
	SortByRating   SortOrder = "rating"
	SortByName     SortOrder = "name"
	// SortByNewest orders by descending store id. Ids are assigned when the
	// catalog is authored, so this approximates recency and nothing more.
	SortByNewest SortOrder = "newest"
)

// DefaultRadiusKm is the search radius used when a query leaves it unset
const DefaultRadiusKm = 10.0

// SearchFilters describes one discovery query. Zero values mean "no constraint".
type SearchFilters struct {
	City       string    `json:"city,omitempty"`
	District   string    `json:"district,omitempty"`
	Status     string    `json:"status,omitempty"`
	RadiusKm   float64   `json:"radius"`
	SortBy     SortOrder `json:"sort_by"`
	SearchText string    `json:"search_text,omitempty"`
	Features   []string  `json:"features,omitempty"`
	Page       int       `json:"page,omitempty"`
	PageSize   int       `json:"page_size,omitempty"`
}

// DefaultSearchFilters returns the filters of a fresh query
func DefaultSearchFilters() SearchFilters {
	return SearchFilters{RadiusKm: DefaultRadiusKm, SortBy: SortByDistance, Page: 1}
}

// Normalize returns a copy with defaults applied and free text trimmed
func (f SearchFilters) Normalize() SearchFilters {
	out := f
	out.City = strings.TrimSpace(f.City)
	out.District = strings.TrimSpace(f.District)
	out.Status = strings.TrimSpace(f.Status)
	out.SearchText = strings.TrimSpace(f.SearchText)
	if out.RadiusKm == 0 {
		out.RadiusKm = DefaultRadiusKm
	}
	if out.SortBy == "" {
		out.SortBy = SortByDistance
	}
	if out.Page < 1 {
		out.Page = 1
	}
	if out.PageSize < 0 {
		out.PageSize = 0
	}
	if len(f.Features) > 0 {
		features := make([]string, 0, len(f.Features))
		seen := make(map[string]struct{}, len(f.Features))
		for _, feat := range f.Features {
			feat = strings.TrimSpace(feat)
			if feat == "" {
				continue
			}
			if _, dup := seen[feat]; dup {
				continue
			}
			seen[feat] = struct{}{}
			features = append(features, feat)
		}
		out.Features = features
	}
	return out
}

// Validate checks the filters after normalisation
func (f SearchFilters) Validate() error {
	if math.IsNaN(f.RadiusKm) || f.RadiusKm < 0 {
		return apperrors.NewValidationError("radius must be positive")
	}
	switch f.SortBy {
	case "", SortByDistance, SortByRating, SortByName, SortByNewest:
	default:
		return apperrors.NewValidationError(fmt.Sprintf("unknown sort order %q", f.SortBy))
	}
	if f.Status != "" && !StoreStatus(f.Status).Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown store status %q", f.Status))
	}
	return nil
}
