package entities

import "fmt"

// Coordinate is a WGS84 latitude/longitude pair in degrees
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate lies within the WGS84 ranges
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// StoreStatus is the operating status of a store
type StoreStatus string

const (
	StoreStatusActive      StoreStatus = "active"
	StoreStatusMaintenance StoreStatus = "maintenance"
	StoreStatusComingSoon  StoreStatus = "coming_soon"
)

// Valid reports whether s is one of the known statuses
func (s StoreStatus) Valid() bool {
	switch s {
	case StoreStatusActive, StoreStatusMaintenance, StoreStatusComingSoon:
		return true
	}
	return false
}

// Store represents a retail outlet carrying the brand's products
type Store struct {
	ID           int         `json:"id"`
	Name         string      `json:"name"`
	Address      string      `json:"address"`
	District     string      `json:"district"`
	City         string      `json:"city"`
	Coordinates  Coordinate  `json:"coordinates"`
	Phone        string      `json:"phone"`
	Hours        string      `json:"hours"`
	Features     []string    `json:"features"`
	Status       StoreStatus `json:"status"`
	Rating       float64     `json:"rating"`
	ProductCount int         `json:"product_count"`

	// Distance is the great-circle distance in km from the reference point of
	// the query that produced this copy. Canonical catalog records never
	// carry it.
	Distance *float64 `json:"distance,omitempty"`

	Description string   `json:"description,omitempty"`
	Services    []string `json:"services,omitempty"`
	Manager     string   `json:"manager,omitempty"`
	Email       string   `json:"email,omitempty"`
	Image       string   `json:"image,omitempty"`
}

// Clone returns a deep copy of the store
func (s Store) Clone() Store {
	out := s
	if s.Features != nil {
		out.Features = append([]string(nil), s.Features...)
	}
	if s.Services != nil {
		out.Services = append([]string(nil), s.Services...)
	}
	if s.Distance != nil {
		d := *s.Distance
		out.Distance = &d
	}
	return out
}

// WithDistance returns a copy of the store annotated with distanceKm
func (s Store) WithDistance(distanceKm float64) Store {
	out := s.Clone()
	out.Distance = &distanceKm
	return out
}

// WithoutDistance returns a copy of the store with no distance annotation
func (s Store) WithoutDistance() Store {
	out := s.Clone()
	out.Distance = nil
	return out
}

// DistanceKm returns the attached distance, or -1 when none is attached
func (s Store) DistanceKm() float64 {
	if s.Distance == nil {
		return -1
	}
	return *s.Distance
}

// HasFeature reports whether the store carries the feature tag
func (s Store) HasFeature(feature string) bool {
	for _, f := range s.Features {
		if f == feature {
			return true
		}
	}
	return false
}
