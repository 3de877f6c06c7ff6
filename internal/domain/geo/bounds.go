package geo

import "github.com/harborleaf/storelocator/internal/domain/entities"

// Bounds is a latitude/longitude rectangle. The zero value is empty.
type Bounds struct {
	SouthWest entities.Coordinate `json:"south_west"`
	NorthEast entities.Coordinate `json:"north_east"`
	nonEmpty  bool
}

// BoundsOf returns the smallest bounds containing every point
func BoundsOf(points ...entities.Coordinate) Bounds {
	var b Bounds
	for _, p := range points {
		b = b.Extend(p)
	}
	return b
}

// Extend returns b grown to include p
func (b Bounds) Extend(p entities.Coordinate) Bounds {
	if !b.nonEmpty {
		return Bounds{SouthWest: p, NorthEast: p, nonEmpty: true}
	}
	if p.Lat < b.SouthWest.Lat {
		b.SouthWest.Lat = p.Lat
	}
	if p.Lng < b.SouthWest.Lng {
		b.SouthWest.Lng = p.Lng
	}
	if p.Lat > b.NorthEast.Lat {
		b.NorthEast.Lat = p.Lat
	}
	if p.Lng > b.NorthEast.Lng {
		b.NorthEast.Lng = p.Lng
	}
	return b
}

// Empty reports whether no point has been added
func (b Bounds) Empty() bool {
	return !b.nonEmpty
}

// Center returns the midpoint of the rectangle
func (b Bounds) Center() entities.Coordinate {
	return entities.Coordinate{
		Lat: (b.SouthWest.Lat + b.NorthEast.Lat) / 2,
		Lng: (b.SouthWest.Lng + b.NorthEast.Lng) / 2,
	}
}

// Contains reports whether p lies inside the rectangle, edges included
func (b Bounds) Contains(p entities.Coordinate) bool {
	if !b.nonEmpty {
		return false
	}
	return p.Lat >= b.SouthWest.Lat && p.Lat <= b.NorthEast.Lat &&
		p.Lng >= b.SouthWest.Lng && p.Lng <= b.NorthEast.Lng
}

// IsPoint reports whether the rectangle collapses to a single coordinate
func (b Bounds) IsPoint() bool {
	return b.nonEmpty && b.SouthWest == b.NorthEast
}
