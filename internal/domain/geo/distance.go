// Package geo holds the spherical geometry shared by discovery and map framing.
package geo

import (
	"math"

	"github.com/harborleaf/storelocator/internal/domain/entities"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula
const EarthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance between a and b in kilometers.
// Inputs are expected to be valid WGS84 coordinates.
func DistanceKm(a, b entities.Coordinate) float64 {
	if a == b {
		return 0
	}

	lat1Rad := toRadians(a.Lat)
	lat2Rad := toRadians(b.Lat)
	deltaLat := toRadians(b.Lat - a.Lat)
	deltaLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)

	// rounding can push h a hair outside [0,1] for near-antipodal points
	h = math.Min(1, math.Max(0, h))

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// Destination returns the point reached by travelling distanceKm from origin
// along the initial bearing (degrees clockwise from north).
func Destination(origin entities.Coordinate, bearingDeg, distanceKm float64) entities.Coordinate {
	lat1 := toRadians(origin.Lat)
	lng1 := toRadians(origin.Lng)
	brng := toRadians(bearingDeg)
	angular := distanceKm / EarthRadiusKm

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(angular) +
		math.Cos(lat1)*math.Sin(angular)*math.Cos(brng))
	lng2 := lng1 + math.Atan2(math.Sin(brng)*math.Sin(angular)*math.Cos(lat1),
		math.Cos(angular)-math.Sin(lat1)*math.Sin(lat2))

	lng := math.Mod(toDegrees(lng2)+540, 360) - 180
	return entities.Coordinate{Lat: toDegrees(lat2), Lng: lng}
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

func toDegrees(radians float64) float64 {
	return radians * 180 / math.Pi
}
