package geo

import (
	"math"

	"github.com/harborleaf/storelocator/internal/domain/entities"
)

const (
	// TileSize is the edge of a Web Mercator tile in pixels
	TileSize = 256

	// MaxMercatorLat is the latitude where Web Mercator is clipped
	MaxMercatorLat = 85.05112878
)

// WorldPixel projects c to Web Mercator world pixel coordinates at zoom
func WorldPixel(c entities.Coordinate, zoom int) (x, y float64) {
	scale := TileSize * math.Exp2(float64(zoom))
	lat := math.Max(-MaxMercatorLat, math.Min(MaxMercatorLat, c.Lat))
	sinLat := math.Sin(toRadians(lat))

	x = (c.Lng + 180) / 360 * scale
	y = (0.5 - math.Log((1+sinLat)/(1-sinLat))/(4*math.Pi)) * scale
	return x, y
}

// ScreenPixel projects c onto a width×height surface centred on center
func ScreenPixel(c, center entities.Coordinate, zoom, width, height int) (x, y float64) {
	px, py := WorldPixel(c, zoom)
	cx, cy := WorldPixel(center, zoom)
	return px - cx + float64(width)/2, py - cy + float64(height)/2
}

// FitZoom returns the largest zoom in [minZoom, maxZoom] at which b fits a
// width×height surface with padding pixels kept free on every side.
func FitZoom(b Bounds, width, height, padding, minZoom, maxZoom int) int {
	if b.Empty() || b.IsPoint() {
		return maxZoom
	}
	usableW := float64(width - 2*padding)
	usableH := float64(height - 2*padding)
	if usableW <= 0 || usableH <= 0 {
		return minZoom
	}

	for z := maxZoom; z > minZoom; z-- {
		x1, y1 := WorldPixel(b.SouthWest, z)
		x2, y2 := WorldPixel(b.NorthEast, z)
		if math.Abs(x2-x1) <= usableW && math.Abs(y2-y1) <= usableH {
			return z
		}
	}
	return minZoom
}
