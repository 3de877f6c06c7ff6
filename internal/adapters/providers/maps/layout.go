package maps

import (
	"fmt"
	"sync"

	"github.com/harborleaf/storelocator/internal/domain/entities"
	"github.com/harborleaf/storelocator/internal/domain/geo"
	"github.com/harborleaf/storelocator/internal/domain/providers"
)

const (
	SelectedZoom     = 16
	SingleMarkerZoom = 15
	DefaultZoom      = 12
	MinZoom          = 2
	FitPadding       = 40

	DefaultWidth  = 640
	DefaultHeight = 400

	StoreMarkerSize    = 12
	SelectedMarkerSize = 18
	UserMarkerSize     = 14

	UserMarkerID    = "user"
	UserMarkerLabel = "U"
)

// Marker colours
const (
	ColorActive      = "#2e7d32"
	ColorMaintenance = "#f9a825"
	ColorComingSoon  = "#1565c0"
	ColorSelected    = "#d32f2f"
	ColorUser        = "#7b1fa2"
)

// StoreMarkerID returns the marker id used for a store
func StoreMarkerID(storeID int) string {
	return fmt.Sprintf("store-%d", storeID)
}

// StatusColor returns the marker colour for a store status
func StatusColor(status entities.StoreStatus) string {
	switch status {
	case entities.StoreStatusMaintenance:
		return ColorMaintenance
	case entities.StoreStatusComingSoon:
		return ColorComingSoon
	default:
		return ColorActive
	}
}

// Layout is the backend independent part of a render pass
type Layout struct {
	Viewport providers.Viewport
	Markers  []providers.Marker
	Stores   map[string]entities.Store
}

// BuildLayout frames the camera and places markers for req. A selected
// store is centred at SelectedZoom; otherwise the camera fits every marker.
func BuildLayout(req providers.RenderRequest, defaultCenter entities.Coordinate) Layout {
	width, height := req.Width, req.Height
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	bounds := geo.Bounds{}
	for _, s := range req.Stores {
		bounds = bounds.Extend(s.Coordinates)
	}
	if req.UserLocation != nil {
		bounds = bounds.Extend(*req.UserLocation)
	}

	viewport := providers.Viewport{Width: width, Height: height}
	switch {
	case req.Selected != nil:
		viewport.Center = req.Selected.Coordinates
		viewport.Zoom = SelectedZoom
	case bounds.Empty():
		viewport.Center = defaultCenter
		viewport.Zoom = DefaultZoom
	case bounds.IsPoint():
		viewport.Center = bounds.Center()
		viewport.Zoom = SingleMarkerZoom
	default:
		viewport.Center = bounds.Center()
		viewport.Zoom = geo.FitZoom(bounds, width, height, FitPadding, MinZoom, SingleMarkerZoom)
	}

	layout := Layout{
		Viewport: viewport,
		Markers:  make([]providers.Marker, 0, len(req.Stores)+1),
		Stores:   make(map[string]entities.Store, len(req.Stores)),
	}

	for _, s := range req.Stores {
		id := StoreMarkerID(s.ID)
		selected := req.Selected != nil && req.Selected.ID == s.ID
		color, size := StatusColor(s.Status), StoreMarkerSize
		if selected {
			color, size = ColorSelected, SelectedMarkerSize
		}
		x, y := geo.ScreenPixel(s.Coordinates, viewport.Center, viewport.Zoom, width, height)
		layout.Markers = append(layout.Markers, providers.Marker{
			ID:       id,
			Kind:     providers.MarkerKindStore,
			StoreID:  s.ID,
			Position: s.Coordinates,
			Color:    color,
			Size:     size,
			Selected: selected,
			Label:    s.Name,
			X:        x,
			Y:        y,
		})
		layout.Stores[id] = s.Clone()
	}

	if req.UserLocation != nil {
		x, y := geo.ScreenPixel(*req.UserLocation, viewport.Center, viewport.Zoom, width, height)
		layout.Markers = append(layout.Markers, providers.Marker{
			ID:       UserMarkerID,
			Kind:     providers.MarkerKindUser,
			Position: *req.UserLocation,
			Color:    ColorUser,
			Size:     UserMarkerSize,
			Label:    UserMarkerLabel,
			X:        x,
			Y:        y,
		})
	}

	return layout
}

// NewSurface creates a surface for layout with the selection callback of req
func (l Layout) NewSurface(backend string, req providers.RenderRequest, contentType string, content []byte) *providers.Surface {
	surface := providers.NewSurface(backend, l.Viewport, l.Markers, l.Stores, req.OnStoreSelect)
	surface.ContentType = contentType
	surface.Content = content
	return surface
}

// surfaceRegistry remembers the surfaces a backend handed out so Close can
// release them.
type surfaceRegistry struct {
	mu       sync.Mutex
	surfaces []*providers.Surface
}

func (r *surfaceRegistry) track(s *providers.Surface) *providers.Surface {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.surfaces[:0]
	for _, existing := range r.surfaces {
		if !existing.Released() {
			kept = append(kept, existing)
		}
	}
	r.surfaces = append(kept, s)
	return s
}

func (r *surfaceRegistry) releaseAll() {
	r.mu.Lock()
	surfaces := r.surfaces
	r.surfaces = nil
	r.mu.Unlock()

	for _, s := range surfaces {
		s.Release()
	}
}

func (r *surfaceRegistry) live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.surfaces {
		if !s.Released() {
			n++
		}
	}
	return n
}
