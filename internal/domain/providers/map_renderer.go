package providers

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/harborleaf/storelocator/internal/domain/entities"
)

var (
	// ErrMapUnavailable is returned by Render while a backend is not initialised
	ErrMapUnavailable = errors.New("map backend unavailable")

	// ErrSurfaceReleased is returned when a disposed surface is clicked
	ErrSurfaceReleased = errors.New("map surface released")

	// ErrUnknownMarker is returned for marker ids the surface did not render
	ErrUnknownMarker = errors.New("unknown marker")

	// ErrNotStoreMarker is returned when the clicked marker is not a store
	ErrNotStoreMarker = errors.New("marker does not represent a store")
)

// MapRenderer draws stores and the visitor's position on a map surface.
// Every backend honours the same contract so they can be swapped freely.
type MapRenderer interface {
	// Name identifies the backend
	Name() string

	// Init loads whatever the backend needs before it can render
	Init(ctx context.Context) error

	// Render produces a surface for one render pass
	Render(ctx context.Context, req RenderRequest) (*Surface, error)

	// Close releases every surface and listener the backend registered
	Close() error
}

// MapState is the lifecycle state of a map backend
type MapState string

const (
	MapStateLoading MapState = "loading"
	MapStateReady   MapState = "ready"
	MapStateFailed  MapState = "failed"
)

// MapStatus is a snapshot of a recoverable backend
type MapStatus struct {
	Backend  string   `json:"backend"`
	State    MapState `json:"state"`
	Error    string   `json:"error,omitempty"`
	Attempts int      `json:"attempts"`
	Fallback bool     `json:"fallback,omitempty"`
}

// RecoverableRenderer is a renderer whose init failures are captured as
// state and can be retried by the visitor.
type RecoverableRenderer interface {
	MapRenderer
	Status() MapStatus
	Retry(ctx context.Context) error
}

// RenderRequest is the input of one render pass. Stores is the sole source
// of truth for the markers of the pass.
type RenderRequest struct {
	Stores        []entities.Store
	UserLocation  *entities.Coordinate
	Selected      *entities.Store
	OnStoreSelect func(entities.Store)
	Width         int
	Height        int
	// ClickURL is where interactive surfaces post marker clicks
	ClickURL string
}

// MarkerKind distinguishes store markers from the visitor marker
type MarkerKind string

const (
	MarkerKindStore MarkerKind = "store"
	MarkerKindUser  MarkerKind = "user"
)

// Marker is a clickable point on a surface
type Marker struct {
	ID       string              `json:"id"`
	Kind     MarkerKind          `json:"kind"`
	StoreID  int                 `json:"store_id,omitempty"`
	Position entities.Coordinate `json:"position"`
	Color    string              `json:"color"`
	Size     int                 `json:"size"`
	Selected bool                `json:"selected,omitempty"`
	Label    string              `json:"label"`
	X        float64             `json:"x"`
	Y        float64             `json:"y"`
}

// Viewport is the camera of a surface
type Viewport struct {
	Center entities.Coordinate `json:"center"`
	Zoom   int                 `json:"zoom"`
	Width  int                 `json:"width"`
	Height int                 `json:"height"`
}

// Surface is the result of a render pass
type Surface struct {
	Backend     string
	ContentType string
	Content     []byte
	Viewport    Viewport
	Markers     []Marker

	mu       sync.Mutex
	stores   map[string]entities.Store
	onSelect func(entities.Store)
	released bool
}

// NewSurface wires click dispatch for markers. stores maps store marker ids
// to the records they were rendered from.
func NewSurface(backend string, viewport Viewport, markers []Marker, stores map[string]entities.Store, onSelect func(entities.Store)) *Surface {
	return &Surface{
		Backend:  backend,
		Viewport: viewport,
		Markers:  markers,
		stores:   stores,
		onSelect: onSelect,
	}
}

// Click dispatches a marker click. The selection callback runs exactly once
// per successful click and receives the full store record.
func (s *Surface) Click(markerID string) (entities.Store, error) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return entities.Store{}, ErrSurfaceReleased
	}
	store, ok := s.stores[markerID]
	onSelect := s.onSelect
	s.mu.Unlock()

	if !ok {
		if s.marker(markerID) != nil {
			return entities.Store{}, ErrNotStoreMarker
		}
		return entities.Store{}, ErrUnknownMarker
	}

	selected := store.Clone()
	if onSelect != nil {
		onSelect(selected)
	}
	return selected, nil
}

// HitTest returns the marker drawn at surface pixel (x, y). When markers
// overlap the one closest to the point wins.
func (s *Surface) HitTest(x, y float64) (string, bool) {
	best := ""
	bestDist := math.MaxFloat64
	for _, m := range s.Markers {
		radius := float64(m.Size)
		if radius <= 0 {
			radius = 10
		}
		d := math.Hypot(m.X-x, m.Y-y)
		if d <= radius && d < bestDist {
			best, bestDist = m.ID, d
		}
	}
	return best, best != ""
}

// Release disposes the surface; later clicks fail with ErrSurfaceReleased
func (s *Surface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	s.stores = nil
	s.onSelect = nil
}

// Released reports whether Release has been called
func (s *Surface) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

func (s *Surface) marker(id string) *Marker {
	for i := range s.Markers {
		if s.Markers[i].ID == id {
			return &s.Markers[i]
		}
	}
	return nil
}
