package maps

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/harborleaf/storelocator/internal/domain/entities"
	"github.com/harborleaf/storelocator/internal/domain/providers"
)

// BackendMock is the name of the offline backend
const BackendMock = "mock"

// MockRenderer draws markers into a deterministic SVG without touching the
// network. It serves offline deployments, demos and tests.
type MockRenderer struct {
	defaultCenter entities.Coordinate
	registry      surfaceRegistry

	mu      sync.Mutex
	ready   bool
	initErr error
	inits   int
}

// NewMockRenderer creates an offline renderer
func NewMockRenderer(defaultCenter entities.Coordinate) *MockRenderer {
	return &MockRenderer{defaultCenter: defaultCenter}
}

// NewFailingMockRenderer creates a renderer whose Init fails with err until
// SetInitError clears it.
func NewFailingMockRenderer(defaultCenter entities.Coordinate, err error) *MockRenderer {
	return &MockRenderer{defaultCenter: defaultCenter, initErr: err}
}

var _ providers.MapRenderer = (*MockRenderer)(nil)

// Name implements providers.MapRenderer
func (m *MockRenderer) Name() string {
	return BackendMock
}

// SetInitError changes the outcome of later Init calls
func (m *MockRenderer) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initErr = err
}

// InitCalls returns how often Init ran
func (m *MockRenderer) InitCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inits
}

// LiveSurfaces returns the number of surfaces not yet released
func (m *MockRenderer) LiveSurfaces() int {
	return m.registry.live()
}

// Init implements providers.MapRenderer
func (m *MockRenderer) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inits++
	if m.initErr != nil {
		m.ready = false
		return m.initErr
	}
	m.ready = true
	return nil
}

// Render implements providers.MapRenderer
func (m *MockRenderer) Render(ctx context.Context, req providers.RenderRequest) (*providers.Surface, error) {
	m.mu.Lock()
	ready := m.ready
	m.mu.Unlock()
	if !ready {
		return nil, providers.ErrMapUnavailable
	}

	layout := BuildLayout(req, m.defaultCenter)
	return m.registry.track(layout.NewSurface(BackendMock, req, "image/svg+xml", renderSVG(layout))), nil
}

// Close releases every surface
func (m *MockRenderer) Close() error {
	m.registry.releaseAll()
	m.mu.Lock()
	m.ready = false
	m.mu.Unlock()
	return nil
}

func renderSVG(l Layout) []byte {
	var b strings.Builder
	w, h := l.Viewport.Width, l.Viewport.Height
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" data-zoom="%d" data-center="%.6f,%.6f">`,
		w, h, w, h, l.Viewport.Zoom, l.Viewport.Center.Lat, l.Viewport.Center.Lng)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#eef3f6"/>`, w, h)
	for _, m := range l.Markers {
		fmt.Fprintf(&b, `<g id="%s" data-kind="%s"><circle cx="%.1f" cy="%.1f" r="%d" fill="%s" stroke="#ffffff" stroke-width="2"/>`,
			html.EscapeString(m.ID), m.Kind, m.X, m.Y, m.Size, m.Color)
		if m.Kind == providers.MarkerKindUser {
			fmt.Fprintf(&b, `<text x="%.1f" y="%.1f" text-anchor="middle" dominant-baseline="central" font-size="10" fill="#ffffff">%s</text>`,
				m.X, m.Y, html.EscapeString(m.Label))
		} else {
			fmt.Fprintf(&b, `<title>%s</title>`, html.EscapeString(m.Label))
		}
		b.WriteString(`</g>`)
	}
	b.WriteString(`</svg>`)
	return []byte(b.String())
}
