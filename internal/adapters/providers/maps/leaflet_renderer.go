package maps

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/harborleaf/storelocator/internal/domain/entities"
	"github.com/harborleaf/storelocator/internal/domain/providers"
)

const (
	// BackendLeaflet is the name of the open-source map library backend
	BackendLeaflet = "leaflet"

	defaultLibraryURL  = "https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"
	defaultTileURL     = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	defaultHTTPTimeout = 8 * time.Second
)

var leafletPage = template.Must(template.New("leaflet").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<link rel="stylesheet" href="{{.StyleURL}}">
<script src="{{.LibraryURL}}"></script>
<style>html,body,#map{margin:0;height:100%}</style>
</head>
<body>
<div id="map" style="width:{{.Width}}px;height:{{.Height}}px"></div>
<script>
(function () {
  var viewport = {{.Viewport}};
  var markers = {{.Markers}};
  var clickURL = {{.ClickURL}};
  var map = L.map("map").setView([viewport.center.lat, viewport.center.lng], viewport.zoom);
  L.tileLayer({{.TileURL}}, {attribution: "&copy; OpenStreetMap contributors"}).addTo(map);
  markers.forEach(function (m) {
    var marker = L.circleMarker([m.position.lat, m.position.lng], {
      radius: m.size / 2, color: "#ffffff", weight: 2, fillColor: m.color, fillOpacity: 1
    }).addTo(map);
    marker.bindTooltip(m.label, {permanent: m.kind === "user", direction: "center"});
    if (m.kind === "store" && clickURL) {
      marker.on("click", function () {
        fetch(clickURL, {method: "POST", headers: {"Content-Type": "application/json"},
          body: JSON.stringify({marker_id: m.id})});
      });
    }
  });
})();
</script>
</body>
</html>
`))

// LeafletOptions configures the Leaflet backend
type LeafletOptions struct {
	LibraryURL    string
	TileURL       string
	DefaultCenter entities.Coordinate
	HTTPClient    *http.Client
}

// LeafletRenderer renders interactive HTML pages driven by the Leaflet
// library. Init checks the library asset is reachable, so it depends on the
// network.
type LeafletRenderer struct {
	opts     LeafletOptions
	registry surfaceRegistry

	mu    sync.Mutex
	ready bool
}

// NewLeafletRenderer creates a Leaflet backend
func NewLeafletRenderer(opts LeafletOptions) *LeafletRenderer {
	if strings.TrimSpace(opts.LibraryURL) == "" {
		opts.LibraryURL = defaultLibraryURL
	}
	if strings.TrimSpace(opts.TileURL) == "" {
		opts.TileURL = defaultTileURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &LeafletRenderer{opts: opts}
}

var _ providers.MapRenderer = (*LeafletRenderer)(nil)

// Name implements providers.MapRenderer
func (r *LeafletRenderer) Name() string {
	return BackendLeaflet
}

// Init verifies the library script can be downloaded
func (r *LeafletRenderer) Init(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.opts.LibraryURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build library request: %w", err)
	}

	resp, err := r.opts.HTTPClient.Do(req)
	if err != nil {
		r.setReady(false)
		return fmt.Errorf("map library unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.setReady(false)
		return fmt.Errorf("map library returned status %d", resp.StatusCode)
	}

	r.setReady(true)
	return nil
}

func (r *LeafletRenderer) setReady(ready bool) {
	r.mu.Lock()
	r.ready = ready
	r.mu.Unlock()
}

// Render implements providers.MapRenderer
func (r *LeafletRenderer) Render(ctx context.Context, req providers.RenderRequest) (*providers.Surface, error) {
	r.mu.Lock()
	ready := r.ready
	r.mu.Unlock()
	if !ready {
		return nil, providers.ErrMapUnavailable
	}

	layout := BuildLayout(req, r.opts.DefaultCenter)

	var buf bytes.Buffer
	err := leafletPage.Execute(&buf, map[string]interface{}{
		"StyleURL":   strings.TrimSuffix(r.opts.LibraryURL, ".js") + ".css",
		"LibraryURL": r.opts.LibraryURL,
		"TileURL":    r.opts.TileURL,
		"Width":      layout.Viewport.Width,
		"Height":     layout.Viewport.Height,
		"Viewport":   layout.Viewport,
		"Markers":    layout.Markers,
		"ClickURL":   req.ClickURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render map page: %w", err)
	}

	return r.registry.track(layout.NewSurface(BackendLeaflet, req, "text/html; charset=utf-8", buf.Bytes())), nil
}

// Close releases every surface
func (r *LeafletRenderer) Close() error {
	r.registry.releaseAll()
	r.setReady(false)
	return nil
}
