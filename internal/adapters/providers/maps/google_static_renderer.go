package maps

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/harborleaf/storelocator/internal/domain/entities"
	"github.com/harborleaf/storelocator/internal/domain/providers"
	"github.com/harborleaf/storelocator/internal/infrastructure/observability"
)

const (
	// BackendGoogle is the name of the commercial static map backend
	BackendGoogle = "google"

	staticMapURL      = "https://maps.googleapis.com/maps/api/staticmap"
	staticMapScale    = "1"
	staticMapCacheTTL = 60 * 60 * 24 * 7
	maxStaticMapEdge  = 640
)

// ErrMissingAPIKey is returned by Init when no API key is configured
var ErrMissingAPIKey = errors.New("google maps api key is required")

// GoogleStaticOptions configures the Google Static Maps backend
type GoogleStaticOptions struct {
	APIKey        string
	BaseURL       string
	DefaultCenter entities.Coordinate
	Cache         providers.CacheProvider
	HTTPClient    *http.Client
	Metrics       *observability.Metrics
}

// GoogleStaticRenderer renders PNG maps through the Google Static Maps API.
// Images are cached by a hash of the request without the key.
type GoogleStaticRenderer struct {
	opts     GoogleStaticOptions
	registry surfaceRegistry

	mu    sync.Mutex
	ready bool
}

// NewGoogleStaticRenderer creates a Google Static Maps backend
func NewGoogleStaticRenderer(opts GoogleStaticOptions) *GoogleStaticRenderer {
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = staticMapURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &GoogleStaticRenderer{opts: opts}
}

var _ providers.MapRenderer = (*GoogleStaticRenderer)(nil)

// Name implements providers.MapRenderer
func (r *GoogleStaticRenderer) Name() string {
	return BackendGoogle
}

// Init checks the backend is configured
func (r *GoogleStaticRenderer) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if strings.TrimSpace(r.opts.APIKey) == "" {
		r.ready = false
		return ErrMissingAPIKey
	}
	r.ready = true
	return nil
}

// Render fetches the map image for req
func (r *GoogleStaticRenderer) Render(ctx context.Context, req providers.RenderRequest) (*providers.Surface, error) {
	r.mu.Lock()
	ready := r.ready
	r.mu.Unlock()
	if !ready {
		return nil, providers.ErrMapUnavailable
	}

	if req.Width > maxStaticMapEdge {
		req.Width = maxStaticMapEdge
	}
	if req.Height > maxStaticMapEdge {
		req.Height = maxStaticMapEdge
	}
	layout := BuildLayout(req, r.opts.DefaultCenter)
	values := StaticMapParams(layout)

	cacheKey := "maps:static:" + hashString(values.Encode())
	if r.opts.Cache != nil {
		if cached, err := r.opts.Cache.Get(ctx, cacheKey); err == nil && len(cached) > 0 {
			observability.RecordCacheHit(ctx, r.opts.Metrics, "static_map")
			return r.registry.track(layout.NewSurface(BackendGoogle, req, "image/png", cached)), nil
		}
		observability.RecordCacheMiss(ctx, r.opts.Metrics, "static_map")
	}

	values.Set("key", r.opts.APIKey)
	mapURL := fmt.Sprintf("%s?%s", r.opts.BaseURL, values.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, mapURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build map request: %w", err)
	}

	resp, err := r.opts.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch map image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("map provider returned status %d", resp.StatusCode)
	}

	image, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read map image: %w", err)
	}

	if r.opts.Cache != nil {
		_ = r.opts.Cache.Set(ctx, cacheKey, image, staticMapCacheTTL)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	return r.registry.track(layout.NewSurface(BackendGoogle, req, contentType, image)), nil
}

// Close releases every surface
func (r *GoogleStaticRenderer) Close() error {
	r.registry.releaseAll()
	r.mu.Lock()
	r.ready = false
	r.mu.Unlock()
	return nil
}

// StaticMapParams encodes layout as Static Maps query parameters. The API
// key is not included.
func StaticMapParams(l Layout) url.Values {
	values := url.Values{}
	values.Set("center", fmt.Sprintf("%.6f,%.6f", l.Viewport.Center.Lat, l.Viewport.Center.Lng))
	values.Set("zoom", fmt.Sprintf("%d", l.Viewport.Zoom))
	values.Set("size", fmt.Sprintf("%dx%d", l.Viewport.Width, l.Viewport.Height))
	values.Set("scale", staticMapScale)
	for _, m := range l.Markers {
		values.Add("markers", staticMarker(m))
	}
	return values
}

func staticMarker(m providers.Marker) string {
	size := "mid"
	if m.Selected || m.Kind == providers.MarkerKindUser {
		size = "normal"
	}
	parts := []string{
		"color:0x" + strings.TrimPrefix(m.Color, "#"),
		"size:" + size,
	}
	if m.Kind == providers.MarkerKindUser {
		parts = append(parts, "label:"+UserMarkerLabel)
	}
	parts = append(parts, fmt.Sprintf("%.6f,%.6f", m.Position.Lat, m.Position.Lng))
	return strings.Join(parts, "|")
}

func hashString(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
