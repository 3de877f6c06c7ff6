package maps

import (
	"fmt"
	"net/http"

	"github.com/harborleaf/storelocator/internal/domain/entities"
	"github.com/harborleaf/storelocator/internal/domain/providers"
	"github.com/harborleaf/storelocator/internal/infrastructure/observability"
	"github.com/harborleaf/storelocator/pkg/config"
	"github.com/harborleaf/storelocator/pkg/retry"
)

// RendererDeps are the shared collaborators of map backends
type RendererDeps struct {
	DefaultCenter entities.Coordinate
	Cache         providers.CacheProvider
	HTTPClient    *http.Client
	Metrics       *observability.Metrics
}

// NewBackend creates the bare backend named by cfg.Backend
func NewBackend(cfg config.MapsConfig, deps RendererDeps) (providers.MapRenderer, error) {
	switch cfg.Backend {
	case BackendLeaflet:
		return NewLeafletRenderer(LeafletOptions{
			LibraryURL:    cfg.LibraryURL,
			TileURL:       cfg.TileURL,
			DefaultCenter: deps.DefaultCenter,
			HTTPClient:    deps.HTTPClient,
		}), nil
	case BackendGoogle:
		return NewGoogleStaticRenderer(GoogleStaticOptions{
			APIKey:        cfg.APIKey,
			BaseURL:       cfg.StaticMapURL,
			DefaultCenter: deps.DefaultCenter,
			Cache:         deps.Cache,
			HTTPClient:    deps.HTTPClient,
			Metrics:       deps.Metrics,
		}), nil
	case BackendMock, "":
		return NewMockRenderer(deps.DefaultCenter), nil
	default:
		return nil, fmt.Errorf("unknown map backend %q", cfg.Backend)
	}
}

// NewRenderer creates a resilient renderer for the configured backend. The
// mock backend serves as fallback when cfg.FallbackToMock is set.
func NewRenderer(cfg config.MapsConfig, deps RendererDeps) (*ResilientRenderer, error) {
	primary, err := NewBackend(cfg, deps)
	if err != nil {
		return nil, err
	}

	var fallback providers.MapRenderer
	if cfg.FallbackToMock && primary.Name() != BackendMock {
		fallback = NewMockRenderer(deps.DefaultCenter)
	}

	retryCfg := retry.DefaultConfig()
	if cfg.InitAttempts > 0 {
		retryCfg.MaxAttempts = cfg.InitAttempts
	}

	return NewResilientRenderer(primary, fallback, retryCfg, deps.Metrics), nil
}
