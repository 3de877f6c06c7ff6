package routes

import (
	"net/http"

	"github.com/harborleaf/storelocator/internal/api/handlers"
	"github.com/harborleaf/storelocator/internal/api/middleware"
	"github.com/harborleaf/storelocator/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	storeHandler   *handlers.StoreHandler
	sessionHandler *handlers.SessionHandler
	sseHandler     *handlers.SSEHandler

	cacheMiddleware *middleware.CacheMiddleware
	allowedOrigins  []string
	metrics         *observability.Metrics
}

// NewRouter creates a new router. cacheMiddleware and metrics may be nil.
func NewRouter(
	storeHandler *handlers.StoreHandler,
	sessionHandler *handlers.SessionHandler,
	sseHandler *handlers.SSEHandler,
	cacheMiddleware *middleware.CacheMiddleware,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:             http.NewServeMux(),
		storeHandler:    storeHandler,
		sessionHandler:  sessionHandler,
		sseHandler:      sseHandler,
		cacheMiddleware: cacheMiddleware,
		allowedOrigins:  allowedOrigins,
		metrics:         metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	// Stateless discovery; compression and ETags only apply here since
	// session streams must not be buffered
	optimized := func(h http.HandlerFunc) http.Handler {
		return middleware.ResponseOptimization(h)
	}
	r.mux.Handle("GET /api/stores", optimized(r.storeHandler.ListStores))
	r.mux.Handle("GET /api/stores/cities", optimized(r.storeHandler.ListCities))
	r.mux.Handle("GET /api/stores/districts", optimized(r.storeHandler.ListDistricts))
	r.mux.Handle("GET /api/stores/options", optimized(r.storeHandler.GetOptions))
	r.mux.Handle("GET /api/stores/{id}", optimized(r.storeHandler.GetStore))
	r.mux.HandleFunc("GET /api/map", r.storeHandler.RenderMap)

	// Presentation shell sessions
	r.mux.HandleFunc("POST /api/sessions", r.sessionHandler.CreateSession)
	r.mux.HandleFunc("GET /api/sessions/{id}", r.sessionHandler.GetSession)
	r.mux.HandleFunc("DELETE /api/sessions/{id}", r.sessionHandler.CloseSession)
	r.mux.HandleFunc("PUT /api/sessions/{id}/filters", r.sessionHandler.UpdateFilters)
	r.mux.HandleFunc("POST /api/sessions/{id}/refresh", r.sessionHandler.Refresh)
	r.mux.HandleFunc("POST /api/sessions/{id}/locate", r.sessionHandler.Locate)
	r.mux.HandleFunc("POST /api/sessions/{id}/position", r.sessionHandler.ReportPosition)
	r.mux.HandleFunc("POST /api/sessions/{id}/select", r.sessionHandler.SelectStore)
	r.mux.HandleFunc("PUT /api/sessions/{id}/view", r.sessionHandler.SetViewMode)
	r.mux.HandleFunc("GET /api/sessions/{id}/map", r.sessionHandler.RenderMap)
	r.mux.HandleFunc("POST /api/sessions/{id}/map/click", r.sessionHandler.ClickMarker)
	r.mux.HandleFunc("POST /api/sessions/{id}/map/retry", r.sessionHandler.RetryMap)

	if r.sseHandler != nil {
		r.mux.HandleFunc("GET /api/sessions/{id}/stream", r.sseHandler.StreamSession)
	}

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)

	if r.cacheMiddleware != nil {
		handler = r.cacheMiddleware.Middleware(handler)
	}

	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)

	// CORS wraps everything so headers are set even on cache HITs
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
