package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/harborleaf/storelocator/internal/application/services"
	"github.com/harborleaf/storelocator/internal/domain/entities"
	"github.com/harborleaf/storelocator/internal/domain/providers"
)

// StoreHandler serves stateless discovery and map requests
type StoreHandler struct {
	discovery      *services.DiscoveryService
	defaultCenter  entities.Coordinate
	renderers      map[string]providers.MapRenderer
	defaultBackend string
}

// NewStoreHandler creates a new store handler
func NewStoreHandler(discovery *services.DiscoveryService, defaultCenter entities.Coordinate) *StoreHandler {
	return &StoreHandler{
		discovery:     discovery,
		defaultCenter: defaultCenter,
		renderers:     make(map[string]providers.MapRenderer),
	}
}

// WithRenderer makes a map backend available to GET /api/map. The first
// registered backend is the default.
func (h *StoreHandler) WithRenderer(renderer providers.MapRenderer) *StoreHandler {
	if h.defaultBackend == "" {
		h.defaultBackend = renderer.Name()
	}
	h.renderers[renderer.Name()] = renderer
	return h
}

// ListStores handles GET /api/stores
func (h *StoreHandler) ListStores(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	reference, err := h.reference(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	result, err := h.discovery.Discover(r.Context(), filters, reference)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// reference is the point distances are measured from: the lat/lng query
// pair when given, the configured default centre otherwise
func (h *StoreHandler) reference(r *http.Request) (entities.Coordinate, error) {
	coord, err := parseCoordinate(r)
	if err != nil {
		return entities.Coordinate{}, err
	}
	if coord == nil {
		return h.defaultCenter, nil
	}
	return *coord, nil
}

// GetStore handles GET /api/stores/{id}
func (h *StoreHandler) GetStore(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	reference, err := parseCoordinate(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	store, err := h.discovery.Store(r.Context(), id, reference)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, store)
}

// ListCities handles GET /api/stores/cities
func (h *StoreHandler) ListCities(w http.ResponseWriter, r *http.Request) {
	options, err := h.discovery.Options(r.Context(), "")
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"cities": options.Cities,
		"count":  len(options.Cities),
	})
}

// ListDistricts handles GET /api/stores/districts?city=
func (h *StoreHandler) ListDistricts(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	options, err := h.discovery.Options(r.Context(), city)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"city":      city,
		"districts": options.Districts,
		"count":     len(options.Districts),
	})
}

// GetOptions handles GET /api/stores/options
func (h *StoreHandler) GetOptions(w http.ResponseWriter, r *http.Request) {
	options, err := h.discovery.Options(r.Context(), strings.TrimSpace(r.URL.Query().Get("city")))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, options)
}

// RenderMap handles GET /api/map. The surface is not kept, so the result
// is a picture of the query without click handling.
func (h *StoreHandler) RenderMap(w http.ResponseWriter, r *http.Request) {
	backend := strings.TrimSpace(r.URL.Query().Get("backend"))
	if backend == "" {
		backend = h.defaultBackend
	}
	renderer, ok := h.renderers[backend]
	if !ok {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("unknown map backend %q", backend))
		return
	}

	filters, err := parseFilters(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	user, err := parseCoordinate(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	reference, err := h.reference(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	result, err := h.discovery.Discover(r.Context(), filters, reference)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	req := providers.RenderRequest{
		Stores:       result.Items,
		UserLocation: user,
	}
	req.Width, _ = strconv.Atoi(r.URL.Query().Get("width"))
	req.Height, _ = strconv.Atoi(r.URL.Query().Get("height"))
	if raw := r.URL.Query().Get("selected"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid selected parameter")
			return
		}
		selected, err := h.discovery.Store(r.Context(), id, &reference)
		if err != nil {
			respondWithAppError(w, r, err)
			return
		}
		req.Selected = selected
	}

	surface, err := renderer.Render(r.Context(), req)
	if err != nil {
		respondWithAppError(w, r, mapRenderError(renderer, err))
		return
	}
	defer surface.Release()
	writeSurface(w, r, surface)
}
