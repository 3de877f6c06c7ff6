package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborleaf/storelocator/internal/adapters/catalog"
	"github.com/harborleaf/storelocator/internal/adapters/providers/maps"
	"github.com/harborleaf/storelocator/internal/api/handlers"
	"github.com/harborleaf/storelocator/internal/application/services"
	"github.com/harborleaf/storelocator/internal/domain/entities"
)

var defaultCenter = entities.Coordinate{Lat: 22.6273, Lng: 120.3014}

func testCatalog(t *testing.T) *catalog.StaticCatalog {
	t.Helper()
	repo, err := catalog.NewStaticCatalog([]entities.Store{
		{
			ID: 1, Name: "Harbor Leaf Yancheng", City: "Kaohsiung", District: "Yancheng",
			Address: "1 Dayong Rd", Status: entities.StoreStatusActive, Rating: 4.5,
			Coordinates: entities.Coordinate{Lat: 22.63, Lng: 120.30},
			Features:    []string{"parking"},
		},
		{
			ID: 2, Name: "Harbor Leaf Sanmin", City: "Kaohsiung", District: "Sanmin",
			Address: "9 Jiuru Rd", Status: entities.StoreStatusMaintenance, Rating: 4.0,
			Coordinates: entities.Coordinate{Lat: 22.70, Lng: 120.35},
			Features:    []string{"pet-friendly"},
		},
		{
			ID: 3, Name: "Harbor Leaf Anping", City: "Tainan", District: "Anping",
			Address: "3 Guosheng Rd", Status: entities.StoreStatusComingSoon, Rating: 4.8,
			Coordinates: entities.Coordinate{Lat: 23.00, Lng: 120.16},
		},
	})
	require.NoError(t, err)
	return repo
}

func newStoreMux(t *testing.T) (*http.ServeMux, *maps.MockRenderer) {
	t.Helper()
	discovery := services.NewDiscoveryService(testCatalog(t), 10, 0)

	renderer := maps.NewMockRenderer(defaultCenter)
	require.NoError(t, renderer.Init(context.Background()))
	failing := maps.NewResilientRenderer(maps.NewFailingMockRenderer(defaultCenter, errors.New("no tiles")), nil, fastRetry(), nil)
	_ = failing.Init(context.Background())

	handler := handlers.NewStoreHandler(discovery, defaultCenter).
		WithRenderer(renderer).
		WithRenderer(namedRenderer{ResilientRenderer: failing, name: "broken"})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stores", handler.ListStores)
	mux.HandleFunc("GET /api/stores/cities", handler.ListCities)
	mux.HandleFunc("GET /api/stores/districts", handler.ListDistricts)
	mux.HandleFunc("GET /api/stores/options", handler.GetOptions)
	mux.HandleFunc("GET /api/stores/{id}", handler.GetStore)
	mux.HandleFunc("GET /api/map", handler.RenderMap)
	return mux, renderer
}

// namedRenderer registers a backend under a custom name
type namedRenderer struct {
	*maps.ResilientRenderer
	name string
}

func (n namedRenderer) Name() string { return n.name }

func doRequest(handler http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func storeIDs(stores []entities.Store) []int {
	out := make([]int, 0, len(stores))
	for _, s := range stores {
		out = append(out, s.ID)
	}
	return out
}

func TestStoreHandler_ListStores(t *testing.T) {
	mux, _ := newStoreMux(t)

	tests := []struct {
		name   string
		target string
		want   []int
	}{
		{"default radius around default center", "/api/stores", []int{1, 2}},
		{"radius and rating", "/api/stores?lat=22.63&lng=120.30&radius=5&sort=rating", []int{1}},
		{"reference from query", "/api/stores?lat=23.00&lng=120.16&radius=5", []int{3}},
		{"wide radius by name", "/api/stores?radius=100&sort=name", []int{3, 2, 1}},
		{"features", "/api/stores?radius=100&features=pet-friendly", []int{2}},
		{"text and city", "/api/stores?radius=100&q=harbor&city=Tainan", []int{3}},
		{"paged", "/api/stores?radius=100&page=2&page_size=2", []int{3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(mux, http.MethodGet, tt.target)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			result := decodeBody[services.DiscoveryResult](t, w)
			assert.Equal(t, tt.want, storeIDs(result.Items))
		})
	}
}

func TestStoreHandler_ListStoresEmpty(t *testing.T) {
	mux, _ := newStoreMux(t)

	w := doRequest(mux, http.MethodGet, "/api/stores?q=nowhere")

	require.Equal(t, http.StatusOK, w.Code)
	result := decodeBody[services.DiscoveryResult](t, w)
	assert.True(t, result.Empty)
	assert.Equal(t, services.HintNoResults, result.Hint)
	assert.Empty(t, result.Items)
}

func TestStoreHandler_ListStoresBadRequest(t *testing.T) {
	mux, _ := newStoreMux(t)

	for _, target := range []string{
		"/api/stores?sort=popularity",
		"/api/stores?radius=abc",
		"/api/stores?radius=-3",
		"/api/stores?radius=NaN",
		"/api/stores?lat=22.6",
		"/api/stores?lat=95&lng=120",
		"/api/stores?status=closed",
	} {
		w := doRequest(mux, http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestStoreHandler_GetStore(t *testing.T) {
	mux, _ := newStoreMux(t)

	w := doRequest(mux, http.MethodGet, "/api/stores/2?lat=22.63&lng=120.30")
	require.Equal(t, http.StatusOK, w.Code)
	store := decodeBody[entities.Store](t, w)
	assert.Equal(t, 2, store.ID)
	require.NotNil(t, store.Distance)
	assert.InDelta(t, 9.3, *store.Distance, 0.5)

	plain := decodeBody[entities.Store](t, doRequest(mux, http.MethodGet, "/api/stores/2"))
	assert.Nil(t, plain.Distance)

	assert.Equal(t, http.StatusNotFound, doRequest(mux, http.MethodGet, "/api/stores/99").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(mux, http.MethodGet, "/api/stores/abc").Code)
}

func TestStoreHandler_CitiesAndDistricts(t *testing.T) {
	mux, _ := newStoreMux(t)

	cities := decodeBody[map[string]interface{}](t, doRequest(mux, http.MethodGet, "/api/stores/cities"))
	assert.ElementsMatch(t, []interface{}{"Kaohsiung", "Tainan"}, cities["cities"])

	districts := decodeBody[map[string]interface{}](t, doRequest(mux, http.MethodGet, "/api/stores/districts?city=Kaohsiung"))
	assert.ElementsMatch(t, []interface{}{"Yancheng", "Sanmin"}, districts["districts"])

	options := decodeBody[services.FilterOptions](t, doRequest(mux, http.MethodGet, "/api/stores/options"))
	assert.ElementsMatch(t, []string{"parking", "pet-friendly"}, options.Features)
	assert.Len(t, options.SortOrders, 4)
}

func TestStoreHandler_RenderMap(t *testing.T) {
	mux, renderer := newStoreMux(t)

	w := doRequest(mux, http.MethodGet, "/api/map?lat=22.63&lng=120.30&selected=1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"))
	assert.Equal(t, maps.BackendMock, w.Header().Get("X-Map-Backend"))
	// two stores plus the visitor
	assert.Equal(t, "3", w.Header().Get("X-Map-Markers"))
	assert.Contains(t, w.Body.String(), "<svg")

	view := decodeBody[map[string]interface{}](t, doRequest(mux, http.MethodGet, "/api/map?format=json&q=nowhere"))
	assert.Empty(t, view["markers"])

	// stateless surfaces are released after the response
	assert.Zero(t, renderer.LiveSurfaces())
}

func TestStoreHandler_RenderMapErrors(t *testing.T) {
	mux, _ := newStoreMux(t)

	assert.Equal(t, http.StatusBadRequest, doRequest(mux, http.MethodGet, "/api/map?backend=vector").Code)
	assert.Equal(t, http.StatusServiceUnavailable, doRequest(mux, http.MethodGet, "/api/map?backend=broken").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(mux, http.MethodGet, "/api/map?selected=42").Code)

	// the list keeps working while a backend is down
	assert.Equal(t, http.StatusOK, doRequest(mux, http.MethodGet, "/api/stores").Code)
}
