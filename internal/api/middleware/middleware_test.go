package middleware_test

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborleaf/storelocator/internal/adapters/cache"
	"github.com/harborleaf/storelocator/internal/api/middleware"
)

func jsonHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"items":[]}`))
	})
}

func TestCORSMiddleware(t *testing.T) {
	calls := 0
	handler := middleware.CORSMiddleware([]string{"https://shop.example"})(jsonHandler(&calls))

	req := httptest.NewRequest(http.MethodGet, "/api/stores", nil)
	req.Header.Set("Origin", "https://shop.example")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))

	req = httptest.NewRequest(http.MethodGet, "/api/stores", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, calls)
}

func TestCacheMiddleware(t *testing.T) {
	calls := 0
	m := middleware.NewCacheMiddleware(cache.NewMemoryAdapter(), nil, nil)
	handler := m.Middleware(jsonHandler(&calls))

	get := func(target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		return w
	}

	first := get("/api/stores?sort=rating&radius=5")
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	// query order does not change the key
	second := get("/api/stores?radius=5&sort=rating")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)

	detail := get("/api/stores/4")
	assert.Equal(t, "MISS", detail.Header().Get("X-Cache"))
	assert.Equal(t, "HIT", get("/api/stores/4").Header().Get("X-Cache"))

	// session routes are never cached
	get("/api/sessions/abc")
	session := get("/api/sessions/abc")
	assert.Empty(t, session.Header().Get("X-Cache"))
	assert.Equal(t, 4, calls)
}

func TestResponseOptimization(t *testing.T) {
	calls := 0
	handler := middleware.ResponseOptimization(jsonHandler(&calls))

	req := httptest.NewRequest(http.MethodGet, "/api/stores/cities", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.Equal(t, "public, max-age=3600", w.Header().Get("Cache-Control"))
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	reader, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[]}`, string(body))

	req = httptest.NewRequest(http.MethodGet, "/api/stores/cities", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotModified, w.Code)
}
