package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/harborleaf/storelocator/internal/application/services"
	"github.com/harborleaf/storelocator/internal/domain/entities"
)

// SessionHandler exposes presentation shell sessions over HTTP
type SessionHandler struct {
	sessions *services.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *services.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type createSessionRequest struct {
	Filters *entities.SearchFilters `json:"filters,omitempty"`
	Locate  bool                    `json:"locate"`
}

type selectStoreRequest struct {
	StoreID int `json:"store_id"`
}

type viewModeRequest struct {
	ViewMode services.ViewMode `json:"view_mode"`
}

type markerClickRequest struct {
	MarkerID string  `json:"marker_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// CreateSession handles POST /api/sessions. An empty body opens a session
// with default filters.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}

	snapshot, err := h.sessions.Create(r.Context(), clientIP(r), req.Filters, req.Locate)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+snapshot.ID)
	respondWithJSON(w, http.StatusCreated, snapshot)
}

// GetSession handles GET /api/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, snapshot)
}

// UpdateFilters handles PUT /api/sessions/{id}/filters. The discovery run
// is debounced; the response carries the sequence number it will apply as.
func (h *SessionHandler) UpdateFilters(w http.ResponseWriter, r *http.Request) {
	var filters entities.SearchFilters
	if !decodeJSON(w, r, &filters) {
		return
	}

	seq, err := h.sessions.UpdateFilters(r.Context(), r.PathValue("id"), filters)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]interface{}{
		"sequence": seq,
	})
}

// Refresh handles POST /api/sessions/{id}/refresh
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.sessions.Refresh(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, snapshot)
}

// Locate handles POST /api/sessions/{id}/locate
func (h *SessionHandler) Locate(w http.ResponseWriter, r *http.Request) {
	state, err := h.sessions.Locate(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, state)
}

// ReportPosition handles POST /api/sessions/{id}/position
func (h *SessionHandler) ReportPosition(w http.ResponseWriter, r *http.Request) {
	var report entities.PositionReport
	if !decodeJSON(w, r, &report) {
		return
	}
	if err := h.sessions.ReportPosition(r.Context(), r.PathValue("id"), report); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SelectStore handles POST /api/sessions/{id}/select. store_id 0 clears
// the selection.
func (h *SessionHandler) SelectStore(w http.ResponseWriter, r *http.Request) {
	var req selectStoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.StoreID < 0 {
		respondWithError(w, http.StatusBadRequest, "store_id must not be negative")
		return
	}

	snapshot, err := h.sessions.SelectStore(r.Context(), r.PathValue("id"), req.StoreID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, snapshot)
}

// SetViewMode handles PUT /api/sessions/{id}/view
func (h *SessionHandler) SetViewMode(w http.ResponseWriter, r *http.Request) {
	var req viewModeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	snapshot, err := h.sessions.SetViewMode(r.Context(), r.PathValue("id"), req.ViewMode)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, snapshot)
}

// RenderMap handles GET /api/sessions/{id}/map
func (h *SessionHandler) RenderMap(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	width, _ := strconv.Atoi(r.URL.Query().Get("width"))
	height, _ := strconv.Atoi(r.URL.Query().Get("height"))
	clickURL := fmt.Sprintf("/api/sessions/%s/map/click", id)

	surface, err := h.sessions.RenderMap(r.Context(), id, width, height, clickURL)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	writeSurface(w, r, surface)
}

// ClickMarker handles POST /api/sessions/{id}/map/click
func (h *SessionHandler) ClickMarker(w http.ResponseWriter, r *http.Request) {
	var req markerClickRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	store, err := h.sessions.ClickMarker(r.Context(), r.PathValue("id"), req.MarkerID, req.X, req.Y)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, store)
}

// RetryMap handles POST /api/sessions/{id}/map/retry
func (h *SessionHandler) RetryMap(w http.ResponseWriter, r *http.Request) {
	status, err := h.sessions.RetryMap(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

// CloseSession handles DELETE /api/sessions/{id}
func (h *SessionHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(r.Context(), r.PathValue("id")); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
