package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harborleaf/storelocator/internal/application/services"
	"github.com/harborleaf/storelocator/internal/domain/entities"
)

// defaultHeartbeat keeps idle proxies from closing the stream
const defaultHeartbeat = 30 * time.Second

// SSEHandler streams session events as Server-Sent Events
type SSEHandler struct {
	sessions  *services.SessionService
	heartbeat time.Duration

	mu      sync.RWMutex
	clients map[string]int
}

// NewSSEHandler creates a new SSE handler
func NewSSEHandler(sessions *services.SessionService) *SSEHandler {
	return &SSEHandler{
		sessions:  sessions,
		heartbeat: defaultHeartbeat,
		clients:   make(map[string]int),
	}
}

// WithHeartbeat sets the heartbeat interval
func (h *SSEHandler) WithHeartbeat(interval time.Duration) *SSEHandler {
	if interval > 0 {
		h.heartbeat = interval
	}
	return h
}

// StreamSession handles GET /api/sessions/{id}/stream. The first event is
// a snapshot of the session; the stream ends when the session closes.
func (h *SSEHandler) StreamSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	snapshot, err := h.sessions.Get(ctx, sessionID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	events, err := h.sessions.Subscribe(ctx, sessionID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	h.registerClient(sessionID)
	defer h.unregisterClient(sessionID)

	h.sendEvent(w, "connected", snapshot)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("session_id", sessionID).Msg("client disconnected from session stream")
			return
		case <-ticker.C:
			h.sendEvent(w, "heartbeat", map[string]interface{}{
				"timestamp": time.Now(),
			})
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			h.sendEvent(w, string(event.EventType), event)
			flusher.Flush()
			if event.EventType == entities.SessionEventClosed {
				return
			}
		}
	}
}

func (h *SSEHandler) registerClient(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[sessionID]++
	log.Debug().Str("session_id", sessionID).Int("clients", h.clients[sessionID]).Msg("stream client registered")
}

func (h *SSEHandler) unregisterClient(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[sessionID]--
	if h.clients[sessionID] <= 0 {
		delete(h.clients, sessionID)
	}
}

// sendEvent writes one SSE frame
func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event data")
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
}

// GetClientCount returns the number of connected stream clients
func (h *SSEHandler) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, n := range h.clients {
		count += n
	}
	return count
}
