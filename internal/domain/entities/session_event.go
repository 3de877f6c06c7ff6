package entities

import (
	"time"

	"github.com/google/uuid"
)

// SessionEventType represents the type of a locator session event
type SessionEventType string

const (
	SessionEventResultsUpdated   SessionEventType = "results_updated"
	SessionEventLocationChanged  SessionEventType = "location_changed"
	SessionEventStoreSelected    SessionEventType = "store_selected"
	SessionEventViewModeChanged  SessionEventType = "view_mode_changed"
	SessionEventMapStateChanged  SessionEventType = "map_state_changed"
	SessionEventFiltersScheduled SessionEventType = "filters_scheduled"
	SessionEventClosed           SessionEventType = "session_closed"
)

// SessionEvent notifies a shell client that its session state changed
type SessionEvent struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"session_id"`
	EventType SessionEventType       `json:"event_type"`
	Sequence  uint64                 `json:"sequence,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewSessionEvent creates a new session event
func NewSessionEvent(sessionID string, eventType SessionEventType, data map[string]interface{}) *SessionEvent {
	return &SessionEvent{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		EventType: eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}
