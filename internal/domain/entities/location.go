package entities

import "time"

// Position is a single reading reported by a position source
type Position struct {
	Coordinate     Coordinate `json:"coordinate"`
	AccuracyMeters float64    `json:"accuracy_m,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}

// LocationState is the state of a geolocation acquisition
type LocationState string

const (
	LocationIdle       LocationState = "idle"
	LocationRequesting LocationState = "requesting"
	LocationResolved   LocationState = "resolved"
	LocationFailed     LocationState = "failed"
)

// FailureReason classifies why an acquisition failed
type FailureReason string

const (
	FailurePermissionDenied       FailureReason = "permission_denied"
	FailurePositionUnavailable    FailureReason = "position_unavailable"
	FailureTimeout                FailureReason = "timeout"
	FailureUnsupportedEnvironment FailureReason = "unsupported_environment"
	FailureUnknown                FailureReason = "unknown"
)

// Message returns the advisory shown to the visitor for the failure
func (r FailureReason) Message() string {
	switch r {
	case FailurePermissionDenied:
		return "Location access was denied. Showing stores near the default location."
	case FailurePositionUnavailable:
		return "Your location could not be determined. Showing stores near the default location."
	case FailureTimeout:
		return "Locating you took too long. Showing stores near the default location."
	case FailureUnsupportedEnvironment:
		return "Your browser does not support location services. Showing stores near the default location."
	default:
		return "Something went wrong while locating you. Showing stores near the default location."
	}
}

// LocationResult is the outcome of the latest acquisition. Coordinate is
// always usable: on failure it holds the configured default.
type LocationResult struct {
	State         LocationState `json:"state"`
	Coordinate    Coordinate    `json:"coordinate"`
	FailureReason FailureReason `json:"failure_reason,omitempty"`
	Warning       string        `json:"warning,omitempty"`
	Fallback      bool          `json:"fallback"`
	FromCache     bool          `json:"from_cache,omitempty"`
	ResolvedAt    *time.Time    `json:"resolved_at,omitempty"`
}

// PositionReport is what a browser posts after calling the Geolocation API:
// either a reading or the error code it received.
type PositionReport struct {
	Lat            *float64 `json:"lat,omitempty"`
	Lng            *float64 `json:"lng,omitempty"`
	AccuracyMeters float64  `json:"accuracy,omitempty"`
	ErrorCode      int      `json:"error_code,omitempty"`
	ErrorMessage   string   `json:"error_message,omitempty"`
	Unsupported    bool     `json:"unsupported,omitempty"`
}
