package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harborleaf/storelocator/internal/domain/entities"
)

// PositionProvider is the host environment's source of the visitor's position
type PositionProvider interface {
	// CurrentPosition blocks until a position is available, the source
	// fails, or ctx is done.
	CurrentPosition(ctx context.Context, opts PositionOptions) (*entities.Position, error)
}

// PositionOptions mirrors the knobs of the browser Geolocation API
type PositionOptions struct {
	Timeout            time.Duration
	MaximumAge         time.Duration
	EnableHighAccuracy bool
}

// ErrUnsupported is returned by sources that cannot produce positions at all
var ErrUnsupported = errors.New("geolocation is not supported by this environment")

// PositionErrorCode follows the browser GeolocationPositionError codes
type PositionErrorCode int

const (
	PositionErrorPermissionDenied    PositionErrorCode = 1
	PositionErrorPositionUnavailable PositionErrorCode = 2
	PositionErrorTimeout             PositionErrorCode = 3
)

// PositionError is a failure reported by the position source itself
type PositionError struct {
	Code    PositionErrorCode
	Message string
}

func (e *PositionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("geolocation error code %d", e.Code)
	}
	return fmt.Sprintf("geolocation error code %d: %s", e.Code, e.Message)
}

// PositionReporter is implemented by sources fed from the outside, such as
// a browser posting its Geolocation API result.
type PositionReporter interface {
	Report(report entities.PositionReport) error
}

type clientIPKey struct{}

// WithClientIP stores the visitor's address for IP based position sources
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext returns the address stored by WithClientIP
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}
