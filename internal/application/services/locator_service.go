package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/harborleaf/storelocator/internal/domain/entities"
	"github.com/harborleaf/storelocator/internal/domain/providers"
	"github.com/harborleaf/storelocator/internal/infrastructure/observability"
)

// LocatorConfig configures a Locator
type LocatorConfig struct {
	Timeout            time.Duration
	MaxAge             time.Duration
	Default            entities.Coordinate
	EnableHighAccuracy bool
}

// Locator runs geolocation acquisitions through a position provider and
// tracks the idle → requesting → resolved | failed state machine. Failures
// never surface as errors: the result falls back to the default coordinate
// with a warning for the visitor.
type Locator struct {
	provider providers.PositionProvider
	cfg      LocatorConfig
	metrics  *observability.Metrics
	now      func() time.Time

	mu         sync.Mutex
	generation uint64
	state      entities.LocationResult
	cached     *entities.Position
}

// NewLocator creates an idle locator
func NewLocator(provider providers.PositionProvider, cfg LocatorConfig, metrics *observability.Metrics) *Locator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Locator{
		provider: provider,
		cfg:      cfg,
		metrics:  metrics,
		now:      time.Now,
		state:    idleResult(cfg.Default),
	}
}

func idleResult(def entities.Coordinate) entities.LocationResult {
	return entities.LocationResult{State: entities.LocationIdle, Coordinate: def, Fallback: true}
}

// Provider returns the position source the locator reads from
func (l *Locator) Provider() providers.PositionProvider {
	return l.provider
}

// State returns a snapshot of the current state
func (l *Locator) State() entities.LocationResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Generation returns the most recently issued generation
func (l *Locator) Generation() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generation
}

// Reset returns to idle and forgets the cached position. Acquisitions in
// flight are discarded when they complete.
func (l *Locator) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generation++
	l.cached = nil
	l.state = idleResult(l.cfg.Default)
}

// Begin marks a new acquisition as issued and returns its generation. Only
// the most recently issued generation may change the state.
func (l *Locator) Begin() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generation++
	prev := l.state
	l.state = entities.LocationResult{
		State:      entities.LocationRequesting,
		Coordinate: prev.Coordinate,
		Fallback:   prev.Fallback,
	}
	return l.generation
}

// Locate issues and runs one acquisition
func (l *Locator) Locate(ctx context.Context) entities.LocationResult {
	return l.Run(ctx, l.Begin())
}

// Run performs the acquisition issued as generation. When a newer
// acquisition was issued meanwhile its outcome is dropped and the current
// state is returned instead.
func (l *Locator) Run(ctx context.Context, generation uint64) entities.LocationResult {
	ctx, span := observability.StartSpan(ctx, "geolocation.acquire")
	defer span.End()

	if result, ok := l.fromCache(generation); ok {
		observability.SetSpanAttributes(span, attribute.Bool("geolocation.cached", true))
		return result
	}

	if l.provider == nil {
		return l.finish(ctx, generation, nil, providers.ErrUnsupported)
	}

	acquireCtx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	pos, err := l.provider.CurrentPosition(acquireCtx, providers.PositionOptions{
		Timeout:            l.cfg.Timeout,
		MaximumAge:         l.cfg.MaxAge,
		EnableHighAccuracy: l.cfg.EnableHighAccuracy,
	})
	if err != nil {
		observability.RecordError(span, err)
	}
	return l.finish(ctx, generation, pos, err)
}

func (l *Locator) fromCache(generation uint64) (entities.LocationResult, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if generation != l.generation || l.cached == nil || l.cfg.MaxAge <= 0 {
		return entities.LocationResult{}, false
	}
	if l.now().Sub(l.cached.Timestamp) >= l.cfg.MaxAge {
		return entities.LocationResult{}, false
	}

	resolvedAt := l.cached.Timestamp
	l.state = entities.LocationResult{
		State:      entities.LocationResolved,
		Coordinate: l.cached.Coordinate,
		FromCache:  true,
		ResolvedAt: &resolvedAt,
	}
	return l.state, true
}

func (l *Locator) finish(ctx context.Context, generation uint64, pos *entities.Position, err error) entities.LocationResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	logger := observability.LoggerFromContext(ctx)
	if generation != l.generation {
		logger.Debug().Uint64("generation", generation).Uint64("current", l.generation).Msg("discarding stale geolocation result")
		return l.state
	}

	if err == nil && pos != nil && pos.Coordinate.Valid() {
		if pos.Timestamp.IsZero() {
			pos.Timestamp = l.now()
		}
		cached := *pos
		l.cached = &cached
		resolvedAt := pos.Timestamp
		l.state = entities.LocationResult{
			State:      entities.LocationResolved,
			Coordinate: pos.Coordinate,
			ResolvedAt: &resolvedAt,
		}
		observability.RecordGeolocationOutcome(ctx, l.metrics, string(entities.LocationResolved), "")
		return l.state
	}

	reason := ClassifyPositionError(err)
	l.state = entities.LocationResult{
		State:         entities.LocationFailed,
		Coordinate:    l.cfg.Default,
		FailureReason: reason,
		Warning:       reason.Message(),
		Fallback:      true,
	}
	logger.Warn().Err(err).Str("reason", string(reason)).Msg("geolocation failed, using default location")
	observability.RecordGeolocationOutcome(ctx, l.metrics, string(entities.LocationFailed), string(reason))
	return l.state
}

// ClassifyPositionError maps a provider failure onto the failure taxonomy
func ClassifyPositionError(err error) entities.FailureReason {
	var posErr *providers.PositionError
	switch {
	case errors.Is(err, providers.ErrUnsupported):
		return entities.FailureUnsupportedEnvironment
	case errors.As(err, &posErr):
		switch posErr.Code {
		case providers.PositionErrorPermissionDenied:
			return entities.FailurePermissionDenied
		case providers.PositionErrorPositionUnavailable:
			return entities.FailurePositionUnavailable
		case providers.PositionErrorTimeout:
			return entities.FailureTimeout
		}
		return entities.FailureUnknown
	case errors.Is(err, context.DeadlineExceeded):
		return entities.FailureTimeout
	default:
		return entities.FailureUnknown
	}
}
