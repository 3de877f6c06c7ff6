package maps

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harborleaf/storelocator/internal/domain/providers"
	"github.com/harborleaf/storelocator/internal/infrastructure/observability"
	"github.com/harborleaf/storelocator/pkg/retry"
)

// ResilientRenderer wraps a backend so that init failures become a failed
// state the visitor can retry, optionally rendering through a fallback
// backend meanwhile. It never panics on behalf of the backend.
type ResilientRenderer struct {
	primary  providers.MapRenderer
	fallback providers.MapRenderer
	retryCfg retry.Config
	metrics  *observability.Metrics

	mu       sync.Mutex
	status   providers.MapStatus
	active   providers.MapRenderer
	closed   bool
	onChange func(providers.MapStatus)
}

// NewResilientRenderer wraps primary. fallback may be nil.
func NewResilientRenderer(primary, fallback providers.MapRenderer, retryCfg retry.Config, metrics *observability.Metrics) *ResilientRenderer {
	return &ResilientRenderer{
		primary:  primary,
		fallback: fallback,
		retryCfg: retryCfg,
		metrics:  metrics,
		status: providers.MapStatus{
			Backend: primary.Name(),
			State:   providers.MapStateLoading,
		},
	}
}

var _ providers.RecoverableRenderer = (*ResilientRenderer)(nil)

// Name returns the primary backend name
func (r *ResilientRenderer) Name() string {
	return r.primary.Name()
}

// OnStatusChange registers fn to receive every status transition
func (r *ResilientRenderer) OnStatusChange(fn func(providers.MapStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Status returns a snapshot of the lifecycle state
func (r *ResilientRenderer) Status() providers.MapStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Init initialises the primary backend with backoff. A failure leaves the
// renderer failed, or ready on the fallback when one is configured; the
// error is returned only when nothing can render.
func (r *ResilientRenderer) Init(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return providers.ErrMapUnavailable
	}
	current := r.active
	r.mu.Unlock()
	r.transition(func(s *providers.MapStatus) {
		s.State = providers.MapStateLoading
		s.Error = ""
	}, current)

	attempts := 0
	err := retry.Do(ctx, r.retryCfg, func(ctx context.Context, attempt int) error {
		attempts = attempt
		return safeInit(ctx, r.primary)
	}, func(attempt int, err error, next time.Duration) {
		log.Warn().Err(err).
			Str("backend", r.primary.Name()).
			Int("attempt", attempt).
			Dur("retry_in", next).
			Msg("map backend init failed, retrying")
	})

	if err == nil {
		r.transition(func(s *providers.MapStatus) {
			s.State = providers.MapStateReady
			s.Attempts += attempts
			s.Fallback = false
		}, r.primary)
		log.Info().Str("backend", r.primary.Name()).Msg("map backend ready")
		return nil
	}

	observability.RecordMapInitFailure(ctx, r.metrics, r.primary.Name())
	log.Warn().Err(err).Str("backend", r.primary.Name()).Msg("map backend unavailable")

	if r.fallback != nil {
		if fbErr := safeInit(ctx, r.fallback); fbErr == nil {
			r.transition(func(s *providers.MapStatus) {
				s.State = providers.MapStateReady
				s.Error = err.Error()
				s.Attempts += attempts
				s.Fallback = true
			}, r.fallback)
			log.Info().Str("backend", r.primary.Name()).Str("fallback", r.fallback.Name()).Msg("rendering through fallback backend")
			return nil
		}
	}

	r.transition(func(s *providers.MapStatus) {
		s.State = providers.MapStateFailed
		s.Error = err.Error()
		s.Attempts += attempts
		s.Fallback = false
	}, nil)
	return err
}

// Retry re-runs initialisation unless the primary backend is already ready
func (r *ResilientRenderer) Retry(ctx context.Context) error {
	status := r.Status()
	if status.State == providers.MapStateReady && !status.Fallback {
		return nil
	}
	return r.Init(ctx)
}

// Start runs Init in the background
func (r *ResilientRenderer) Start(ctx context.Context) {
	go func() {
		_ = r.Init(ctx)
	}()
}

// Render draws through the active backend. ErrMapUnavailable is returned
// while failed or before the first successful init.
func (r *ResilientRenderer) Render(ctx context.Context, req providers.RenderRequest) (surface *providers.Surface, err error) {
	r.mu.Lock()
	active := r.active
	closed := r.closed
	r.mu.Unlock()

	if closed || active == nil {
		return nil, providers.ErrMapUnavailable
	}

	defer func() {
		if p := recover(); p != nil {
			surface, err = nil, fmt.Errorf("%w: %s renderer panicked: %v", providers.ErrMapUnavailable, active.Name(), p)
		}
	}()

	start := time.Now()
	surface, err = active.Render(ctx, req)
	observability.RecordMapRender(ctx, r.metrics, active.Name(), time.Since(start))
	return surface, err
}

// Close disposes both backends and every surface they produced
func (r *ResilientRenderer) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.active = nil
	r.mu.Unlock()

	var errs []error
	errs = append(errs, r.primary.Close())
	if r.fallback != nil {
		errs = append(errs, r.fallback.Close())
	}
	return errors.Join(errs...)
}

func (r *ResilientRenderer) transition(update func(*providers.MapStatus), active providers.MapRenderer) {
	r.mu.Lock()
	update(&r.status)
	if r.closed {
		active = nil
	}
	r.active = active
	status := r.status
	onChange := r.onChange
	r.mu.Unlock()

	if onChange != nil {
		onChange(status)
	}
}

func safeInit(ctx context.Context, renderer providers.MapRenderer) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s init panicked: %v", renderer.Name(), p)
		}
	}()
	return renderer.Init(ctx)
}
