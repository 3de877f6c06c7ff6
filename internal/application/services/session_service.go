package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/harborleaf/storelocator/internal/domain/entities"
	"github.com/harborleaf/storelocator/internal/domain/providers"
	"github.com/harborleaf/storelocator/internal/infrastructure/observability"
	apperrors "github.com/harborleaf/storelocator/pkg/errors"
)

// ViewMode is how the shell lays out results
type ViewMode string

const (
	ViewModeList  ViewMode = "list"
	ViewModeMap   ViewMode = "map"
	ViewModeSplit ViewMode = "split"
)

// Valid reports whether m is a known view mode
func (m ViewMode) Valid() bool {
	switch m {
	case ViewModeList, ViewModeMap, ViewModeSplit:
		return true
	}
	return false
}

// SessionRenderer is the map backend a session draws through
type SessionRenderer interface {
	providers.RecoverableRenderer
	OnStatusChange(fn func(providers.MapStatus))
	Start(ctx context.Context)
}

// PositionProviderFactory returns the position source of a new session
type PositionProviderFactory func() providers.PositionProvider

// RendererFactory returns the map backend of a new session
type RendererFactory func() (SessionRenderer, error)

// SessionConfig configures the session service
type SessionConfig struct {
	TTL       time.Duration
	Debounce  time.Duration
	Locator   LocatorConfig
	MapWidth  int
	MapHeight int
}

// SessionSnapshot is the state a shell client renders
type SessionSnapshot struct {
	ID            string                  `json:"id"`
	Filters       entities.SearchFilters  `json:"filters"`
	Location      entities.LocationResult `json:"location"`
	Results       *DiscoveryResult        `json:"results"`
	SelectedStore *entities.Store         `json:"selected_store,omitempty"`
	ViewMode      ViewMode                `json:"view_mode"`
	Loading       bool                    `json:"loading"`
	Warning       string                  `json:"warning,omitempty"`
	Map           providers.MapStatus     `json:"map"`
	Sequence      uint64                  `json:"sequence"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

type discoveryRun struct {
	seq     uint64
	filters entities.SearchFilters
}

// session holds the state of one shell
type session struct {
	id        string
	clientIP  string
	locator   *Locator
	renderer  SessionRenderer
	debouncer *Debouncer[discoveryRun]
	createdAt time.Time

	mu         sync.Mutex
	filters    entities.SearchFilters
	results    *DiscoveryResult
	selected   *entities.Store
	viewMode   ViewMode
	loading    bool
	mapStatus  providers.MapStatus
	nextSeq    uint64
	appliedSeq uint64
	surface    *providers.Surface
	lastActive time.Time
	closed     bool
}

// SessionService keeps presentation shell sessions and applies discovery,
// geolocation and map changes to them.
type SessionService struct {
	discovery   *DiscoveryService
	bus         providers.EventBus
	newProvider PositionProviderFactory
	newRenderer RendererFactory
	cfg         SessionConfig
	metrics     *observability.Metrics
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewSessionService creates a session service. bus may be nil.
func NewSessionService(
	discovery *DiscoveryService,
	bus providers.EventBus,
	newProvider PositionProviderFactory,
	newRenderer RendererFactory,
	cfg SessionConfig,
	metrics *observability.Metrics,
) *SessionService {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionService{
		discovery:   discovery,
		bus:         bus,
		newProvider: newProvider,
		newRenderer: newRenderer,
		cfg:         cfg,
		metrics:     metrics,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		sessions:    make(map[string]*session),
	}
}

// Create opens a session and runs the initial discovery around the default
// location. With locate set an acquisition starts right away.
func (s *SessionService) Create(ctx context.Context, clientIP string, filters *entities.SearchFilters, locate bool) (*SessionSnapshot, error) {
	initial := entities.DefaultSearchFilters()
	if filters != nil {
		initial = *filters
	}
	prepared, err := s.discovery.Prepare(initial)
	if err != nil {
		return nil, err
	}

	var provider providers.PositionProvider
	if s.newProvider != nil {
		provider = s.newProvider()
	}

	now := s.now()
	sess := &session{
		id:         uuid.NewString(),
		clientIP:   clientIP,
		locator:    NewLocator(provider, s.cfg.Locator, s.metrics),
		createdAt:  now,
		filters:    prepared,
		viewMode:   ViewModeSplit,
		lastActive: now,
	}
	sess.debouncer = NewDebouncer(s.cfg.Debounce, func(_ uint64, run discoveryRun) {
		s.runDiscovery(sess, run)
	})

	if s.newRenderer != nil {
		renderer, err := s.newRenderer()
		if err != nil {
			return nil, apperrors.NewInternalError("failed to create map renderer", err)
		}
		sess.renderer = renderer
		sess.mapStatus = renderer.Status()
		renderer.OnStatusChange(func(status providers.MapStatus) {
			s.onMapStatus(sess, status)
		})
	}

	result, err := s.discovery.Discover(ctx, prepared, sess.locator.State().Coordinate)
	if err != nil {
		if sess.renderer != nil {
			if closeErr := sess.renderer.Close(); closeErr != nil {
				log.Warn().Err(closeErr).Str("session_id", sess.id).Msg("failed to close map renderer")
			}
		}
		return nil, err
	}
	sess.results = result

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	if sess.renderer != nil {
		sess.renderer.Start(s.ctx)
	}

	observability.LoggerFromContext(ctx).Info().Str("session_id", sess.id).Msg("session created")

	if locate {
		if _, err := s.Locate(ctx, sess.id); err != nil {
			return nil, err
		}
	}
	return s.snapshot(sess), nil
}

// Get returns the current state of a session
func (s *SessionService) Get(ctx context.Context, id string) (*SessionSnapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return s.snapshot(sess), nil
}

// UpdateFilters records new filters and schedules a debounced discovery
// run. It returns the sequence number of the scheduled run.
func (s *SessionService) UpdateFilters(ctx context.Context, id string, filters entities.SearchFilters) (uint64, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	prepared, err := s.discovery.Prepare(filters)
	if err != nil {
		return 0, err
	}

	sess.mu.Lock()
	sess.filters = prepared
	sess.loading = true
	sess.nextSeq++
	seq := sess.nextSeq
	sess.debouncer.Submit(discoveryRun{seq: seq, filters: prepared})
	sess.mu.Unlock()

	s.publish(sess, entities.SessionEventFiltersScheduled, seq, map[string]interface{}{
		"filters": prepared,
	})
	return seq, nil
}

// Refresh runs discovery now with the latest filters, skipping the quiet
// period.
func (s *SessionService) Refresh(ctx context.Context, id string) (*SessionSnapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	s.rerun(sess)
	return s.snapshot(sess), nil
}

// rerun submits the latest filters under a new sequence and runs them
func (s *SessionService) rerun(sess *session) {
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return
	}
	sess.loading = true
	sess.nextSeq++
	sess.debouncer.Submit(discoveryRun{seq: sess.nextSeq, filters: sess.filters})
	sess.mu.Unlock()

	sess.debouncer.Flush()
}

func (s *SessionService) runDiscovery(sess *session, run discoveryRun) {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	reference := sess.locator.State().Coordinate
	result, err := s.discovery.Discover(ctx, run.filters, reference)

	sess.mu.Lock()
	if sess.closed || run.seq <= sess.appliedSeq {
		sess.mu.Unlock()
		log.Debug().Str("session_id", sess.id).Uint64("sequence", run.seq).Msg("discarding superseded discovery result")
		return
	}
	if err != nil {
		sess.loading = run.seq < sess.nextSeq
		sess.mu.Unlock()
		log.Error().Err(err).Str("session_id", sess.id).Msg("discovery run failed")
		return
	}
	sess.appliedSeq = run.seq
	sess.results = result
	sess.loading = run.seq < sess.nextSeq
	sess.mu.Unlock()

	s.publish(sess, entities.SessionEventResultsUpdated, run.seq, map[string]interface{}{
		"total": result.Total,
		"empty": result.Empty,
	})
}

// Locate starts a geolocation acquisition and returns the requesting
// state. The outcome is applied when it arrives, unless a newer
// acquisition was issued meanwhile.
func (s *SessionService) Locate(ctx context.Context, id string) (entities.LocationResult, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return entities.LocationResult{}, err
	}

	generation := sess.locator.Begin()
	state := sess.locator.State()
	s.publish(sess, entities.SessionEventLocationChanged, 0, map[string]interface{}{"location": state})

	runCtx := providers.WithClientIP(s.ctx, sess.clientIP)
	go func() {
		result := sess.locator.Run(runCtx, generation)
		if sess.locator.Generation() != generation {
			return
		}
		s.publish(sess, entities.SessionEventLocationChanged, 0, map[string]interface{}{"location": result})
		s.rerun(sess)
	}()

	return state, nil
}

// ReportPosition delivers a browser geolocation report to the session
func (s *SessionService) ReportPosition(ctx context.Context, id string, report entities.PositionReport) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}
	reporter, ok := sess.locator.Provider().(providers.PositionReporter)
	if !ok {
		return apperrors.NewValidationError("this session does not accept position reports")
	}
	return reporter.Report(report)
}

// SelectStore selects storeID, or clears the selection when storeID is 0
func (s *SessionService) SelectStore(ctx context.Context, id string, storeID int) (*SessionSnapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	if storeID == 0 {
		s.applySelection(sess, nil)
		return s.snapshot(sess), nil
	}

	reference := sess.locator.State().Coordinate
	store, err := s.discovery.Store(ctx, storeID, &reference)
	if err != nil {
		return nil, err
	}
	s.applySelection(sess, store)
	return s.snapshot(sess), nil
}

func (s *SessionService) applySelection(sess *session, store *entities.Store) {
	sess.mu.Lock()
	if store == nil {
		sess.selected = nil
	} else {
		selected := store.Clone()
		sess.selected = &selected
	}
	sess.mu.Unlock()

	data := map[string]interface{}{"store": nil}
	if store != nil {
		data["store"] = store
	}
	s.publish(sess, entities.SessionEventStoreSelected, 0, data)
}

// SetViewMode switches between list, map and split layouts
func (s *SessionService) SetViewMode(ctx context.Context, id string, mode ViewMode) (*SessionSnapshot, error) {
	if !mode.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown view mode %q", mode))
	}
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	sess.viewMode = mode
	sess.mu.Unlock()

	s.publish(sess, entities.SessionEventViewModeChanged, 0, map[string]interface{}{"view_mode": mode})
	return s.snapshot(sess), nil
}

// RenderMap draws the current results. The previous surface of the
// session is released.
func (s *SessionService) RenderMap(ctx context.Context, id string, width, height int, clickURL string) (*providers.Surface, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if sess.renderer == nil {
		return nil, apperrors.NewUnavailableError("map rendering is disabled", providers.ErrMapUnavailable)
	}

	ctx, span := observability.StartSpan(ctx, "map.render")
	defer span.End()

	if width <= 0 {
		width = s.cfg.MapWidth
	}
	if height <= 0 {
		height = s.cfg.MapHeight
	}

	sess.mu.Lock()
	var stores []entities.Store
	if sess.results != nil {
		stores = sess.results.Items
	}
	var selected *entities.Store
	if sess.selected != nil {
		sel := sess.selected.Clone()
		selected = &sel
	}
	sess.mu.Unlock()

	req := providers.RenderRequest{
		Stores:   stores,
		Selected: selected,
		OnStoreSelect: func(store entities.Store) {
			s.applySelection(sess, &store)
		},
		Width:    width,
		Height:   height,
		ClickURL: clickURL,
	}
	if loc := sess.locator.State(); loc.State == entities.LocationResolved {
		coord := loc.Coordinate
		req.UserLocation = &coord
	}

	surface, err := sess.renderer.Render(ctx, req)
	if err != nil {
		observability.RecordError(span, err)
		if errors.Is(err, providers.ErrMapUnavailable) {
			status := sess.renderer.Status()
			return nil, apperrors.NewUnavailableError(fmt.Sprintf("map backend %s is %s", status.Backend, status.State), err)
		}
		return nil, apperrors.NewExternalError("failed to render map", err)
	}

	sess.mu.Lock()
	previous := sess.surface
	sess.surface = surface
	sess.mu.Unlock()
	if previous != nil {
		previous.Release()
	}
	return surface, nil
}

// ClickMarker dispatches a click on the session's current map surface.
// When markerID is empty the marker at (x, y) is used.
func (s *SessionService) ClickMarker(ctx context.Context, id, markerID string, x, y float64) (*entities.Store, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	surface := sess.surface
	sess.mu.Unlock()
	if surface == nil {
		return nil, apperrors.NewValidationError("the map has not been rendered")
	}

	if markerID == "" {
		hit, ok := surface.HitTest(x, y)
		if !ok {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("no marker at %.0f,%.0f", x, y))
		}
		markerID = hit
	}

	store, err := surface.Click(markerID)
	switch {
	case err == nil:
		return &store, nil
	case errors.Is(err, providers.ErrUnknownMarker):
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("marker %s not found", markerID))
	default:
		return nil, apperrors.NewValidationError(err.Error())
	}
}

// RetryMap re-initialises a failed map backend
func (s *SessionService) RetryMap(ctx context.Context, id string) (providers.MapStatus, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return providers.MapStatus{}, err
	}
	if sess.renderer == nil {
		return providers.MapStatus{}, apperrors.NewUnavailableError("map rendering is disabled", providers.ErrMapUnavailable)
	}
	if err := sess.renderer.Retry(ctx); err != nil {
		log.Warn().Err(err).Str("session_id", sess.id).Msg("map backend retry failed")
	}
	return sess.renderer.Status(), nil
}

func (s *SessionService) onMapStatus(sess *session, status providers.MapStatus) {
	sess.mu.Lock()
	sess.mapStatus = status
	sess.mu.Unlock()
	s.publish(sess, entities.SessionEventMapStateChanged, 0, map[string]interface{}{"map": status})
}

// Subscribe streams the events of a session until ctx is done
func (s *SessionService) Subscribe(ctx context.Context, id string) (<-chan *entities.SessionEvent, error) {
	if _, err := s.lookup(id); err != nil {
		return nil, err
	}
	if s.bus == nil {
		return nil, apperrors.NewUnavailableError("session events are disabled", nil)
	}
	return s.bus.Subscribe(ctx, providers.GetSessionChannel(id))
}

// Close disposes a session, its pending runs and its map surfaces
func (s *SessionService) Close(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("session %s not found", id))
	}

	s.dispose(sess)
	s.publish(sess, entities.SessionEventClosed, 0, nil)
	observability.LoggerFromContext(ctx).Info().Str("session_id", id).Msg("session closed")
	return nil
}

func (s *SessionService) dispose(sess *session) {
	sess.debouncer.Stop()

	sess.mu.Lock()
	sess.closed = true
	surface := sess.surface
	sess.surface = nil
	sess.mu.Unlock()

	if surface != nil {
		surface.Release()
	}
	if sess.renderer != nil {
		if err := sess.renderer.Close(); err != nil {
			log.Warn().Err(err).Str("session_id", sess.id).Msg("failed to close map renderer")
		}
	}
}

// ExpireIdle closes sessions idle for longer than the TTL and returns how
// many were closed.
func (s *SessionService) ExpireIdle(ctx context.Context) int {
	cutoff := s.now().Add(-s.cfg.TTL)

	s.mu.RLock()
	var expired []string
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := sess.lastActive.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()

	closed := 0
	for _, id := range expired {
		if err := s.Close(ctx, id); err == nil {
			closed++
		}
	}
	if closed > 0 {
		log.Info().Int("sessions", closed).Msg("expired idle sessions")
	}
	return closed
}

// StartJanitor expires idle sessions periodically until ctx is done
func (s *SessionService) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.cfg.TTL / 2
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.ExpireIdle(ctx)
			}
		}
	}()
}

// Count returns the number of open sessions
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Shutdown closes every session and stops background work
func (s *SessionService) Shutdown(ctx context.Context) {
	s.cancel()

	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for _, sess := range sessions {
		s.dispose(sess)
	}
}

func (s *SessionService) lookup(id string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("session %s not found", id))
	}

	sess.mu.Lock()
	sess.lastActive = s.now()
	sess.mu.Unlock()
	return sess, nil
}

func (s *SessionService) snapshot(sess *session) *SessionSnapshot {
	location := sess.locator.State()

	sess.mu.Lock()
	defer sess.mu.Unlock()

	snap := &SessionSnapshot{
		ID:        sess.id,
		Filters:   sess.filters,
		Location:  location,
		Results:   sess.results,
		ViewMode:  sess.viewMode,
		Loading:   sess.loading,
		Warning:   location.Warning,
		Map:       sess.mapStatus,
		Sequence:  sess.appliedSeq,
		CreatedAt: sess.createdAt,
		UpdatedAt: sess.lastActive,
	}
	if sess.selected != nil {
		selected := sess.selected.Clone()
		snap.SelectedStore = &selected
	}
	return snap
}

func (s *SessionService) publish(sess *session, eventType entities.SessionEventType, seq uint64, data map[string]interface{}) {
	if s.bus == nil {
		return
	}
	event := entities.NewSessionEvent(sess.id, eventType, data)
	event.Sequence = seq
	if err := s.bus.Publish(s.ctx, providers.GetSessionChannel(sess.id), event); err != nil {
		log.Warn().Err(err).Str("session_id", sess.id).Str("event_type", string(eventType)).Msg("failed to publish session event")
	}
}
