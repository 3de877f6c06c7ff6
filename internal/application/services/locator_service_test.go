package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborleaf/storelocator/internal/adapters/providers/position"
	"github.com/harborleaf/storelocator/internal/application/services"
	"github.com/harborleaf/storelocator/internal/domain/entities"
	"github.com/harborleaf/storelocator/internal/domain/providers"
)

var defaultCoordinate = entities.Coordinate{Lat: 22.6273, Lng: 120.3014}

// countingProvider counts calls and returns a fixed position
type countingProvider struct {
	mu    sync.Mutex
	calls int
	coord entities.Coordinate
}

func (p *countingProvider) CurrentPosition(ctx context.Context, opts providers.PositionOptions) (*entities.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return &entities.Position{Coordinate: p.coord, Timestamp: time.Now()}, nil
}

func newLocator(provider providers.PositionProvider, timeout time.Duration) *services.Locator {
	return services.NewLocator(provider, services.LocatorConfig{
		Timeout: timeout,
		MaxAge:  5 * time.Minute,
		Default: defaultCoordinate,
	}, nil)
}

func TestLocator_StartsIdle(t *testing.T) {
	l := newLocator(position.NewMockProvider(entities.Coordinate{Lat: 1, Lng: 1}), time.Second)
	state := l.State()
	assert.Equal(t, entities.LocationIdle, state.State)
	assert.Equal(t, defaultCoordinate, state.Coordinate)
}

func TestLocator_Resolves(t *testing.T) {
	coord := entities.Coordinate{Lat: 22.66, Lng: 120.30}
	l := newLocator(position.NewMockProvider(coord), time.Second)

	result := l.Locate(context.Background())

	assert.Equal(t, entities.LocationResolved, result.State)
	assert.Equal(t, coord, result.Coordinate)
	assert.False(t, result.Fallback)
	assert.Empty(t, result.Warning)
	require.NotNil(t, result.ResolvedAt)
	assert.Equal(t, result, l.State())
}

func TestLocator_Failures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason entities.FailureReason
	}{
		{"permission denied", &providers.PositionError{Code: providers.PositionErrorPermissionDenied}, entities.FailurePermissionDenied},
		{"position unavailable", &providers.PositionError{Code: providers.PositionErrorPositionUnavailable}, entities.FailurePositionUnavailable},
		{"timeout code", &providers.PositionError{Code: providers.PositionErrorTimeout}, entities.FailureTimeout},
		{"unsupported", providers.ErrUnsupported, entities.FailureUnsupportedEnvironment},
		{"deadline", context.DeadlineExceeded, entities.FailureTimeout},
		{"anything else", errors.New("boom"), entities.FailureUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLocator(position.NewFailingMockProvider(tt.err), time.Second)

			result := l.Locate(context.Background())

			assert.Equal(t, entities.LocationFailed, result.State)
			assert.Equal(t, tt.reason, result.FailureReason)
			assert.Equal(t, defaultCoordinate, result.Coordinate)
			assert.True(t, result.Fallback)
			assert.Equal(t, tt.reason.Message(), result.Warning)
		})
	}
}

func TestLocator_TimeoutBoundsAcquisition(t *testing.T) {
	slow := &position.MockProvider{Coordinate: entities.Coordinate{Lat: 1, Lng: 1}, Delay: time.Second}
	l := newLocator(slow, 20*time.Millisecond)

	start := time.Now()
	result := l.Locate(context.Background())

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, entities.LocationFailed, result.State)
	assert.Equal(t, entities.FailureTimeout, result.FailureReason)
}

func TestLocator_NoProviderIsUnsupported(t *testing.T) {
	l := newLocator(nil, time.Second)
	result := l.Locate(context.Background())
	assert.Equal(t, entities.FailureUnsupportedEnvironment, result.FailureReason)
	assert.Equal(t, defaultCoordinate, result.Coordinate)
}

func TestLocator_ReusesRecentPosition(t *testing.T) {
	provider := &countingProvider{coord: entities.Coordinate{Lat: 22.7, Lng: 120.3}}
	l := newLocator(provider, time.Second)

	first := l.Locate(context.Background())
	second := l.Locate(context.Background())

	assert.Equal(t, 1, provider.calls)
	assert.False(t, first.FromCache)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Coordinate, second.Coordinate)

	l.Reset()
	assert.Equal(t, entities.LocationIdle, l.State().State)
	l.Locate(context.Background())
	assert.Equal(t, 2, provider.calls)
}

func TestLocator_LatestIssuedWins(t *testing.T) {
	reported := position.NewReportedProvider()
	l := newLocator(reported, 2*time.Second)

	staleGen := l.Begin()
	staleDone := make(chan entities.LocationResult, 1)
	go func() { staleDone <- l.Run(context.Background(), staleGen) }()
	require.Eventually(t, func() bool { return reported.Pending() == 1 }, time.Second, 5*time.Millisecond)

	latestGen := l.Begin()
	assert.Greater(t, latestGen, staleGen)
	assert.Equal(t, entities.LocationRequesting, l.State().State)

	// the stale request receives a report and must not change the state
	lat, lng := 10.0, 10.0
	require.NoError(t, reported.Report(entities.PositionReport{Lat: &lat, Lng: &lng}))
	stale := <-staleDone
	assert.Equal(t, entities.LocationRequesting, stale.State)
	assert.Equal(t, entities.LocationRequesting, l.State().State)

	// the report is recent enough to serve the latest request directly
	latest := l.Run(context.Background(), latestGen)
	assert.Equal(t, entities.LocationResolved, latest.State)
	assert.Equal(t, entities.Coordinate{Lat: 10, Lng: 10}, latest.Coordinate)
	assert.Equal(t, latest, l.State())
}

func TestClassifyPositionError_UnknownCode(t *testing.T) {
	assert.Equal(t, entities.FailureUnknown, services.ClassifyPositionError(&providers.PositionError{Code: 42}))
}
