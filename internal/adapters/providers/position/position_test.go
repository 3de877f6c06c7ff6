package position

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborleaf/storelocator/internal/adapters/cache"
	"github.com/harborleaf/storelocator/internal/domain/entities"
	"github.com/harborleaf/storelocator/internal/domain/providers"
	apperrors "github.com/harborleaf/storelocator/pkg/errors"
)

func floatPtr(v float64) *float64 { return &v }

func waitForPending(t *testing.T, p *ReportedProvider, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return p.Pending() == n }, time.Second, 5*time.Millisecond)
}

func TestReportedProvider_DeliversReport(t *testing.T) {
	p := NewReportedProvider()

	done := make(chan *entities.Position, 1)
	go func() {
		pos, err := p.CurrentPosition(context.Background(), providers.PositionOptions{})
		assert.NoError(t, err)
		done <- pos
	}()
	waitForPending(t, p, 1)

	require.NoError(t, p.Report(entities.PositionReport{Lat: floatPtr(22.62), Lng: floatPtr(120.31), AccuracyMeters: 15}))

	select {
	case pos := <-done:
		require.NotNil(t, pos)
		assert.Equal(t, entities.Coordinate{Lat: 22.62, Lng: 120.31}, pos.Coordinate)
		assert.Equal(t, 15.0, pos.AccuracyMeters)
	case <-time.After(time.Second):
		t.Fatal("report was not delivered")
	}
}

func TestReportedProvider_ErrorCodes(t *testing.T) {
	tests := []struct {
		name   string
		report entities.PositionReport
		check  func(t *testing.T, err error)
	}{
		{"permission denied", entities.PositionReport{ErrorCode: 1, ErrorMessage: "User denied Geolocation"}, func(t *testing.T, err error) {
			var pe *providers.PositionError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, providers.PositionErrorPermissionDenied, pe.Code)
		}},
		{"timeout", entities.PositionReport{ErrorCode: 3}, func(t *testing.T, err error) {
			var pe *providers.PositionError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, providers.PositionErrorTimeout, pe.Code)
		}},
		{"unsupported", entities.PositionReport{Unsupported: true}, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, providers.ErrUnsupported)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewReportedProvider()
			errc := make(chan error, 1)
			go func() {
				_, err := p.CurrentPosition(context.Background(), providers.PositionOptions{})
				errc <- err
			}()
			waitForPending(t, p, 1)
			require.NoError(t, p.Report(tt.report))
			tt.check(t, <-errc)
		})
	}
}

func TestReportedProvider_RejectsIncompleteReport(t *testing.T) {
	p := NewReportedProvider()
	err := p.Report(entities.PositionReport{Lat: floatPtr(10)})
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeValidation))

	err = p.Report(entities.PositionReport{Lat: floatPtr(100), Lng: floatPtr(0)})
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeValidation))
}

func TestReportedProvider_ReusesRecentReport(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	p := NewReportedProvider()
	p.now = func() time.Time { return now }

	require.NoError(t, p.Report(entities.PositionReport{Lat: floatPtr(1), Lng: floatPtr(2)}))

	pos, err := p.CurrentPosition(context.Background(), providers.PositionOptions{MaximumAge: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, entities.Coordinate{Lat: 1, Lng: 2}, pos.Coordinate)
}

func TestReportedProvider_EarlyDenialSettlesNextRequest(t *testing.T) {
	p := NewReportedProvider()

	// the browser answered before the request started waiting
	require.NoError(t, p.Report(entities.PositionReport{ErrorCode: 1}))

	_, err := p.CurrentPosition(context.Background(), providers.PositionOptions{MaximumAge: time.Minute})
	var pe *providers.PositionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, providers.PositionErrorPermissionDenied, pe.Code)

	// consumed once; the next request waits for a fresh report
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.CurrentPosition(ctx, providers.PositionOptions{MaximumAge: time.Minute})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReportedProvider_ContextEndsWait(t *testing.T) {
	p := NewReportedProvider()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.CurrentPosition(ctx, providers.PositionOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, p.Pending())
}

func TestMockProvider(t *testing.T) {
	coord := entities.Coordinate{Lat: 22.6273, Lng: 120.3014}
	pos, err := NewMockProvider(coord).CurrentPosition(context.Background(), providers.PositionOptions{})
	require.NoError(t, err)
	assert.Equal(t, coord, pos.Coordinate)

	boom := errors.New("boom")
	_, err = NewFailingMockProvider(boom).CurrentPosition(context.Background(), providers.PositionOptions{})
	assert.ErrorIs(t, err, boom)

	slow := &MockProvider{Coordinate: coord, Delay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = slow.CurrentPosition(ctx, providers.PositionOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIPProvider_LookupAndCache(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/json/203.0.113.9", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","lat":22.63,"lon":120.3,"city":"Kaohsiung","query":"203.0.113.9"}`))
	}))
	defer server.Close()

	p := NewIPProviderWithClient(server.URL+"/json", cache.NewMemoryAdapter(), server.Client())
	ctx := providers.WithClientIP(context.Background(), "203.0.113.9")

	pos, err := p.CurrentPosition(ctx, providers.PositionOptions{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, entities.Coordinate{Lat: 22.63, Lng: 120.3}, pos.Coordinate)

	_, err = p.CurrentPosition(ctx, providers.PositionOptions{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestIPProvider_FailureIsPositionUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"fail","message":"private range","query":"10.0.0.1"}`))
	}))
	defer server.Close()

	p := NewIPProviderWithClient(server.URL, nil, server.Client())
	_, err := p.CurrentPosition(providers.WithClientIP(context.Background(), "10.0.0.1"), providers.PositionOptions{})

	var pe *providers.PositionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, providers.PositionErrorPositionUnavailable, pe.Code)
	assert.Contains(t, pe.Message, "private range")
}

func TestIPProvider_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := NewIPProviderWithClient(server.URL, nil, server.Client())
	_, err := p.CurrentPosition(context.Background(), providers.PositionOptions{})

	var pe *providers.PositionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, providers.PositionErrorPositionUnavailable, pe.Code)
}
