package position

import (
	"context"
	"time"

	"github.com/harborleaf/storelocator/internal/domain/entities"
	"github.com/harborleaf/storelocator/internal/domain/providers"
)

// MockProvider returns a fixed position or a fixed failure
type MockProvider struct {
	Coordinate entities.Coordinate
	Err        error
	Delay      time.Duration
}

// NewMockProvider creates a provider that always reports coord
func NewMockProvider(coord entities.Coordinate) *MockProvider {
	return &MockProvider{Coordinate: coord}
}

// NewFailingMockProvider creates a provider that always fails with err
func NewFailingMockProvider(err error) *MockProvider {
	return &MockProvider{Err: err}
}

// CurrentPosition implements providers.PositionProvider
func (m *MockProvider) CurrentPosition(ctx context.Context, opts providers.PositionOptions) (*entities.Position, error) {
	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &entities.Position{Coordinate: m.Coordinate, AccuracyMeters: 10, Timestamp: time.Now()}, nil
}
