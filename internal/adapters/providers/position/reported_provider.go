package position

import (
	"context"
	"sync"
	"time"

	"github.com/harborleaf/storelocator/internal/domain/entities"
	"github.com/harborleaf/storelocator/internal/domain/providers"
	apperrors "github.com/harborleaf/storelocator/pkg/errors"
)

type reportOutcome struct {
	position *entities.Position
	err      error
	at       time.Time
}

func (o *reportOutcome) result() (*entities.Position, error) {
	if o.position == nil {
		return nil, o.err
	}
	pos := *o.position
	return &pos, nil
}

// ReportedProvider serves positions that a browser posts after running the
// Geolocation API. A pending CurrentPosition waits for the next report; a
// report that arrives while nobody waits settles the next request.
type ReportedProvider struct {
	mu        sync.Mutex
	waiters   []chan reportOutcome
	latest    *reportOutcome
	unclaimed *reportOutcome
	now       func() time.Time
}

// NewReportedProvider creates a provider with no report yet
func NewReportedProvider() *ReportedProvider {
	return &ReportedProvider{now: time.Now}
}

var (
	_ providers.PositionProvider = (*ReportedProvider)(nil)
	_ providers.PositionReporter = (*ReportedProvider)(nil)
)

// CurrentPosition returns an unclaimed report, failures included, then a
// reading reported within opts.MaximumAge, or waits for the next report.
func (p *ReportedProvider) CurrentPosition(ctx context.Context, opts providers.PositionOptions) (*entities.Position, error) {
	p.mu.Lock()
	if outcome := p.unclaimed; outcome != nil {
		p.unclaimed = nil
		p.mu.Unlock()
		return outcome.result()
	}
	if p.latest != nil && p.latest.position != nil && opts.MaximumAge > 0 &&
		p.now().Sub(p.latest.at) < opts.MaximumAge {
		pos := *p.latest.position
		p.mu.Unlock()
		return &pos, nil
	}
	waiter := make(chan reportOutcome, 1)
	p.waiters = append(p.waiters, waiter)
	p.mu.Unlock()

	select {
	case outcome := <-waiter:
		return outcome.result()
	case <-ctx.Done():
		p.dropWaiter(waiter)
		return nil, ctx.Err()
	}
}

// Report delivers a browser result to every pending request
func (p *ReportedProvider) Report(report entities.PositionReport) error {
	outcome, err := p.outcomeOf(report)
	if err != nil {
		return err
	}

	p.mu.Lock()
	waiters := p.waiters
	p.waiters = nil
	p.latest = &outcome
	p.unclaimed = nil
	if len(waiters) == 0 {
		p.unclaimed = &outcome
	}
	p.mu.Unlock()

	for _, w := range waiters {
		w <- outcome
	}
	return nil
}

func (p *ReportedProvider) outcomeOf(report entities.PositionReport) (reportOutcome, error) {
	now := p.now()
	switch {
	case report.Unsupported:
		return reportOutcome{err: providers.ErrUnsupported, at: now}, nil
	case report.ErrorCode != 0:
		return reportOutcome{
			err: &providers.PositionError{Code: providers.PositionErrorCode(report.ErrorCode), Message: report.ErrorMessage},
			at:  now,
		}, nil
	case report.Lat == nil || report.Lng == nil:
		return reportOutcome{}, apperrors.NewValidationError("report needs lat and lng, an error_code, or unsupported")
	}

	coord := entities.Coordinate{Lat: *report.Lat, Lng: *report.Lng}
	if !coord.Valid() {
		return reportOutcome{}, apperrors.NewValidationError("reported coordinate out of range")
	}
	return reportOutcome{
		position: &entities.Position{Coordinate: coord, AccuracyMeters: report.AccuracyMeters, Timestamp: now},
		at:       now,
	}, nil
}

func (p *ReportedProvider) dropWaiter(waiter chan reportOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == waiter {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// Pending returns the number of requests waiting for a report
func (p *ReportedProvider) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}
