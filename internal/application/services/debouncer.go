package services

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet period used when none is configured
const DefaultDebounce = 300 * time.Millisecond

// Debouncer coalesces bursts of submissions: only the value submitted last
// before a quiet period runs. Each run receives the sequence number of its
// submission so consumers can drop results older than ones already applied.
type Debouncer[T any] struct {
	delay time.Duration
	run   func(seq uint64, value T)

	mu      sync.Mutex
	timer   *time.Timer
	pending *T
	seq     uint64
	stopped bool
}

// NewDebouncer creates a debouncer calling run after delay of quiet
func NewDebouncer[T any](delay time.Duration, run func(seq uint64, value T)) *Debouncer[T] {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer[T]{delay: delay, run: run}
}

// Submit replaces the pending value and restarts the quiet period. It
// returns the sequence number assigned to value.
func (d *Debouncer[T]) Submit(value T) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	if d.stopped {
		return d.seq
	}
	v := value
	d.pending = &v
	seq := d.seq

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(seq) })
	return seq
}

func (d *Debouncer[T]) fire(seq uint64) {
	d.mu.Lock()
	if d.stopped || d.pending == nil || seq != d.seq {
		d.mu.Unlock()
		return
	}
	value := *d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	d.run(seq, value)
}

// Flush runs the pending value now, if any, and reports whether it ran
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if d.stopped || d.pending == nil {
		d.mu.Unlock()
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	value := *d.pending
	d.pending = nil
	seq := d.seq
	d.mu.Unlock()

	d.run(seq, value)
	return true
}

// Pending reports whether a value is waiting for its quiet period
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Stop drops the pending value; later submissions are ignored
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
