package services_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborleaf/storelocator/internal/application/services"
)

type debounceRecorder struct {
	mu     sync.Mutex
	seqs   []uint64
	values []string
}

func (r *debounceRecorder) record(seq uint64, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seqs = append(r.seqs, seq)
	r.values = append(r.values, value)
}

func (r *debounceRecorder) snapshot() ([]uint64, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.seqs...), append([]string(nil), r.values...)
}

func TestDebouncer_LatestWins(t *testing.T) {
	rec := &debounceRecorder{}
	d := services.NewDebouncer(30*time.Millisecond, rec.record)
	defer d.Stop()

	d.Submit("k")
	d.Submit("ka")
	last := d.Submit("kao")

	require.Eventually(t, func() bool {
		_, values := rec.snapshot()
		return len(values) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	seqs, values := rec.snapshot()
	assert.Equal(t, []string{"kao"}, values)
	assert.Equal(t, []uint64{last}, seqs)
	assert.False(t, d.Pending())
}

func TestDebouncer_SeparateBurstsRunSeparately(t *testing.T) {
	rec := &debounceRecorder{}
	d := services.NewDebouncer(20*time.Millisecond, rec.record)
	defer d.Stop()

	d.Submit("a")
	require.Eventually(t, func() bool { _, v := rec.snapshot(); return len(v) == 1 }, time.Second, 5*time.Millisecond)
	d.Submit("b")
	require.Eventually(t, func() bool { _, v := rec.snapshot(); return len(v) == 2 }, time.Second, 5*time.Millisecond)

	seqs, values := rec.snapshot()
	assert.Equal(t, []string{"a", "b"}, values)
	assert.Less(t, seqs[0], seqs[1])
}

func TestDebouncer_FlushAndStop(t *testing.T) {
	rec := &debounceRecorder{}
	d := services.NewDebouncer(time.Hour, rec.record)

	assert.False(t, d.Flush())
	d.Submit("now")
	assert.True(t, d.Pending())
	assert.True(t, d.Flush())

	_, values := rec.snapshot()
	assert.Equal(t, []string{"now"}, values)

	d.Submit("dropped")
	d.Stop()
	assert.False(t, d.Flush())
	d.Submit("ignored")
	assert.False(t, d.Pending())

	_, values = rec.snapshot()
	assert.Equal(t, []string{"now"}, values)
}
