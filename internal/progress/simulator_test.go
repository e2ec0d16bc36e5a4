package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu     sync.Mutex
	values []int
}

func (r *recorder) add(v int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *recorder) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.values...)
}

func TestRunStopsAtCap(t *testing.T) {
	rec := &recorder{}
	sim := New(Options{Step: 10, Interval: time.Millisecond, Cap: 90})

	run := sim.Start(rec.add)
	require.Eventually(t, func() bool { return run.Value() == 90 }, time.Second, time.Millisecond)

	// Give the goroutine a chance to overshoot if it were going to.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 90, run.Value())

	run.Stop(100)
	assert.Equal(t, []int{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, rec.snapshot())
}

func TestRunStopResets(t *testing.T) {
	rec := &recorder{}
	sim := New(Options{Step: 10, Interval: time.Millisecond})

	run := sim.Start(rec.add)
	require.Eventually(t, func() bool { return run.Value() >= 20 }, time.Second, time.Millisecond)
	run.Stop(0)
	run.Stop(100)

	values := rec.snapshot()
	assert.Equal(t, 0, values[len(values)-1])
	assert.Equal(t, 0, run.Value())
	for _, v := range values[:len(values)-1] {
		assert.Less(t, v, 100)
	}
}

func TestRunStopBeforeFirstTick(t *testing.T) {
	rec := &recorder{}
	sim := New(Options{Interval: time.Hour})

	run := sim.Start(rec.add)
	run.Stop(100)
	assert.Equal(t, []int{0, 100}, rec.snapshot())
}

func TestDefaults(t *testing.T) {
	sim := New(Options{Cap: 120})
	assert.Equal(t, 10, sim.step)
	assert.Equal(t, 500*time.Millisecond, sim.interval)
	assert.Equal(t, 90, sim.cap)
}
