// Package progress drives a simulated progress indicator.
//
// The value it reports is cosmetic: it advances on a timer, stops below 100
// and says nothing about backend progress. Completion is signalled only by
// the caller stopping the run with a final value.
package progress

import (
	"sync"
	"time"
)

type Options struct {
	Step     int
	Interval time.Duration
	Cap      int
}

type Simulator struct {
	step     int
	interval time.Duration
	cap      int
}

func New(opts Options) *Simulator {
	step := opts.Step
	if step <= 0 {
		step = 10
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	limit := opts.Cap
	if limit <= 0 || limit >= 100 {
		limit = 90
	}
	return &Simulator{step: step, interval: interval, cap: limit}
}

// Run is one started indicator.
type Run struct {
	mu       sync.Mutex
	value    int
	onChange func(int)
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// Start begins ticking from 0. onChange is called from the run's goroutine
// and, once, from Stop with the final value.
func (s *Simulator) Start(onChange func(int)) *Run {
	r := &Run{
		onChange: onChange,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	r.emit(0)

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.mu.Lock()
				if r.value >= s.cap {
					r.mu.Unlock()
					return
				}
				next := r.value + s.step
				if next > s.cap {
					next = s.cap
				}
				r.value = next
				r.mu.Unlock()
				r.emit(next)
			}
		}
	}()

	return r
}

// Stop halts the ticker, waits for its goroutine and reports final.
// Later calls are no-ops.
func (r *Run) Stop(final int) {
	r.once.Do(func() {
		close(r.stop)
		<-r.done

		r.mu.Lock()
		r.value = final
		r.mu.Unlock()
		r.emit(final)
	})
}

func (r *Run) Value() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

func (r *Run) emit(v int) {
	if r.onChange != nil {
		r.onChange(v)
	}
}
