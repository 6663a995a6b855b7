package search

import (
	"sync"
	"time"
)

// Debouncer holds at most one pending evaluation. Each Trigger cancels the
// previous pending call and schedules a new one after the quiet delay.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending bool
}

// NewDebouncer returns a debouncer with the given quiet delay.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Delay returns the quiet delay.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Trigger supersedes any pending call and schedules fn. fn receives the
// generation it was scheduled under; callers that apply results under their
// own lock should check Current(gen) there, since a newer Trigger may land
// between the timer firing and fn taking that lock.
func (d *Debouncer) Trigger(fn func(gen uint64)) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = true

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.pending = false
		d.mu.Unlock()
		fn(gen)
	})
	return gen
}

// Current reports whether gen is the latest Trigger.
func (d *Debouncer) Current(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gen == d.gen
}

// Pending reports whether an evaluation is scheduled but has not fired.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Cancel drops the pending evaluation, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	d.pending = false
}
