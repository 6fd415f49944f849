package feedsync

import (
	"sync"
	"time"
)

// DefaultDebounceInterval is the quiet period an input value must survive
// before it is promoted to an active search term.
const DefaultDebounceInterval = 500 * time.Millisecond

// Debouncer coalesces rapid input changes into a single delayed promotion.
// Each keystroke restarts the timer; only the value still standing when the
// quiet interval elapses reaches the promote callback. Cancellation of the
// query the promotion supersedes is the Pager's job.
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	timer    *time.Timer
	promote  func(term string)
	gen      uint64
	stopped  bool

	// promoteMu serializes deliveries. Timer.Stop returns false once the
	// callback has fired, so a superseded callback can still be in flight
	// when the next value is buffered; it re-checks its generation under
	// this lock and drops out instead of landing after the newer term.
	promoteMu sync.Mutex
}

func NewDebouncer(interval time.Duration, promote func(term string)) *Debouncer {
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}
	return &Debouncer{interval: interval, promote: promote}
}

// SetQuery buffers a new input value, restarting the quiet interval.
func (d *Debouncer) SetQuery(term string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.interval, func() {
		d.firePromotion(gen, term)
	})
}

// firePromotion delivers a timer's value unless a newer input superseded it.
func (d *Debouncer) firePromotion(gen uint64, term string) {
	d.promoteMu.Lock()
	defer d.promoteMu.Unlock()

	d.mu.Lock()
	current := !d.stopped && gen == d.gen
	d.mu.Unlock()
	if current {
		d.promote(term)
	}
}

// Flush promotes the pending value immediately. Used when the user submits
// explicitly instead of waiting out the interval.
func (d *Debouncer) Flush(term string) {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	stopped := d.stopped
	d.mu.Unlock()

	if stopped {
		return
	}
	d.promoteMu.Lock()
	defer d.promoteMu.Unlock()
	d.promote(term)
}

// Stop drops any pending promotion and refuses further input.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
