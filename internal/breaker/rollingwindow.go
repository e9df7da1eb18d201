package breaker

import (
	"sync"
	"time"
)

const (
	bucketCount    = 6
	bucketDuration = 10 * time.Second
)

type bucket struct {
	successes int
	failures  int
}

// rollingWindow tracks completed-call counts over a 60s window divided into
// 6 buckets of 10s. gobreaker's own Counts reset wholesale at its Interval
// boundary; this decays bucket by bucket instead, which is what lets
// ReadyToTrip consult "the last 60 seconds" rather than "since the last
// full reset".
type rollingWindow struct {
	mu      sync.Mutex
	buckets [bucketCount]bucket
	idx     int
	last    time.Time
	now     func() time.Time
}

func newRollingWindow(now func() time.Time) *rollingWindow {
	if now == nil {
		now = time.Now
	}
	return &rollingWindow{now: now, last: now()}
}

// advance rotates the ring buffer forward based on elapsed time, clearing
// buckets whose window has fully expired.
func (w *rollingWindow) advance() {
	elapsed := w.now().Sub(w.last)
	if elapsed < bucketDuration {
		return
	}
	steps := int(elapsed / bucketDuration)
	if steps > bucketCount {
		steps = bucketCount
	}
	for i := 0; i < steps; i++ {
		w.idx = (w.idx + 1) % bucketCount
		w.buckets[w.idx] = bucket{}
	}
	w.last = w.last.Add(time.Duration(steps) * bucketDuration)
}

func (w *rollingWindow) record(success bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	if success {
		w.buckets[w.idx].successes++
	} else {
		w.buckets[w.idx].failures++
	}
}

// snapshot returns the total completed calls and failures across the
// window.
func (w *rollingWindow) snapshot() (completed, failures int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	for _, b := range w.buckets {
		completed += b.successes + b.failures
		failures += b.failures
	}
	return completed, failures
}

// reset clears all buckets, used when the breaker closes after a successful
// half-open trial.
func (w *rollingWindow) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buckets = [bucketCount]bucket{}
	w.last = w.now()
	w.idx = 0
}
