package resource

import "time"

// slidingWindow is a trailing-time rate limit log. Timestamps are appended at
// the back and evicted from the front as they age out, so occupancy is always
// computed over the trailing span with O(1) amortized cost per operation.
type slidingWindow struct {
	span  time.Duration
	max   int
	times []time.Time // ring buffer
	head  int
	count int
}

func newSlidingWindow(max int, span time.Duration) *slidingWindow {
	return &slidingWindow{
		span:  span,
		max:   max,
		times: make([]time.Time, 8),
	}
}

// evict drops entries that have aged out of the trailing window.
func (w *slidingWindow) evict(now time.Time) {
	for w.count > 0 {
		front := w.times[w.head]
		if now.Sub(front) < w.span {
			return
		}
		w.head = (w.head + 1) % len(w.times)
		w.count--
	}
}

// allow reports whether another entry fits in the window right now.
func (w *slidingWindow) allow(now time.Time) bool {
	w.evict(now)
	return w.count < w.max
}

// record appends an entry at the back, growing the ring when full.
func (w *slidingWindow) record(now time.Time) {
	if w.count == len(w.times) {
		grown := make([]time.Time, len(w.times)*2)
		for i := 0; i < w.count; i++ {
			grown[i] = w.times[(w.head+i)%len(w.times)]
		}
		w.times = grown
		w.head = 0
	}
	w.times[(w.head+w.count)%len(w.times)] = now
	w.count++
}

// occupancy returns the number of in-window entries.
func (w *slidingWindow) occupancy(now time.Time) int {
	w.evict(now)
	return w.count
}
