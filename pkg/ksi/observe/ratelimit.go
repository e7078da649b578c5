package observe

import "time"

// rateWindow is a rolling delivery counter. Not safe for concurrent
// use; the owning subscription serializes access.
type rateWindow struct {
	max    int
	window time.Duration
	times  []time.Time
}

func newRateWindow(rl RateLimit) *rateWindow {
	return &rateWindow{max: rl.MaxEvents, window: rl.Window()}
}

// allow reports whether a delivery fits the window, recording it if so.
// Entries older than the window are pruned first.
func (w *rateWindow) allow(now time.Time) bool {
	cutoff := now.Add(-w.window)
	keep := 0
	for _, t := range w.times {
		if t.After(cutoff) {
			w.times[keep] = t
			keep++
		}
	}
	w.times = w.times[:keep]

	if len(w.times) >= w.max {
		return false
	}
	w.times = append(w.times, now)
	return true
}
