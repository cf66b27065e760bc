package job

import "time"

// rateWindowSpan is the trailing window the transfer rate is derived from
const rateWindowSpan = 3 * time.Second

type rateSample struct {
	at    time.Time
	bytes int64
}

// rateWindow derives an instantaneous transfer rate from a trailing
// window of byte counters. Resetting the window (on resume) prevents a
// rate computed across a paused interval.
type rateWindow struct {
	samples []rateSample
}

// observe records the cumulative byte count at now and drops samples
// older than the window
func (w *rateWindow) observe(totalBytes int64, now time.Time) {
	w.samples = append(w.samples, rateSample{at: now, bytes: totalBytes})

	cutoff := now.Add(-rateWindowSpan)
	trim := 0
	for trim < len(w.samples)-1 && w.samples[trim].at.Before(cutoff) {
		trim++
	}
	w.samples = w.samples[trim:]
}

// rate returns bytes per second over the current window, 0 when the
// window holds fewer than two samples
func (w *rateWindow) rate() int64 {
	if len(w.samples) < 2 {
		return 0
	}
	first := w.samples[0]
	last := w.samples[len(w.samples)-1]
	elapsed := last.at.Sub(first.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return int64(float64(last.bytes-first.bytes) / elapsed)
}

// reset discards all samples
func (w *rateWindow) reset() {
	w.samples = w.samples[:0]
}
