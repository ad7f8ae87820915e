package collector

import (
	"sort"
	"sync"
	"time"
)

const defaultMaxObservations = 10000

type observation struct {
	at       time.Time
	duration time.Duration
	failed   bool
}

// RequestRecorder keeps the request observations of a rolling window and
// derives error rate, p95 latency and throughput from them. The API request
// middleware feeds it.
type RequestRecorder struct {
	window time.Duration
	max    int
	now    func() time.Time

	mu  sync.Mutex
	obs []observation
}

// RequestStats is the window summary. ErrorRate is a fraction in [0, 1].
type RequestStats struct {
	Count         int
	ErrorRate     float64
	LatencyP95Ms  float64
	ThroughputRps float64
}

func NewRequestRecorder(window time.Duration) *RequestRecorder {
	if window <= 0 {
		window = time.Minute
	}
	return &RequestRecorder{
		window: window,
		max:    defaultMaxObservations,
		now:    time.Now,
	}
}

// Observe records one finished request. Status codes >= 500 count as errors.
func (r *RequestRecorder) Observe(duration time.Duration, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.obs = append(r.obs, observation{at: r.now(), duration: duration, failed: status >= 500})
	if len(r.obs) > r.max {
		r.obs = r.obs[len(r.obs)-r.max:]
	}
}

func (r *RequestRecorder) Stats() RequestStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.window)
	i := sort.Search(len(r.obs), func(i int) bool { return r.obs[i].at.After(cutoff) })
	r.obs = r.obs[i:]

	if len(r.obs) == 0 {
		return RequestStats{}
	}

	durations := make([]float64, len(r.obs))
	var failed int
	for i, o := range r.obs {
		durations[i] = float64(o.duration) / float64(time.Millisecond)
		if o.failed {
			failed++
		}
	}
	sort.Float64s(durations)

	idx := int(float64(len(durations))*0.95+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(durations) {
		idx = len(durations) - 1
	}

	return RequestStats{
		Count:         len(r.obs),
		ErrorRate:     float64(failed) / float64(len(r.obs)),
		LatencyP95Ms:  durations[idx],
		ThroughputRps: float64(len(r.obs)) / r.window.Seconds(),
	}
}
