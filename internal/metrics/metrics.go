// Package metrics implements the request counters and latency
// histogram behind /manage/stats (component H), grounded on
// observability.MetricsManager's buffered-recorder shape but
// generalized from a SQLite-backed timeseries store to an in-memory
// per-route map of cumulative counters, updated synchronously on each
// request: /manage/stats is live introspection of the running
// process, not a queryable historical dataset, so persisting every
// datapoint to a second database would add a dependency nothing reads
// back.
package metrics

import (
	"net/http"
	"sort"
	"sync"
	"time"
)

// histogramBounds are the latency histogram's upper bounds in
// milliseconds; the final bucket catches everything above the last
// bound.
var histogramBounds = []float64{5, 25, 100, 500, 1000, 5000}

// routeStats accumulates counts and a latency histogram for one route.
type routeStats struct {
	count      int64
	errorCount int64
	totalMs    float64
	buckets    []int64
}

// RouteSnapshot is one route's stats as of Snapshot(), for JSON
// serialization on /manage/stats.
type RouteSnapshot struct {
	Route      string  `json:"route"`
	Count      int64   `json:"count"`
	ErrorCount int64   `json:"error_count"`
	AvgMs      float64 `json:"avg_ms"`
	// LatencyBuckets holds one count per histogramBounds entry plus a
	// final count for latencies above the last bound.
	LatencyBuckets []int64 `json:"latency_buckets"`
}

// Recorder is a process-lifetime, in-memory metrics store: request
// counts, error counts, and average latency per route. Safe for
// concurrent use.
type Recorder struct {
	mu        sync.Mutex
	routes    map[string]*routeStats
	startedAt time.Time
}

// New creates an empty Recorder.
func New() *Recorder {
	return &Recorder{routes: map[string]*routeStats{}, startedAt: time.Now()}
}

// Record logs one completed request against route (e.g. "GET /search").
func (r *Recorder) Record(route string, status int, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.routes[route]
	if !ok {
		s = &routeStats{buckets: make([]int64, len(histogramBounds)+1)}
		r.routes[route] = s
	}
	s.count++
	if status >= 500 {
		s.errorCount++
	}
	ms := float64(d.Microseconds()) / 1000
	s.totalMs += ms
	for i, bound := range histogramBounds {
		if ms <= bound {
			s.buckets[i]++
			return
		}
	}
	s.buckets[len(histogramBounds)]++
}

// Snapshot returns a stable-ordered summary of every route recorded so
// far.
func (r *Recorder) Snapshot() []RouteSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RouteSnapshot, 0, len(r.routes))
	for route, s := range r.routes {
		avg := 0.0
		if s.count > 0 {
			avg = s.totalMs / float64(s.count)
		}
		out = append(out, RouteSnapshot{Route: route, Count: s.count, ErrorCount: s.errorCount, AvgMs: avg, LatencyBuckets: append([]int64(nil), s.buckets...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Route < out[j].Route })
	return out
}

// Uptime reports how long this Recorder (and, in practice, the
// process) has been running.
func (r *Recorder) Uptime() time.Duration { return time.Since(r.startedAt) }

// statusWriter captures the status code written by a wrapped handler,
// defaulting to 200 if WriteHeader is never called explicitly.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Wrap returns an http.HandlerFunc that records route's timing and
// status before delegating to next. route should be a stable label
// (e.g. "GET /search"), not the raw request path, so per-archive/query
// variation doesn't fragment the stats table.
func (r *Recorder) Wrap(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(sw, req)
		r.Record(route, sw.status, time.Since(start))
	}
}
