// Package ratelimit implements the per-IP sliding-window request
// limiter (component H's rate bucket), grounded on shield.RateLimiter's
// per-IP bucket-map shape but simplified from shield's per-endpoint
// rules table to spec.md §4.9's single global "requests/min/IP" bucket
// (spec.md §3: "client_ip -> ring of request timestamps within the
// last 60 seconds").
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const window = time.Minute

// bucket holds one client's request timestamps within the trailing
// window, pruned lazily on each check.
type bucket struct {
	mu   sync.Mutex
	hits []time.Time
}

// Limiter enforces at most maxPerMinute requests per IP per rolling
// 60-second window. maxPerMinute <= 0 disables limiting, per spec.md
// §6's "rate_limit=0 disables" rule.
type Limiter struct {
	maxPerMinute int
	buckets      sync.Map // string -> *bucket

	blockedTotal atomic.Int64
}

// New creates a Limiter. maxPerMinute of 0 or less disables limiting
// entirely (Allow always returns true).
func New(maxPerMinute int) *Limiter {
	return &Limiter{maxPerMinute: maxPerMinute}
}

// Enabled reports whether limiting is active.
func (l *Limiter) Enabled() bool { return l.maxPerMinute > 0 }

// Allow records a hit for ip and reports whether it is within budget.
// When over budget it also returns the Retry-After duration.
func (l *Limiter) Allow(ip string) (bool, time.Duration) {
	if !l.Enabled() {
		return true, 0
	}

	now := time.Now()
	v, _ := l.buckets.LoadOrStore(ip, &bucket{})
	b := v.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := now.Add(-window)
	live := b.hits[:0]
	for _, t := range b.hits {
		if t.After(cutoff) {
			live = append(live, t)
		}
	}
	b.hits = live

	if len(b.hits) >= l.maxPerMinute {
		l.blockedTotal.Add(1)
		oldest := b.hits[0]
		return false, window - now.Sub(oldest)
	}
	b.hits = append(b.hits, now)
	return true, 0
}

// GC drops buckets with no hits in the last window, bounding memory
// for IPs that stop sending traffic. Call periodically from a
// background goroutine.
func (l *Limiter) GC() {
	cutoff := time.Now().Add(-window)
	l.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		stale := len(b.hits) == 0 || b.hits[len(b.hits)-1].Before(cutoff)
		b.mu.Unlock()
		if stale {
			l.buckets.Delete(key)
		}
		return true
	})
}

// Stats reports counters for /manage/stats.
type Stats struct {
	ActiveIPs    int   `json:"active_ips"`
	BlockedTotal int64 `json:"blocked_total"`
}

func (l *Limiter) Stats() Stats {
	n := 0
	l.buckets.Range(func(_, _ any) bool { n++; return true })
	return Stats{ActiveIPs: n, BlockedTotal: l.blockedTotal.Load()}
}

// bypassPrefixes are exempt from rate limiting, per spec.md §4.9:
// "Management routes and /health bypass the limit."
var bypassPrefixes = []string{"/manage/", "/health"}

// Middleware enforces the limit on every non-bypassed request,
// responding 429 with Retry-After when exceeded.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, p := range bypassPrefixes {
			if strings.HasPrefix(r.URL.Path, p) {
				next.ServeHTTP(w, r)
				return
			}
		}

		ip := ExtractIP(r)
		if ok, retryAfter := l.Allow(ip); !ok {
			w.Header().Set("Retry-After", formatSeconds(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate_limited"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func formatSeconds(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr,
// ported from shield.ExtractIP.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
