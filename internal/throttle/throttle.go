// package throttle implements the admission throttle for inbound federation
// requests: at most one in-flight request per method, with a minimum spacing
// between accepted requests of the same method. Excess requests are rejected
// with 429 rather than queued; it is the sender's job to retry.
package throttle

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// A Limiter admits at most one in-flight request per HTTP method, and
// requires at least Spacing between accepted requests of the same method.
type Limiter struct {
	spacing time.Duration

	mu       sync.Mutex
	inflight map[string]bool
	last     map[string]time.Time
	now      func() time.Time // for tests
}

// New returns a Limiter with the given minimum spacing between accepted
// requests of the same method.
func New(spacing time.Duration) *Limiter {
	return &Limiter{
		spacing:  spacing,
		inflight: make(map[string]bool),
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Acquire reports whether a request of the given method may proceed.
// If it returns true the caller must call Release when the request is done.
func (l *Limiter) Acquire(method string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inflight[method] {
		return false
	}
	now := l.now()
	if last, ok := l.last[method]; ok && now.Sub(last) < l.spacing {
		return false
	}
	l.inflight[method] = true
	l.last[method] = now
	return true
}

// Release marks the in-flight request of the given method as finished.
func (l *Limiter) Release(method string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inflight[method] = false
}

// Middleware rejects requests the limiter will not admit with
// 429 Too Many Requests and a Retry-After hint. A nil *Limiter admits
// everything, which keeps tests and single-user deployments simple.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l == nil {
			next.ServeHTTP(w, r)
			return
		}
		if !l.Acquire(r.Method) {
			w.Header().Set("Retry-After", strconv.Itoa(int(l.spacing/time.Second)))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		defer l.Release(r.Method)
		next.ServeHTTP(w, r)
	})
}
