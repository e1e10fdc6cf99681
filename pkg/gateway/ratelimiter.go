package gateway

import (
	"sync"
	"time"
)

// Default per-client limits
const (
	DefaultRequestsPerMinute = 120
	DefaultMaxConcurrent     = 10

	rateWindow = time.Minute
)

// Rejection reasons returned by CheckRequestAllowed
const (
	reasonTooManyConcurrent = "too many concurrent requests"
	reasonRateLimited       = "rate limit exceeded"
)

// ClientRateLimiter enforces a sliding one-minute window and a concurrency
// cap for one client. Browsy requests of one agent queue behind each other,
// so a client flooding the gateway would otherwise pile up lane tasks.
type ClientRateLimiter struct {
	mu                sync.Mutex
	requestsPerMinute int
	maxConcurrent     int
	started           []time.Time
	inFlight          int
}

// NewClientRateLimiter creates a limiter with the default limits
func NewClientRateLimiter() *ClientRateLimiter {
	return NewClientRateLimiterWithLimits(DefaultRequestsPerMinute, DefaultMaxConcurrent)
}

// NewClientRateLimiterWithLimits creates a limiter; non-positive values use
// the defaults
func NewClientRateLimiterWithLimits(requestsPerMinute, maxConcurrent int) *ClientRateLimiter {
	r := &ClientRateLimiter{}
	r.setLimits(requestsPerMinute, maxConcurrent)
	return r
}

func (r *ClientRateLimiter) setLimits(requestsPerMinute, maxConcurrent int) {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	r.requestsPerMinute = requestsPerMinute
	r.maxConcurrent = maxConcurrent
}

// prune drops timestamps older than the window; caller holds mu
func (r *ClientRateLimiter) prune(now time.Time) {
	cutoff := now.Add(-rateWindow)
	kept := r.started[:0]
	for _, ts := range r.started {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	r.started = kept
}

// CheckRequestAllowed reports whether another request may start
func (r *ClientRateLimiter) CheckRequestAllowed() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight >= r.maxConcurrent {
		return false, reasonTooManyConcurrent
	}
	r.prune(time.Now())
	if len(r.started) >= r.requestsPerMinute {
		return false, reasonRateLimited
	}
	return true, ""
}

// RecordRequestStart records the start of a request
func (r *ClientRateLimiter) RecordRequestStart() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, time.Now())
	r.inFlight++
}

// RecordRequestEnd records the end of a request
func (r *ClientRateLimiter) RecordRequestEnd() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight > 0 {
		r.inFlight--
	}
}

// UpdateLimits changes the limits in place
func (r *ClientRateLimiter) UpdateLimits(requestsPerMinute, maxConcurrent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setLimits(requestsPerMinute, maxConcurrent)
}

// GetStats returns requests in the current window and requests in flight
func (r *ClientRateLimiter) GetStats() (requestCount, concurrentCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune(time.Now())
	return len(r.started), r.inFlight
}
