package auth

import (
	"sync"
	"time"
)

// RateLimiter tracks login attempts per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

// NewRateLimiter allows limit attempts per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow records an attempt from ip and reports whether it is under the limit.
func (r *RateLimiter) Allow(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.attempts[ip] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	// Rejected attempts are not recorded
	if len(recent) >= r.limit {
		r.attempts[ip] = recent
		return false
	}

	r.attempts[ip] = append(recent, now)
	return true
}

// Reset clears attempts for ip after a successful login.
func (r *RateLimiter) Reset(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, ip)
}
