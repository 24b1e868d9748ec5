package ranker

import (
	"sync"
	"time"
)

// RateLimiter caps chat queries per session over a sliding window.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

// NewRateLimiter allows limit events per window per key.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		hits:   map[string][]time.Time{},
		now:    time.Now,
	}
}

// Allow records one event for key and reports whether it fits the window.
// Expired entries are swept on every call, including keys for sessions that
// went idle, so the map does not grow with session count over time.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)
	for k, times := range r.hits {
		kept := times[:0]
		for _, t := range times {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(r.hits, k)
		} else {
			r.hits[k] = kept
		}
	}

	if len(r.hits[key]) >= r.limit {
		return false
	}
	r.hits[key] = append(r.hits[key], now)
	return true
}
