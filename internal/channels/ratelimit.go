package channels

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxTrackedKeys caps the number of tracked rate-limit keys to prevent
	// memory exhaustion from senders rotating ids.
	maxTrackedKeys = 4096

	// limiterIdleTTL is how long an idle key is kept before it may be pruned.
	limiterIdleTTL = 10 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// SenderRateLimiter is a token bucket per sender with a bounded key set.
// Safe for concurrent use. A nil limiter allows everything.
type SenderRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

// NewSenderRateLimiter allows rpm requests per minute per key with the given
// burst. rpm <= 0 disables limiting.
func NewSenderRateLimiter(rpm, burst int) *SenderRateLimiter {
	if rpm <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &SenderRateLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(float64(rpm) / 60.0),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow reports whether key may proceed now.
func (r *SenderRateLimiter) Allow(key string) bool {
	if r == nil {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	// Prune idle entries when approaching the cap
	if len(r.entries) >= maxTrackedKeys {
		for k, e := range r.entries {
			if now.Sub(e.lastSeen) >= limiterIdleTTL {
				delete(r.entries, k)
			}
		}
		// Hard eviction if still at cap (FIFO-ish via map iteration)
		for len(r.entries) >= maxTrackedKeys {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (r *SenderRateLimiter) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
