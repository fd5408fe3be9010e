package bus

import (
	"sync"
	"time"
)

// DedupeCache remembers keys for a TTL with a hard cap on entries.
// Safe for concurrent use.
type DedupeCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	entries map[string]time.Time
	now     func() time.Time
}

// NewDedupeCache creates a cache keeping keys for ttl, at most max of them.
func NewDedupeCache(ttl time.Duration, max int) *DedupeCache {
	if max <= 0 {
		max = 1000
	}
	return &DedupeCache{
		ttl:     ttl,
		max:     max,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// IsDuplicate reports whether key was seen within the TTL and records it.
// Empty keys are never duplicates.
func (d *DedupeCache) IsDuplicate(key string) bool {
	if key == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if seen, ok := d.entries[key]; ok && now.Sub(seen) < d.ttl {
		return true
	}

	if len(d.entries) >= d.max {
		d.prune(now)
	}
	d.entries[key] = now
	return false
}

// prune drops expired keys, then the oldest ones until below the cap.
func (d *DedupeCache) prune(now time.Time) {
	for k, seen := range d.entries {
		if now.Sub(seen) >= d.ttl {
			delete(d.entries, k)
		}
	}
	for len(d.entries) >= d.max {
		var oldestKey string
		var oldest time.Time
		for k, seen := range d.entries {
			if oldestKey == "" || seen.Before(oldest) {
				oldestKey, oldest = k, seen
			}
		}
		delete(d.entries, oldestKey)
	}
}

// Len returns the number of remembered keys.
func (d *DedupeCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
