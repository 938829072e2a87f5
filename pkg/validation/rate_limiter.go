package validation

import (
	"sync"
	"time"
)

// RateLimiter implements a token bucket per viewer
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	viewers     map[string]*bucket
	mu          sync.Mutex
	cleanupTick *time.Ticker
	done        chan struct{}
	closeOnce   sync.Once
}

// bucket tracks the tokens left for one viewer
type bucket struct {
	tokens     int
	lastRefill time.Time
	lastSeen   time.Time
}

// NewRateLimiter creates a limiter allowing maxRequests per window per viewer
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		viewers:     make(map[string]*bucket),
		done:        make(chan struct{}),
	}

	rl.cleanupTick = time.NewTicker(window)
	go rl.cleanup()

	return rl
}

// Allow consumes a token for viewerID and reports whether one was available
func (rl *RateLimiter) Allow(viewerID string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.viewers[viewerID]
	if !ok {
		b = &bucket{tokens: rl.maxRequests, lastRefill: now}
		rl.viewers[viewerID] = b
	}
	b.lastSeen = now
	rl.refill(b, now)

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// refill adds tokens in proportion to the fraction of the window elapsed
func (rl *RateLimiter) refill(b *bucket, now time.Time) {
	if b.tokens >= rl.maxRequests {
		b.lastRefill = now
		return
	}
	elapsed := now.Sub(b.lastRefill)
	add := int(float64(rl.maxRequests) * float64(elapsed) / float64(rl.window))
	if add > 0 {
		b.tokens = min(b.tokens+add, rl.maxRequests)
		b.lastRefill = now
	}
}

// Forget removes a viewer's bucket
func (rl *RateLimiter) Forget(viewerID string) {
	rl.mu.Lock()
	delete(rl.viewers, viewerID)
	rl.mu.Unlock()
}

// Len returns the number of tracked viewers
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.viewers)
}

func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.cleanupTick.C:
			rl.removeInactive(time.Now().Add(-2 * rl.window))
		case <-rl.done:
			return
		}
	}
}

// removeInactive drops viewers not seen since cutoff
func (rl *RateLimiter) removeInactive(cutoff time.Time) {
	rl.mu.Lock()
	for id, b := range rl.viewers {
		if b.lastSeen.Before(cutoff) {
			delete(rl.viewers, id)
		}
	}
	rl.mu.Unlock()
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() {
		close(rl.done)
		rl.cleanupTick.Stop()
	})
}
