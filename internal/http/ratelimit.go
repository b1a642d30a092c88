package http

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	rateLimitPerWindow = 60
	rateLimitWindow    = time.Minute
	staleAfter         = 10 * time.Minute
	cleanupEvery       = 5 * time.Minute
)

// rateLimiter tracks request counts per client IP over a rolling window.
// Only mutating requests are counted; see withMiddleware.
type rateLimiter struct {
	mu       sync.Mutex
	windows  map[string]*requestWindow
	done     chan struct{}
	stopOnce sync.Once
}

type requestWindow struct {
	start time.Time
	count int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		windows: make(map[string]*requestWindow),
		done:    make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// allow records a request from clientIP and reports whether it is within the
// per-minute limit. Rejections are counted towards metrics when provided.
func (rl *rateLimiter) allow(clientIP string, metrics *securityMetrics) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows[clientIP]
	if !ok || now.Sub(w.start) > rateLimitWindow {
		rl.windows[clientIP] = &requestWindow{start: now, count: 1}
		return true
	}

	w.count++
	if w.count > rateLimitPerWindow {
		if metrics != nil {
			atomic.AddInt64(&metrics.rateLimitHits, 1)
		}
		return false
	}
	return true
}

// stop terminates the background cleanup goroutine.
func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

func (rl *rateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.dropStale()
		case <-rl.done:
			return
		}
	}
}

// dropStale evicts windows that have been idle long enough that the next
// request would reset them anyway.
func (rl *rateLimiter) dropStale() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-staleAfter)
	for ip, w := range rl.windows {
		if w.start.Before(cutoff) {
			delete(rl.windows, ip)
		}
	}
}
