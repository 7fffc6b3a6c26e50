package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Allower decides whether one more request for key may proceed.
type Allower interface {
	Allow(ctx context.Context, key string) bool
}

// Limiter is a per-IP token bucket rate limiter. It tracks each visitor by IP
// address and automatically cleans up stale entries.
type Limiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	stop     chan struct{}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a new per-IP rate limiter that allows rps requests per
// second with the given burst size. It starts a background goroutine that
// removes visitors not seen for 5 or more minutes, running every 3 minutes,
// until Close is called.
func NewLimiter(rps float64, burst int) *Limiter {
	l := &Limiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		stop:     make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow reports whether a request from the given key should be permitted.
// It creates a new token bucket for the key if one does not already exist.
func (l *Limiter) Allow(_ context.Context, key string) bool {
	l.mu.Lock()
	v, exists := l.visitors[key]
	if !exists {
		v = &visitor{
			limiter: rate.NewLimiter(l.rps, l.burst),
		}
		l.visitors[key] = v
	}
	v.lastSeen = time.Now()
	l.mu.Unlock()

	return v.limiter.Allow()
}

// Close stops the cleanup goroutine.
func (l *Limiter) Close() {
	close(l.stop)
}

// cleanup periodically removes visitors that have not been seen for 5 or more
// minutes.
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(3 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		}

		l.mu.Lock()
		for key, v := range l.visitors {
			if time.Since(v.lastSeen) >= 5*time.Minute {
				delete(l.visitors, key)
			}
		}
		l.mu.Unlock()
	}
}
