package ratelimit

import (
	"sync"
	"time"
)

const (
	cleanupEvery = time.Minute
	idleEviction = 5 * time.Minute
)

// Limiter — token bucket на ключ (обычно client IP).
type Limiter struct {
	buckets map[string]*bucket
	mu      sync.Mutex
	rate    int
	per     time.Duration
	quit    chan struct{}
	once    sync.Once
}

type bucket struct {
	tokens   int
	lastSeen time.Time
}

func New(rate int, per time.Duration) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		per:     per,
		quit:    make(chan struct{}),
	}

	go l.cleanup()
	return l
}

func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, exists := l.buckets[key]

	if !exists {
		l.buckets[key] = &bucket{
			tokens:   l.rate - 1,
			lastSeen: now,
		}
		return true
	}

	refill := int(now.Sub(b.lastSeen) / l.per)
	if refill > 0 {
		b.tokens = min(l.rate, b.tokens+refill)
		b.lastSeen = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}

	return false
}

// Stop останавливает фоновую чистку простаивающих бакетов.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.quit) })
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(cleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-l.quit:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := time.Now()
			for key, b := range l.buckets {
				if now.Sub(b.lastSeen) > idleEviction {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
