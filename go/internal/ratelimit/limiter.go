// Package ratelimit implements a fixed-window counter keyed by arbitrary
// strings. The session engine uses it to throttle answer submissions and
// reactions per connection.
package ratelimit

import (
	"sync"
	"time"

	"github.com/mcdev12/quizarena/go/internal/clock"
)

// Rule bounds a key to Max calls per Window.
type Rule struct {
	Window time.Duration
	Max    int
}

type bucket struct {
	start  time.Time
	count  int
	window time.Duration
}

// Limiter is safe for concurrent use.
type Limiter struct {
	clock clock.Clock

	mu      sync.Mutex
	buckets map[string]*bucket
}

// New creates a limiter reading time from c.
func New(c clock.Clock) *Limiter {
	return &Limiter{
		clock:   c,
		buckets: make(map[string]*bucket),
	}
}

// Allow records a call for key and reports whether it fits in the current
// window. A rule with Max <= 0 never allows.
func (l *Limiter) Allow(key string, rule Rule) bool {
	if rule.Max <= 0 {
		return false
	}
	window := l.clock.Scale(rule.Window)
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.Sub(b.start) >= window {
		l.buckets[key] = &bucket{start: now, count: 1, window: window}
		return true
	}
	if b.count >= rule.Max {
		return false
	}
	b.count++
	return true
}

// Sweep drops buckets whose window started more than two windows ago and
// returns how many were removed.
func (l *Limiter) Sweep() int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.start) > 2*b.window {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
