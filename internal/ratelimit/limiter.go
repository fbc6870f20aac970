// Package ratelimit implements per-identity sliding-log admission control.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter tracks exact request timestamps per identity and rejects a request
// once the count inside the trailing window reaches the limit. Rejected
// attempts are not recorded. State is process-lifetime only.
type Limiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu     sync.Mutex
	stamps []time.Time
}

func NewLimiter(window time.Duration, limit int) *Limiter {
	return &Limiter{
		window:  window,
		limit:   limit,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// NewLimiterWithClock is the test constructor; clock replaces time.Now.
func NewLimiterWithClock(window time.Duration, limit int, clock func() time.Time) *Limiter {
	l := NewLimiter(window, limit)
	l.now = clock
	return l
}

// Admit reports whether a request from identity may proceed and, if so,
// records it. Calls for distinct identities contend only on the map lookup;
// calls for the same identity serialize on that identity's lock so concurrent
// requests cannot race past the limit.
func (l *Limiter) Admit(identity string) bool {
	e := l.entry(identity)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := e.stamps[:0]
	for _, stamp := range e.stamps {
		if stamp.After(cutoff) {
			kept = append(kept, stamp)
		}
	}
	e.stamps = kept

	if len(e.stamps) >= l.limit {
		return false
	}
	e.stamps = append(e.stamps, now)
	return true
}

func (l *Limiter) entry(identity string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[identity]
	if !ok {
		e = &entry{}
		l.entries[identity] = e
	}
	return e
}
