package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window caps request counts over a fixed time span.
type Window struct {
	Name  string
	Limit int
	Per   time.Duration
}

// PerMinute builds a one-minute window.
func PerMinute(limit int) Window { return Window{Name: "minute", Limit: limit, Per: time.Minute} }

// PerHour builds a one-hour window.
func PerHour(limit int) Window { return Window{Name: "hour", Limit: limit, Per: time.Hour} }

// PerDay builds a 24-hour window.
func PerDay(limit int) Window { return Window{Name: "day", Limit: limit, Per: 24 * time.Hour} }

// DefaultWindows are the process-wide admission defaults.
func DefaultWindows() []Window {
	return []Window{PerDay(200), PerHour(50), PerMinute(5)}
}

// Decision is the result of one admission check. RetryAfter is only set when
// the request was denied, and reports the time remaining on the most
// restrictive exhausted window.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter is per-client-identity admission control.
type Limiter interface {
	Admit(ctx context.Context, identity string) Decision
}

type bucket struct {
	start time.Time
	count int
}

// MemoryLimiter enforces fixed-window counters per identity across multiple
// windows. Windows are epoch-aligned, not sliding: counters reset completely
// when the boundary is crossed, so bursts straddling a boundary can briefly
// exceed the nominal rate. This matches the original admission semantics and
// is kept deliberately.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows []Window
	clients map[string][]bucket
	now     func() time.Time
}

// NewMemory creates a limiter enforcing the given windows.
func NewMemory(windows []Window) *MemoryLimiter {
	return &MemoryLimiter{
		windows: windows,
		clients: make(map[string][]bucket),
		now:     time.Now,
	}
}

// Admit increments every window for the identity and denies if any counter
// exceeds its limit. Increment-then-compare means a denied request still
// consumes the still-open windows, the same semantics as the Redis backend.
// The whole update happens under one lock so concurrent requests cannot
// undercount.
func (l *MemoryLimiter) Admit(ctx context.Context, identity string) Decision {
	_ = ctx

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	buckets, ok := l.clients[identity]
	if !ok {
		buckets = make([]bucket, len(l.windows))
		l.clients[identity] = buckets
	}

	var retryAfter time.Duration
	denied := false
	for i, w := range l.windows {
		start := now.Truncate(w.Per)
		if !buckets[i].start.Equal(start) {
			buckets[i] = bucket{start: start}
		}
		buckets[i].count++
		if buckets[i].count > w.Limit {
			denied = true
			if remaining := start.Add(w.Per).Sub(now); remaining > retryAfter {
				retryAfter = remaining
			}
		}
	}
	if denied {
		return Decision{Allowed: false, RetryAfter: retryAfter}
	}
	return Decision{Allowed: true}
}

// Reset clears all counters for an identity.
func (l *MemoryLimiter) Reset(identity string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, identity)
}

// Ensure MemoryLimiter implements Limiter.
var _ Limiter = (*MemoryLimiter)(nil)
