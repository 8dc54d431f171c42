// Package ratelimit throttles inbound chat traffic per sender.
// It implements a continuously refilled token bucket for each sender
// identity, sized to the configured per-minute message allowance.
package ratelimit

import (
	"sync"
	"time"
)

// bucketIdleAge is how long a sender's bucket may sit untouched before
// it is dropped. Buckets refill to capacity in one minute, so anything
// idle this long is indistinguishable from a fresh bucket.
const bucketIdleAge = 10 * time.Minute

// Limiter enforces a per-sender cap on inbound messages. Each sender
// spends one token per message; unknown senders start with a full
// bucket, so bursts up to the allowance pass before throttling kicks
// in. A zero or negative allowance disables enforcement.
type Limiter struct {
	perMinute int
	clock     func() time.Time

	buckets sync.Map // sender identity -> *bucket

	sweepMu   sync.Mutex
	lastSweep time.Time
}

// bucket is a token bucket refilled by elapsed wall time.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// New creates a limiter allowing perMinute messages per sender.
func New(perMinute int) *Limiter {
	return &Limiter{
		perMinute: perMinute,
		clock:     time.Now,
		lastSweep: time.Now(),
	}
}

// SetClock replaces the limiter's time source. Intended for tests.
func (l *Limiter) SetClock(fn func() time.Time) {
	l.clock = fn
	l.sweepMu.Lock()
	l.lastSweep = fn()
	l.sweepMu.Unlock()
}

// Enabled reports whether the limiter enforces anything.
func (l *Limiter) Enabled() bool {
	return l.perMinute > 0
}

// Allow reports whether sender may deliver another message right now,
// spending one token on success. An empty sender identity is never
// throttled; the caller has nothing to key a bucket on.
func (l *Limiter) Allow(sender string) bool {
	if !l.Enabled() || sender == "" {
		return true
	}
	l.maybeSweep()
	return l.bucketFor(sender).tryTake(l.clock(), 1)
}

// Reset restores every tracked bucket to full capacity.
func (l *Limiter) Reset() {
	now := l.clock()
	l.buckets.Range(func(_, v any) bool {
		b := v.(*bucket)
		b.mu.Lock()
		b.tokens = b.maxTokens
		b.lastRefill = now
		b.mu.Unlock()
		return true
	})
}

// Sweep drops buckets that have not been refilled for maxIdle and
// returns how many were removed. Active senders touch lastRefill on
// every Allow, so only dormant buckets qualify.
func (l *Limiter) Sweep(maxIdle time.Duration) int {
	now := l.clock()
	removed := 0
	l.buckets.Range(func(k, v any) bool {
		b := v.(*bucket)
		b.mu.Lock()
		idle := now.Sub(b.lastRefill)
		b.mu.Unlock()
		if idle > maxIdle {
			l.buckets.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

func (l *Limiter) bucketFor(sender string) *bucket {
	if cached, ok := l.buckets.Load(sender); ok {
		return cached.(*bucket)
	}
	fresh := newBucket(float64(l.perMinute), float64(l.perMinute)/60.0, l.clock())
	actual, _ := l.buckets.LoadOrStore(sender, fresh)
	return actual.(*bucket)
}

// maybeSweep runs a sweep at most once per idle-age window so the hot
// path stays a map load and a mutex.
func (l *Limiter) maybeSweep() {
	l.sweepMu.Lock()
	now := l.clock()
	due := now.Sub(l.lastSweep) >= bucketIdleAge
	if due {
		l.lastSweep = now
	}
	l.sweepMu.Unlock()

	if due {
		l.Sweep(bucketIdleAge)
	}
}

func newBucket(maxTokens, refillRate float64, now time.Time) *bucket {
	return &bucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: now,
	}
}

// refill credits tokens for the time elapsed since the last refill.
// Caller must hold b.mu.
func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
}

// tryTake attempts to take n tokens, refilling first.
func (b *bucket) tryTake(now time.Time, n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)

	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}
