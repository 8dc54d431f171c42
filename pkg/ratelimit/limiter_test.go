package ratelimit

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(perMinute int) (*Limiter, *fakeClock) {
	clock := newFakeClock()
	l := New(perMinute)
	l.SetClock(clock.Now)
	return l, clock
}

func TestLimiter_BurstThenDeny(t *testing.T) {
	l, _ := newTestLimiter(5)

	for i := 0; i < 5; i++ {
		if !l.Allow("521111@s.whatsapp.net") {
			t.Errorf("message %d should be allowed", i)
		}
	}

	if l.Allow("521111@s.whatsapp.net") {
		t.Error("message 6 should be denied")
	}
}

func TestLimiter_RefillOverTime(t *testing.T) {
	l, clock := newTestLimiter(60) // one token per second

	for i := 0; i < 60; i++ {
		l.Allow("sender")
	}
	if l.Allow("sender") {
		t.Fatal("bucket should be empty")
	}

	clock.Advance(2 * time.Second)

	if !l.Allow("sender") {
		t.Error("first refilled token should be available")
	}
	if !l.Allow("sender") {
		t.Error("second refilled token should be available")
	}
	if l.Allow("sender") {
		t.Error("only two tokens should have refilled")
	}
}

func TestLimiter_SendersIndependent(t *testing.T) {
	l, _ := newTestLimiter(3)

	for i := 0; i < 3; i++ {
		l.Allow("noisy")
	}
	if l.Allow("noisy") {
		t.Error("noisy sender should be throttled")
	}

	for i := 0; i < 3; i++ {
		if !l.Allow("quiet") {
			t.Errorf("quiet sender message %d should be allowed", i)
		}
	}
}

func TestLimiter_DisabledWhenZero(t *testing.T) {
	for _, perMinute := range []int{0, -1} {
		l, _ := newTestLimiter(perMinute)
		if l.Enabled() {
			t.Errorf("limiter with allowance %d should be disabled", perMinute)
		}
		for i := 0; i < 100; i++ {
			if !l.Allow("sender") {
				t.Fatalf("disabled limiter denied message %d", i)
			}
		}
	}
}

func TestLimiter_EmptySenderNeverThrottled(t *testing.T) {
	l, _ := newTestLimiter(1)

	for i := 0; i < 10; i++ {
		if !l.Allow("") {
			t.Fatal("empty sender identity should bypass the limiter")
		}
	}
}

func TestLimiter_Reset(t *testing.T) {
	l, _ := newTestLimiter(2)

	l.Allow("sender")
	l.Allow("sender")
	if l.Allow("sender") {
		t.Fatal("should be denied after spending the allowance")
	}

	l.Reset()

	if !l.Allow("sender") {
		t.Error("should be allowed after reset")
	}
}

func TestLimiter_SweepDropsIdleBuckets(t *testing.T) {
	l, clock := newTestLimiter(10)

	// Stay inside the auto-sweep window so only the explicit Sweep runs.
	l.Allow("old")
	clock.Advance(5 * time.Minute)
	l.Allow("recent")
	clock.Advance(6 * time.Minute)

	removed := l.Sweep(bucketIdleAge)
	if removed != 1 {
		t.Fatalf("Sweep removed %d buckets, want 1", removed)
	}
	if _, ok := l.buckets.Load("old"); ok {
		t.Error("idle bucket should be gone")
	}
	if _, ok := l.buckets.Load("recent"); !ok {
		t.Error("active bucket should survive")
	}
}

func TestLimiter_SweepTriggersFromAllow(t *testing.T) {
	l, clock := newTestLimiter(10)

	l.Allow("old")
	clock.Advance(bucketIdleAge + time.Minute)

	// The next Allow is past the sweep window and cleans up in passing.
	l.Allow("fresh")

	if _, ok := l.buckets.Load("old"); ok {
		t.Error("idle bucket should have been swept on use")
	}
	if _, ok := l.buckets.Load("fresh"); !ok {
		t.Error("current sender's bucket should exist")
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	l, _ := newTestLimiter(1000)

	var wg sync.WaitGroup
	allowed := make(chan bool, 1100)

	for i := 0; i < 1100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- l.Allow("sender")
		}()
	}

	wg.Wait()
	close(allowed)

	count := 0
	for a := range allowed {
		if a {
			count++
		}
	}

	// The clock never advances, so exactly the bucket capacity passes.
	if count != 1000 {
		t.Errorf("%d messages allowed, want exactly 1000", count)
	}
}
