package gitcms

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, max int, window time.Duration) (*LoginLimiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := NewLoginLimiter(max, window)
	l.mu.Lock()
	l.now = clock.Now
	l.mu.Unlock()
	t.Cleanup(l.Stop)
	return l, clock
}

// failLogin behaves like a rejected sign-in: it reports whether the
// attempt was let through and records it as a failure when it was.
func failLogin(l *LoginLimiter, ip string) bool {
	if !l.Check(ip) {
		return false
	}
	l.Record(ip)
	return true
}

func TestLoginLimiterBlocksAfterMax(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2, time.Minute)
	ip := "203.0.113.10"

	assert.True(t, failLogin(limiter, ip), "first attempt")
	assert.True(t, failLogin(limiter, ip), "second attempt")
	assert.False(t, failLogin(limiter, ip), "third attempt")
}

func TestLoginLimiterResetsAfterWindow(t *testing.T) {
	limiter, clock := newTestLimiter(t, 1, time.Minute)
	ip := "203.0.113.20"

	assert.True(t, failLogin(limiter, ip))
	assert.False(t, failLogin(limiter, ip))

	clock.Advance(61 * time.Second)
	assert.True(t, failLogin(limiter, ip), "attempt after the window")
}

func TestLoginLimiterIsPerIP(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Minute)

	assert.True(t, failLogin(limiter, "203.0.113.30"))
	assert.True(t, failLogin(limiter, "203.0.113.31"), "second ip is independent")
	assert.False(t, failLogin(limiter, "203.0.113.30"))
}

func TestLoginLimiterCheckDoesNotRecord(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Minute)
	ip := "203.0.113.40"

	for range 3 {
		assert.True(t, limiter.Check(ip), "Check alone must not consume attempts")
	}
	limiter.Record(ip)
	assert.False(t, limiter.Check(ip))
}

func TestLoginLimiterStopIsIdempotent(t *testing.T) {
	limiter := NewLoginLimiter(1, time.Millisecond)
	assert.NotPanics(t, func() {
		limiter.Stop()
		limiter.Stop()
	})
}
