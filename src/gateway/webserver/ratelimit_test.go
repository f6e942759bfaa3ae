package webserver

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateLimiterWindowCap(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(100, 15*time.Minute, WithClock(clock.Now), WithSweepInterval(0))

	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("u1"), "request %d should pass", i+1)
	}
	require.False(t, rl.Allow("u1"), "101st request must be denied")
	require.Greater(t, rl.RetryAfter("u1"), time.Duration(0))

	// A denied key recovers once its window elapses.
	clock.Advance(15*time.Minute + time.Second)
	require.True(t, rl.Allow("u1"))
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(1, time.Minute, WithClock(clock.Now), WithSweepInterval(0))

	require.True(t, rl.Allow("a"))
	require.False(t, rl.Allow("a"))
	require.True(t, rl.Allow("b"), "exhausting one key must not affect another")
}

func TestRateLimiterSweepDropsExpired(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(5, time.Minute, WithClock(clock.Now), WithSweepInterval(0))

	rl.Allow("a")
	rl.Allow("b")
	require.Equal(t, 2, rl.tracked())

	clock.Advance(2 * time.Minute)
	rl.sweep()
	require.Equal(t, 0, rl.tracked())
}

func TestRateLimiterReset(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, WithSweepInterval(0))
	require.True(t, rl.Allow("a"))
	require.False(t, rl.Allow("a"))
	rl.Reset()
	require.True(t, rl.Allow("a"))
}

func TestIPRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clock := newFakeClock()
	rl := NewRateLimiter(2, time.Minute, WithClock(clock.Now), WithSweepInterval(0))

	r := gin.New()
	r.GET("/x", IPRateLimit(rl), func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(ip string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if ip != "" {
			req.Header.Set("X-Forwarded-For", ip)
		}
		r.ServeHTTP(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusOK, do("1.2.3.4, 10.0.0.1"))
	require.Equal(t, http.StatusOK, do("1.2.3.4"))
	require.Equal(t, http.StatusTooManyRequests, do("1.2.3.4"))

	// Missing forwarded header collapses onto the shared "unknown" key.
	require.Equal(t, http.StatusOK, do(""))
	require.Equal(t, http.StatusOK, do(""))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))
}
