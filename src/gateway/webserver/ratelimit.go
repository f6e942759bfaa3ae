package webserver

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type window struct {
	count     int
	expiresAt time.Time
}

// RateLimiter is a fixed-window per-key counter. A key whose window has
// expired is treated as absent: lazily reset on the next check and
// actively removed by the background sweep. State is process-local;
// there is no cross-instance consistency.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	max     int
	window  time.Duration

	now      func() time.Time
	sweepInt time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

type RateLimiterOption func(*RateLimiter)

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) RateLimiterOption {
	return func(rl *RateLimiter) { rl.now = now }
}

// WithSweepInterval overrides the sweep cadence; zero disables the
// background sweep entirely (lazy expiry still applies).
func WithSweepInterval(d time.Duration) RateLimiterOption {
	return func(rl *RateLimiter) { rl.sweepInt = d }
}

func NewRateLimiter(max int, windowDur time.Duration, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		windows:  make(map[string]*window),
		max:      max,
		window:   windowDur,
		now:      time.Now,
		sweepInt: time.Hour,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(rl)
	}
	if rl.sweepInt > 0 {
		go rl.sweepLoop()
	}
	return rl
}

// Allow reports whether key may proceed, incrementing its counter when
// it may. count never exceeds max within a live window.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w := rl.windows[key]
	if w == nil || !now.Before(w.expiresAt) {
		rl.windows[key] = &window{count: 1, expiresAt: now.Add(rl.window)}
		return true
	}
	if w.count >= rl.max {
		return false
	}
	w.count++
	return true
}

// RetryAfter returns how long key must wait before its window resets;
// zero when the key is absent or already expired.
func (rl *RateLimiter) RetryAfter(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w := rl.windows[key]
	if w == nil {
		return 0
	}
	d := w.expiresAt.Sub(rl.now())
	if d < 0 {
		return 0
	}
	return d
}

// Reset drops all tracked windows.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.windows = make(map[string]*window)
}

// Stop halts the background sweep.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.sweepInt)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, w := range rl.windows {
		if !now.Before(w.expiresAt) {
			delete(rl.windows, key)
		}
	}
}

// tracked returns how many windows are currently held, expired or not.
func (rl *RateLimiter) tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// clientIP derives the rate-limit key for unauthenticated callers: the
// first X-Forwarded-For entry, or "unknown" when absent.
func clientIP(c *gin.Context) string {
	fwd := c.GetHeader("X-Forwarded-For")
	if fwd == "" {
		return "unknown"
	}
	if i := strings.IndexByte(fwd, ','); i >= 0 {
		fwd = fwd[:i]
	}
	ip := strings.TrimSpace(fwd)
	if ip == "" {
		return "unknown"
	}
	return ip
}

func rejectRateLimited(c *gin.Context, rl *RateLimiter, key string) {
	retry := int(rl.RetryAfter(key).Seconds())
	if retry < 1 {
		retry = 1
	}
	c.Header("Retry-After", fmt.Sprintf("%d", retry))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error": "rate limit exceeded, slow down",
	})
}

// IPRateLimit gates requests by caller IP before anything else runs.
func IPRateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := clientIP(c)
		if !rl.Allow(key) {
			rejectRateLimited(c, rl, key)
			return
		}
		c.Next()
	}
}
