package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/advisorhub/backend/internal/interfaces/http/dto"
)

// RateLimiter is a fixed-window request counter per key. It keeps each
// tenant within a share of the CRM's API allowance.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

type window struct {
	start time.Time
	used  int
}

// NewRateLimiter allows limit requests per key in each period and starts a
// cleanup loop; call Stop to end it.
func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	rl := newRateLimiter(limit, period, time.Now)
	go rl.cleanupLoop()
	return rl
}

func newRateLimiter(limit int, period time.Duration, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     now,
		stop:    make(chan struct{}),
	}
}

// Allow consumes one request for key and returns whether it is allowed and
// how many remain in the current window
func (rl *RateLimiter) Allow(key string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= rl.period {
		w = &window{start: now}
		rl.windows[key] = w
	}
	if w.used >= rl.limit {
		return false, 0
	}
	w.used++
	return true, rl.limit - w.used
}

// Stop ends the cleanup loop
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.period * 2)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictExpired()
		}
	}
}

func (rl *RateLimiter) evictExpired() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, w := range rl.windows {
		if now.Sub(w.start) >= rl.period {
			delete(rl.windows, key)
		}
	}
}

// RateLimit limits requests per tenant, falling back to the client IP for
// unauthenticated requests. Place it after Identity.
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := GetTenantID(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		ok, remaining := rl.Allow(key)
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(rl.period.Seconds())))
			abort(c, http.StatusTooManyRequests, dto.ErrCodeRateLimited, "too many requests, please retry later")
			return
		}
		c.Next()
	}
}
