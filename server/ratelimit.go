/******************************************************************************
 *
 *  Description :
 *
 *    Fixed-window rate limiting of API requests, keyed by client IP.
 *
 *****************************************************************************/

package main

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	t "github.com/pylonhost/pylon/server/store/types"
)

type rateWindow struct {
	count     int
	resetTime time.Time
}

// RateLimiter allows up to maxRequests per key within a fixed window.
// When the window expires the counter starts over.
type RateLimiter struct {
	lock sync.Mutex

	maxRequests int
	window      time.Duration
	windows     map[string]*rateWindow

	// Injectable clock, for tests.
	now func() time.Time
}

func newRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		windows:     make(map[string]*rateWindow),
		now:         t.TimeNow,
	}

	statsRegisterInt("RequestsRateLimitedTotal")

	return rl
}

// Check records one request for the key. It returns true if the request is
// within the limit, otherwise false and the number of seconds the client
// should wait before retrying.
func (rl *RateLimiter) Check(key string) (bool, int) {
	rl.lock.Lock()
	defer rl.lock.Unlock()

	now := rl.now()
	win := rl.windows[key]
	if win == nil || !now.Before(win.resetTime) {
		rl.windows[key] = &rateWindow{count: 1, resetTime: now.Add(rl.window)}
		return true, 0
	}

	win.count++
	if win.count > rl.maxRequests {
		retryAfter := int(math.Ceil(win.resetTime.Sub(now).Seconds()))
		return false, retryAfter
	}
	return true, 0
}

// runSweeper periodically drops expired windows so the map does not grow
// with one entry per client IP ever seen. Returns a stop function.
func (rl *RateLimiter) runSweeper() func() {
	ticker := time.NewTicker(rl.window)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				rl.sweep()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}

func (rl *RateLimiter) sweep() {
	rl.lock.Lock()
	defer rl.lock.Unlock()

	now := rl.now()
	for key, win := range rl.windows {
		if !now.Before(win.resetTime) {
			delete(rl.windows, key)
		}
	}
}

// rateLimit is the HTTP middleware form of the limiter.
func rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(wrt http.ResponseWriter, req *http.Request) {
		// Authenticated callers are throttled per user, anonymous ones
		// per remote IP.
		key := globals.auth.TokenUID(bearerToken(req))
		if key == "" {
			key = clientIP(req)
		}
		ok, retryAfter := globals.rateLimiter.Check(key)
		if !ok {
			statsInc("RequestsRateLimitedTotal", 1)
			wrt.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSON(wrt, http.StatusTooManyRequests, map[string]any{
				"error":      "too many requests",
				"retryAfter": retryAfter,
			})
			return
		}
		next.ServeHTTP(wrt, req)
	})
}

// clientIP extracts the client's IP address from the request.
func clientIP(req *http.Request) string {
	if ip, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		return ip
	}
	return req.RemoteAddr
}
