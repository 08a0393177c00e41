package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

const (
	cleanupInterval = time.Minute
	visitorTimeout  = 3 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// RateLimiter is a token bucket per client IP. It guards POST /api/run so
// one tab hammering Run cannot starve everyone else on a shared server.
type RateLimiter struct {
	visitors *xsync.MapOf[string, *visitor]
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		visitors: xsync.NewMapOf[string, *visitor](),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow spends one token for ip.
func (rl *RateLimiter) Allow(ip string) bool {
	v, _ := rl.visitors.LoadOrCompute(ip, func() *visitor {
		return &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
	})
	now := rl.now()
	v.lastSeen.Store(now.UnixNano())
	return v.limiter.AllowN(now, 1)
}

// Len is the number of tracked clients.
func (rl *RateLimiter) Len() int { return rl.visitors.Size() }

// Cleanup forgets clients idle for longer than visitorTimeout.
func (rl *RateLimiter) Cleanup() {
	cutoff := rl.now().Add(-visitorTimeout).UnixNano()
	rl.visitors.Range(func(ip string, v *visitor) bool {
		if v.lastSeen.Load() < cutoff {
			rl.visitors.Delete(ip)
		}
		return true
	})
}

// Run calls Cleanup every minute until ctx ends.
func (rl *RateLimiter) Run(ctx context.Context) error {
	t := time.NewTicker(cleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			rl.Cleanup()
		}
	}
}

// Middleware answers 429 once ip's bucket is empty. It expects chi's
// RealIP to have rewritten RemoteAddr already.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "too many runs, slow down"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
