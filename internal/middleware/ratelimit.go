package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dukerupert/huddle/internal/auth"
)

// RealIP extracts the client's address, preferring X-Forwarded-For and
// falling back to RemoteAddr.
func RealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ActionLimiter is a token bucket per key: limit actions per period, with
// bursts of up to limit. It guards the write paths against double submits
// from a stuck button or a UI retry loop.
type ActionLimiter struct {
	mu       sync.Mutex
	limit    int
	period   time.Duration
	limiters map[string]*rate.Limiter
	now      func() time.Time
}

func NewActionLimiter(limit int, period time.Duration) *ActionLimiter {
	return &ActionLimiter{
		limit:    limit,
		period:   period,
		limiters: make(map[string]*rate.Limiter),
		now:      time.Now,
	}
}

// Allow records one action for key. When the key is over its limit it
// returns false and how long until the next action would be allowed.
func (l *ActionLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.period/time.Duration(l.limit)), l.limit)
		l.limiters[key] = lim
	}
	now := l.now()
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return false, l.period
	}
	if wait := r.DelayFrom(now); wait > 0 {
		r.CancelAt(now)
		return false, wait
	}
	return true, 0
}

// Sweep forgets keys whose bucket has refilled.
func (l *ActionLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, lim := range l.limiters {
		if lim.TokensAt(now) >= float64(l.limit) {
			delete(l.limiters, key)
		}
	}
}

// Run sweeps every period until ctx ends.
func (l *ActionLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// ThrottleActions limits requests per signed-in user, or per client
// address for anonymous requests. Rejected requests get a 429 with
// Retry-After.
func ThrottleActions(l *ActionLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := auth.UserID(r.Context())
			if key == "" {
				key = "ip:" + RealIP(r)
			}
			ok, wait := l.Allow(key)
			if !ok {
				secs := int(wait.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"error": "too many requests, try again shortly"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
