package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/huddle/internal/auth"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter(limit int, period time.Duration) (*ActionLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := NewActionLimiter(limit, period)
	l.now = clock.now
	return l, clock
}

func TestActionLimiterAllow(t *testing.T) {
	l, clock := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow("u1"); !ok {
			t.Fatalf("action %d should be allowed", i+1)
		}
	}
	ok, wait := l.Allow("u1")
	if ok {
		t.Fatal("4th action should be denied")
	}
	if wait != 20*time.Second {
		t.Errorf("wait = %v, want 20s", wait)
	}
	if ok, _ := l.Allow("u2"); !ok {
		t.Error("other key should be allowed")
	}

	// A denied action does not consume a token.
	clock.t = clock.t.Add(20 * time.Second)
	if ok, _ := l.Allow("u1"); !ok {
		t.Error("should be allowed once a token refills")
	}
	if ok, _ := l.Allow("u1"); ok {
		t.Error("only one token should have refilled")
	}

	clock.t = clock.t.Add(time.Minute)
	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow("u1"); !ok {
			t.Fatalf("action %d after a full refill should be allowed", i+1)
		}
	}
}

func TestActionLimiterSweep(t *testing.T) {
	l, clock := newTestLimiter(5, time.Minute)
	l.Allow("old")
	clock.t = clock.t.Add(2 * time.Minute)
	l.Allow("fresh")

	l.Sweep()

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.limiters["old"]; ok {
		t.Error("refilled bucket should have been swept")
	}
	if _, ok := l.limiters["fresh"]; !ok {
		t.Error("active bucket should remain")
	}
}

func TestThrottleActions(t *testing.T) {
	l, _ := newTestLimiter(2, 30*time.Second)
	handler := ThrottleActions(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	send := func(userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/proposals/p1/submissions", nil)
		if userID != "" {
			req = req.WithContext(auth.WithIdentity(context.Background(), auth.Identity{UserID: userID}))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send("u1"); rec.Code != http.StatusCreated {
			t.Errorf("request %d: status = %d, want 201", i+1, rec.Code)
		}
	}
	rec := send("u1")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "15" {
		t.Errorf("Retry-After = %q, want 15", got)
	}
	if rec := send(""); rec.Code != http.StatusCreated {
		t.Errorf("anonymous request: status = %d, want 201", rec.Code)
	}
}

func TestRealIP(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		remote string
		want   string
	}{
		{"remote addr", "", "192.0.2.1:1234", "192.0.2.1"},
		{"forwarded chain", "203.0.113.5, 10.0.0.1", "127.0.0.1:80", "203.0.113.5"},
		{"forwarded single", " 203.0.113.9 ", "127.0.0.1:80", "203.0.113.9"},
		{"no port", "", "pipe", "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := RealIP(req); got != tt.want {
				t.Errorf("RealIP = %q, want %q", got, tt.want)
			}
		})
	}
}
