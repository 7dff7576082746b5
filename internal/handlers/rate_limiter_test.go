package handlers

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Mayne0963/otw-sub006/internal/platform/auth"
)

func TestFixedWindowLimiter(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	limiter := newFixedWindowLimiter(2, 10*time.Second, func() time.Time { return now })

	for i := 0; i < 2; i++ {
		if ok, _ := limiter.Allow("a"); !ok {
			t.Fatalf("request %d should pass", i)
		}
	}
	ok, wait := limiter.Allow("a")
	if ok || wait != 10*time.Second {
		t.Fatalf("expected block with 10s wait, got %v %s", ok, wait)
	}
	if ok, _ := limiter.Allow("b"); !ok {
		t.Fatalf("keys must be independent")
	}

	now = now.Add(10 * time.Second)
	if ok, _ := limiter.Allow("a"); !ok {
		t.Fatalf("window should have reset")
	}
}

func TestNewFixedWindowLimiterDisabled(t *testing.T) {
	if newFixedWindowLimiter(0, time.Second, nil) != nil {
		t.Fatalf("zero limit disables limiting")
	}
	if newFixedWindowLimiter(1, 0, nil) != nil {
		t.Fatalf("zero window disables limiting")
	}
}

func TestRateLimitKey(t *testing.T) {
	req := httptest.NewRequest("POST", "/verify-payment", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if got := rateLimitKey(req); got != "ip:192.0.2.1" {
		t.Fatalf("unexpected guest key %s", got)
	}

	req = req.WithContext(auth.WithAuthResult(req.Context(), auth.Authenticated(&auth.Identity{UID: "user-1"})))
	if got := rateLimitKey(req); got != "uid:user-1" {
		t.Fatalf("unexpected user key %s", got)
	}
}
