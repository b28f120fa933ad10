package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func limitedHandler(limiter Limiter, limit int, mode FailureMode) http.Handler {
	rl := NewRateLimiter(limiter, limit, time.Minute, mode, "test")
	return rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func hit(h http.Handler, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = addr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLocalLimiterEnforcesLimit(t *testing.T) {
	h := limitedHandler(NewLocalWindowLimiter(), 3, FailOpen)

	for i := 0; i < 3; i++ {
		if rec := hit(h, "10.0.0.1:1234"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
	rec := hit(h, "10.0.0.1:1234")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	// Another client key has its own window.
	if rec := hit(h, "10.0.0.2:1234"); rec.Code != http.StatusOK {
		t.Fatalf("other client must not share the window, got %d", rec.Code)
	}
}

func TestRateLimitHeaders(t *testing.T) {
	h := limitedHandler(NewLocalWindowLimiter(), 5, FailOpen)
	rec := hit(h, "10.0.0.1:1234")
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Fatalf("expected limit header 5, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "4" {
		t.Fatalf("expected remaining header 4, got %q", got)
	}
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, int, time.Duration) (Decision, error) {
	return Decision{}, errors.New("backend down")
}

func TestFailureModes(t *testing.T) {
	open := limitedHandler(brokenLimiter{}, 3, FailOpen)
	if rec := hit(open, "10.0.0.1:1234"); rec.Code != http.StatusOK {
		t.Fatalf("fail-open must admit on backend error, got %d", rec.Code)
	}

	closed := limitedHandler(brokenLimiter{}, 3, FailClosed)
	if rec := hit(closed, "10.0.0.1:1234"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("fail-closed must reject on backend error, got %d", rec.Code)
	}
}

func TestRedisLimiter(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedisWindowLimiter(client, "test")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(ctx, "client-1", 3, time.Minute)
		if err != nil {
			t.Fatalf("allow %d: %v", i+1, err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d within limit must be allowed", i+1)
		}
	}
	decision, err := limiter.Allow(ctx, "client-1", 3, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected denial past the limit")
	}
	if decision.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %v", decision.RetryAfter)
	}

	// Other keys count independently.
	decision, err = limiter.Allow(ctx, "client-2", 3, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("other key must have its own window")
	}
}

func TestRedisLimiterBackendError(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := NewRedisWindowLimiter(client, "test")

	srv.Close()
	if _, err := limiter.Allow(context.Background(), "client-1", 3, time.Minute); err == nil {
		t.Fatal("expected error when redis is down")
	}
}
