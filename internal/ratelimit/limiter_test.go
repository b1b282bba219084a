package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(zap.NewNop())

	if limiter == nil {
		t.Fatal("Expected non-nil rate limiter")
	}

	if limiter.buckets == nil {
		t.Error("Expected buckets map to be initialized")
	}
}

func TestWait_NewRoute(t *testing.T) {
	limiter := NewRateLimiter(zap.NewNop())

	start := time.Now()
	err := limiter.Wait(context.Background(), "/users/@me/guilds")
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	// Should complete quickly for a new route
	if duration > 100*time.Millisecond {
		t.Errorf("Wait() took too long for new route: %v", duration)
	}
}

func TestUpdateFromHeaders_ValidHeaders(t *testing.T) {
	limiter := NewRateLimiter(zap.NewNop())
	route := "/users/@me/guilds"

	reset := time.Now().Add(5 * time.Second)
	headers := http.Header{}
	headers.Set("X-RateLimit-Limit", "50")
	headers.Set("X-RateLimit-Remaining", "45")
	headers.Set("X-RateLimit-Reset", strconv.FormatFloat(float64(reset.UnixMilli())/1000, 'f', 3, 64))

	limiter.UpdateFromHeaders(route, headers)

	remaining, limit, resetAt := limiter.GetStatus(route)
	if limit != 50 {
		t.Errorf("Expected Limit 50, got %d", limit)
	}
	if remaining != 45 {
		t.Errorf("Expected Remaining 45, got %d", remaining)
	}
	if diff := resetAt.Sub(reset); diff > 10*time.Millisecond || diff < -10*time.Millisecond {
		t.Errorf("Expected reset near %v, got %v", reset, resetAt)
	}
}

func TestUpdateFromHeaders_ResetAfterWins(t *testing.T) {
	limiter := NewRateLimiter(zap.NewNop())
	route := "/users/@me"

	headers := http.Header{}
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
	headers.Set("X-RateLimit-Reset-After", "2.5")

	before := time.Now()
	limiter.UpdateFromHeaders(route, headers)

	_, _, resetAt := limiter.GetStatus(route)
	if resetAt.Sub(before) > 3*time.Second {
		t.Errorf("Expected Reset-After to take precedence, reset at %v", resetAt)
	}
}

func TestUpdateFromHeaders_MissingHeaders(t *testing.T) {
	limiter := NewRateLimiter(zap.NewNop())
	route := "/users/@me"

	limiter.UpdateFromHeaders(route, http.Header{})

	remaining, limit, _ := limiter.GetStatus(route)
	if remaining != defaultLimit || limit != defaultLimit {
		t.Errorf("Expected defaults, got remaining=%d limit=%d", remaining, limit)
	}
}

func TestUpdateFromHeaders_InvalidResetTime(t *testing.T) {
	limiter := NewRateLimiter(zap.NewNop())
	route := "/users/@me/guilds"

	headers := http.Header{}
	headers.Set("X-RateLimit-Limit", "100")
	headers.Set("X-RateLimit-Remaining", "95")
	headers.Set("X-RateLimit-Reset", "invalid_time")

	// Should not crash with invalid reset time
	limiter.UpdateFromHeaders(route, headers)

	_, limit, _ := limiter.GetStatus(route)
	if limit != 100 {
		t.Errorf("Expected Limit 100, got %d", limit)
	}
}

func TestWait_RateLimitExhausted(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping rate limit test in short mode")
	}
	limiter := NewRateLimiter(zap.NewNop())
	route := "/users/@me/guilds"

	headers := http.Header{}
	headers.Set("X-RateLimit-Limit", "5")
	headers.Set("X-RateLimit-Remaining", "0")
	headers.Set("X-RateLimit-Reset-After", "1")
	limiter.UpdateFromHeaders(route, headers)

	start := time.Now()
	err := limiter.Wait(context.Background(), route)
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	if duration < 900*time.Millisecond {
		t.Errorf("Wait() did not block long enough: waited %v", duration)
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	limiter := NewRateLimiter(zap.NewNop())
	route := "/users/@me/guilds"

	headers := http.Header{}
	headers.Set("X-RateLimit-Remaining", "0")
	headers.Set("X-RateLimit-Reset-After", "30")
	limiter.UpdateFromHeaders(route, headers)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := limiter.Wait(ctx, route)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("Wait() ignored cancellation")
	}
}

func TestHandleRateLimitResponse(t *testing.T) {
	limiter := NewRateLimiter(zap.NewNop())
	route := "/users/@me/guilds"

	headers := http.Header{}
	headers.Set("Retry-After", "1.5")

	before := time.Now()
	err := limiter.HandleRateLimitResponse(route, headers)
	if err == nil {
		t.Fatal("Expected an error")
	}

	remaining, _, resetAt := limiter.GetStatus(route)
	if remaining != 0 {
		t.Errorf("Expected Remaining 0, got %d", remaining)
	}
	if wait := resetAt.Sub(before); wait < 1400*time.Millisecond || wait > 2*time.Second {
		t.Errorf("Expected reset in about 1.5s, got %v", wait)
	}
}

func TestHandleRateLimitResponse_DefaultsToOneSecond(t *testing.T) {
	limiter := NewRateLimiter(zap.NewNop())
	route := "/users/@me"

	before := time.Now()
	_ = limiter.HandleRateLimitResponse(route, http.Header{})

	_, _, resetAt := limiter.GetStatus(route)
	if wait := resetAt.Sub(before); wait < 900*time.Millisecond || wait > 1500*time.Millisecond {
		t.Errorf("Expected a one second pause, got %v", wait)
	}
}

func TestConcurrentAccess(t *testing.T) {
	limiter := NewRateLimiter(zap.NewNop())
	route := "/concurrent/test"

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.Wait(context.Background(), route); err != nil {
				t.Errorf("Wait() failed: %v", err)
			}

			headers := http.Header{}
			headers.Set("X-RateLimit-Limit", "100")
			headers.Set("X-RateLimit-Remaining", "90")
			limiter.UpdateFromHeaders(route, headers)
		}()
	}
	wg.Wait()
}

func TestMultipleRoutes(t *testing.T) {
	limiter := NewRateLimiter(zap.NewNop())

	routes := []string{"/users/@me", "/users/@me/guilds", "/oauth2/token"}

	for i, route := range routes {
		headers := http.Header{}
		headers.Set("X-RateLimit-Limit", strconv.Itoa(50+i*10))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(45+i*10))
		limiter.UpdateFromHeaders(route, headers)

		if err := limiter.Wait(context.Background(), route); err != nil {
			t.Errorf("Wait() failed for route %s: %v", route, err)
		}
	}

	// Verify buckets are independent
	limiter.mu.RLock()
	if len(limiter.buckets) != len(routes) {
		t.Errorf("Expected %d buckets, got %d", len(routes), len(limiter.buckets))
	}
	limiter.mu.RUnlock()

	for i, route := range routes {
		if _, limit, _ := limiter.GetStatus(route); limit != 50+i*10 {
			t.Errorf("Expected limit %d for %s, got %d", 50+i*10, route, limit)
		}
	}
}
