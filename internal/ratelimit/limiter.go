// Package ratelimit paces calls to the Discord REST API per route, following
// the X-RateLimit-* headers Discord returns.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Default pacing until a route reports its own limits
const (
	defaultLimit    = 5
	defaultInterval = 200 * time.Millisecond
)

// Bucket holds the limit state of one route
type Bucket struct {
	Remaining int
	Limit     int
	ResetAt   time.Time
	limiter   *rate.Limiter
	mu        sync.Mutex
}

// RateLimiter manages the buckets of every route seen so far
type RateLimiter struct {
	buckets map[string]*Bucket // route -> bucket
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*Bucket),
		logger:  logger,
	}
}

func (rl *RateLimiter) getBucket(route string) *Bucket {
	rl.mu.RLock()
	bucket, ok := rl.buckets[route]
	rl.mu.RUnlock()
	if ok {
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if bucket, ok := rl.buckets[route]; ok {
		return bucket
	}

	bucket = &Bucket{
		Remaining: defaultLimit,
		Limit:     defaultLimit,
		ResetAt:   time.Now().Add(time.Second),
		limiter:   rate.NewLimiter(rate.Every(defaultInterval), defaultLimit),
	}
	rl.buckets[route] = bucket
	return bucket
}

// Wait blocks until a request on route may be sent or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context, route string) error {
	bucket := rl.getBucket(route)

	bucket.mu.Lock()
	var pause time.Duration
	if bucket.Remaining <= 0 {
		pause = time.Until(bucket.ResetAt)
	}
	limiter := bucket.limiter
	bucket.mu.Unlock()

	if pause > 0 {
		rl.logger.Warn("rate limit exhausted, waiting",
			zap.String("route", route),
			zap.Duration("wait_duration", pause),
		)

		timer := time.NewTimer(pause)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limiter wait cancelled: %w", ctx.Err())
		}
	}

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	return nil
}

// parseReset reads the bucket reset instant. Discord sends X-RateLimit-Reset
// as epoch seconds with a fractional part and X-RateLimit-Reset-After as
// seconds from now; the relative form wins when both are present.
func parseReset(headers http.Header, now time.Time) (time.Time, bool) {
	if after := headers.Get("X-RateLimit-Reset-After"); after != "" {
		if seconds, err := strconv.ParseFloat(after, 64); err == nil {
			return now.Add(time.Duration(seconds * float64(time.Second))), true
		}
	}

	if reset := headers.Get("X-RateLimit-Reset"); reset != "" {
		if epoch, err := strconv.ParseFloat(reset, 64); err == nil {
			sec := int64(epoch)
			nsec := int64((epoch - float64(sec)) * float64(time.Second))
			return time.Unix(sec, nsec), true
		}
		if t, err := time.Parse(time.RFC3339, reset); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// UpdateFromHeaders updates the bucket of route from a Discord response
func (rl *RateLimiter) UpdateFromHeaders(route string, headers http.Header) {
	bucket := rl.getBucket(route)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	if remaining, err := strconv.Atoi(headers.Get("X-RateLimit-Remaining")); err == nil {
		bucket.Remaining = remaining
	}

	if limit, err := strconv.Atoi(headers.Get("X-RateLimit-Limit")); err == nil {
		bucket.Limit = limit
	}

	if resetAt, ok := parseReset(headers, time.Now()); ok {
		bucket.ResetAt = resetAt
	}

	// Spread the window's requests evenly over the time left in it
	if bucket.Limit > 0 {
		if window := time.Until(bucket.ResetAt); window > 0 {
			perSecond := float64(bucket.Limit) / window.Seconds()
			bucket.limiter = rate.NewLimiter(rate.Limit(perSecond), bucket.Limit)
		}
	}

	rl.logger.Debug("updated rate limit from headers",
		zap.String("route", route),
		zap.Int("remaining", bucket.Remaining),
		zap.Int("limit", bucket.Limit),
		zap.Time("reset_at", bucket.ResetAt),
	)
}

// HandleRateLimitResponse records a 429 response and returns the resulting error
func (rl *RateLimiter) HandleRateLimitResponse(route string, headers http.Header) error {
	bucket := rl.getBucket(route)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	now := time.Now()

	var retryAfter time.Duration
	if seconds, err := strconv.ParseFloat(headers.Get("Retry-After"), 64); err == nil {
		retryAfter = time.Duration(seconds * float64(time.Second))
	}

	if retryAfter <= 0 {
		if resetAt, ok := parseReset(headers, now); ok {
			retryAfter = resetAt.Sub(now)
		}
	}

	if retryAfter <= 0 {
		retryAfter = time.Second
	}

	bucket.Remaining = 0
	bucket.ResetAt = now.Add(retryAfter)

	rl.logger.Warn("rate limited by Discord API",
		zap.String("route", route),
		zap.Duration("retry_after", retryAfter),
		zap.Bool("global", headers.Get("X-RateLimit-Global") == "true"),
	)

	return fmt.Errorf("rate limited, retry after %v", retryAfter)
}

// GetStatus returns the current limit state of route
func (rl *RateLimiter) GetStatus(route string) (remaining int, limit int, resetAt time.Time) {
	bucket := rl.getBucket(route)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	return bucket.Remaining, bucket.Limit, bucket.ResetAt
}
