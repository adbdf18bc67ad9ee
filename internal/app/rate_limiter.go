package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/campusrewards/ledger-service/internal/domain"
)

const (
	ScopeRedemption = "redemption"
	ScopeTransfer   = "transfer"
)

// RateLimiter counts requests per (scope, subject) inside a window. It reports
// the count after this request and, when over limit, how long to wait.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope string, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// RateLimits holds per-minute limits for member initiated operations. Zero disables a limit.
type RateLimits struct {
	RedemptionsPerMinute int
	TransfersPerMinute   int
}

// RateLimitError is returned when a caller exceeded their allowance.
type RateLimitError struct {
	Scope             string
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: %s retry after %ds", domain.ErrRateLimited, e.Scope, e.RetryAfterSeconds)
}

func (e *RateLimitError) Unwrap() error { return domain.ErrRateLimited }

// SetRateLimiter installs the limiter used by RequestRedemption and Transfer.
func (s *Service) SetRateLimiter(limiter RateLimiter, limits RateLimits) {
	s.rateLimiter = limiter
	s.rateLimits = limits
}

// enforceRateLimit runs before any unit of work is opened. Limiter failures are
// logged and the request is let through.
func (s *Service) enforceRateLimit(ctx context.Context, scope, subject string) error {
	if s.rateLimiter == nil {
		return nil
	}
	limit := 0
	switch scope {
	case ScopeRedemption:
		limit = s.rateLimits.RedemptionsPerMinute
	case ScopeTransfer:
		limit = s.rateLimits.TransfersPerMinute
	}
	if limit <= 0 {
		return nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, scope, subject, limit, time.Minute)
	if err != nil {
		s.logger.Warn("rate limiter unavailable; allowing request", "scope", scope, "account_id", subject, "error", err)
		return nil
	}
	if count > limit {
		return &RateLimitError{Scope: scope, RetryAfterSeconds: retryAfter}
	}
	return nil
}

// TokenBucketLimiter is an in-process RateLimiter for single instance deployments
// and tests. Each (scope, subject) gets a bucket refilling limit tokens per window.
type TokenBucketLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	buckets map[string]*rate.Limiter
}

func NewTokenBucketLimiter(now func() time.Time) *TokenBucketLimiter {
	if now == nil {
		now = time.Now
	}
	return &TokenBucketLimiter{now: now, buckets: make(map[string]*rate.Limiter)}
}

func (l *TokenBucketLimiter) ConsumeRateLimit(_ context.Context, scope string, subject string, limit int, window time.Duration) (int, int, error) {
	scope, subject = strings.TrimSpace(scope), strings.TrimSpace(subject)
	if limit <= 0 || window <= 0 || scope == "" || subject == "" {
		return 0, 0, nil
	}

	key := scope + ":" + subject
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok || bucket.Burst() != limit {
		bucket = rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
		l.buckets[key] = bucket
	}

	now := l.now()
	reservation := bucket.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		retryAfter := int(math.Ceil(delay.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		return limit + 1, retryAfter, nil
	}
	used := limit - int(math.Floor(bucket.TokensAt(now)))
	return used, 0, nil
}
