package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	minAdaptiveDelay = time.Second
	maxAdaptiveMin   = 60 * time.Second
	maxAdaptiveMax   = 120 * time.Second
)

type RateLimiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// SimpleRateLimiter spaces calls by a random delay in [minDelay, maxDelay).
type SimpleRateLimiter struct {
	mu         sync.Mutex
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	jitter     bool
}

func NewSimpleRateLimiter(minDelay, maxDelay time.Duration) *SimpleRateLimiter {
	return &SimpleRateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		jitter:   true,
	}
}

func (r *SimpleRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lastAction.IsZero() {
		elapsed := time.Since(r.lastAction)
		if delay := r.calculateDelay(); elapsed < delay {
			if err := sleep(ctx, delay-elapsed); err != nil {
				return err
			}
		}
	}

	r.lastAction = time.Now()
	return nil
}

func (r *SimpleRateLimiter) SetDelay(min, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.minDelay = min
	r.maxDelay = max
}

// Delays returns the current bounds.
func (r *SimpleRateLimiter) Delays() (time.Duration, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minDelay, r.maxDelay
}

func (r *SimpleRateLimiter) calculateDelay() time.Duration {
	if !r.jitter || r.maxDelay <= r.minDelay {
		return r.minDelay
	}

	delta := r.maxDelay - r.minDelay
	return r.minDelay + time.Duration(rand.Int63n(int64(delta)))
}

// AdaptiveRateLimiter widens its delays after repeated errors or a block and
// narrows them again after a run of successes.
type AdaptiveRateLimiter struct {
	*SimpleRateLimiter
	errorCount    int
	successCount  int
	maxErrorCount int
	backoffFactor float64
}

func NewAdaptiveRateLimiter(minDelay, maxDelay time.Duration) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		SimpleRateLimiter: NewSimpleRateLimiter(minDelay, maxDelay),
		maxErrorCount:     3,
		backoffFactor:     1.5,
	}
}

func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.errorCount = 0

	if a.successCount > 5 {
		newMin := time.Duration(float64(a.minDelay) * 0.9)
		if newMin < minAdaptiveDelay {
			newMin = minAdaptiveDelay
		}
		a.minDelay = newMin
		a.successCount = 0
	}
}

func (a *AdaptiveRateLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++
	a.successCount = 0

	if a.errorCount >= a.maxErrorCount {
		a.backoff()
		a.errorCount = 0
	}
}

// RecordBlocked backs off immediately, as after a 503 or a captcha page.
func (a *AdaptiveRateLimiter) RecordBlocked() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount = 0
	a.errorCount = 0
	a.backoff()
}

func (a *AdaptiveRateLimiter) backoff() {
	newMin := time.Duration(float64(a.minDelay) * a.backoffFactor)
	newMax := time.Duration(float64(a.maxDelay) * a.backoffFactor)

	if newMin > maxAdaptiveMin {
		newMin = maxAdaptiveMin
	}
	if newMax > maxAdaptiveMax {
		newMax = maxAdaptiveMax
	}

	a.minDelay = newMin
	a.maxDelay = newMax
}

// TokenBucketRateLimiter allows burst requests and refills at perSecond, with
// an additional fixed pause after every token.
type TokenBucketRateLimiter struct {
	limiter *rate.Limiter

	mu       sync.Mutex
	minDelay time.Duration
}

func NewTokenBucketRateLimiter(perSecond float64, burst int) *TokenBucketRateLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &TokenBucketRateLimiter{
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (t *TokenBucketRateLimiter) Wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	pause := t.minDelay
	t.mu.Unlock()

	return sleep(ctx, pause)
}

func (t *TokenBucketRateLimiter) SetDelay(min, max time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.minDelay = min
}

// Chain waits on every limiter in order.
type Chain []RateLimiter

func (c Chain) Wait(ctx context.Context) error {
	for _, l := range c {
		if err := l.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c Chain) SetDelay(min, max time.Duration) {
	for _, l := range c {
		l.SetDelay(min, max)
	}
}

// RecordSuccess, RecordError and RecordBlocked reach the adaptive members.
func (c Chain) RecordSuccess() {
	for _, l := range c {
		if a, ok := l.(interface{ RecordSuccess() }); ok {
			a.RecordSuccess()
		}
	}
}

func (c Chain) RecordError() {
	for _, l := range c {
		if a, ok := l.(interface{ RecordError() }); ok {
			a.RecordError()
		}
	}
}

func (c Chain) RecordBlocked() {
	for _, l := range c {
		if a, ok := l.(interface{ RecordBlocked() }); ok {
			a.RecordBlocked()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
