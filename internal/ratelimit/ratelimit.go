// Package ratelimit caps how many public API requests a single client IP may
// make per window.
//
// The primary store is shared across replicas (Redis). When it keeps failing
// a circuit breaker routes checks to an in-memory sliding window, and the
// response carries X-RateLimit-Status: degraded until the primary recovers.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"idregistry/pkg/platform/circuit"
)

// Result is the outcome of a single check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	Degraded  bool
}

// RetryAfter is the whole number of seconds until the window resets, at least one.
func (r *Result) RetryAfter(now time.Time) int {
	secs := int(r.ResetAt.Sub(now).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}

// Store counts requests per key within a window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// Limiter checks keys against a primary store, falling back while the
// primary's circuit is open.
type Limiter struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	limit    int
	window   time.Duration
	logger   *slog.Logger
}

type Option func(*Limiter)

// WithFallback sets the store used while the primary is failing.
func WithFallback(s Store) Option {
	return func(l *Limiter) {
		l.fallback = s
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(l *Limiter) {
		l.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

var errInvalidLimit = errors.New("rate limit and window must be positive")

// New builds a limiter allowing limit requests per window for each key.
func New(primary Store, limit int, window time.Duration, opts ...Option) (*Limiter, error) {
	if primary == nil {
		return nil, errors.New("primary store is required")
	}
	if limit <= 0 || window <= 0 {
		return nil, errInvalidLimit
	}
	l := &Limiter{
		primary: primary,
		limit:   limit,
		window:  window,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.breaker == nil {
		l.breaker = circuit.New("ratelimit")
	}
	return l, nil
}

// Check counts one request against key.
//
// Errors from the primary are returned only when no fallback is configured.
func (l *Limiter) Check(ctx context.Context, key string) (*Result, error) {
	if l.fallback == nil {
		return l.primary.Allow(ctx, key, l.limit, l.window)
	}
	if !l.breaker.Allow() {
		return l.degraded(ctx, key)
	}

	res, err := l.primary.Allow(ctx, key, l.limit, l.window)
	if err != nil {
		if _, change := l.breaker.RecordFailure(); change.Opened {
			l.logger.WarnContext(ctx, "rate limit circuit opened, using in-memory fallback",
				"breaker", l.breaker.Name(),
				"error", err,
			)
		}
		return l.degraded(ctx, key)
	}
	if _, change := l.breaker.RecordSuccess(); change.Closed {
		l.logger.InfoContext(ctx, "rate limit circuit closed", "breaker", l.breaker.Name())
	}
	if l.breaker.IsOpen() {
		res.Degraded = true
	}
	return res, nil
}

func (l *Limiter) degraded(ctx context.Context, key string) (*Result, error) {
	res, err := l.fallback.Allow(ctx, key, l.limit, l.window)
	if err != nil {
		return nil, err
	}
	res.Degraded = true
	return res, nil
}

// IPKey is the bucket key for a client IP.
func IPKey(ip string) string {
	return "ratelimit:ip:" + ip
}
