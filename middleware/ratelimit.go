package middleware

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"

	"github.com/relaykit/relaykit/protocol"
)

// RateLimitOption configures the rate limiter.
type RateLimitOption func(*rateLimitConfig)

type rateLimitConfig struct {
	keyFunc func(*protocol.Request) string
	logger  Logger
}

// WithRateLimitKeyFunc buckets requests by a derived key, enabling
// per-method or per-client limits.
func WithRateLimitKeyFunc(fn func(*protocol.Request) string) RateLimitOption {
	return func(c *rateLimitConfig) { c.keyFunc = fn }
}

// WithRateLimitLogger logs rejected requests.
func WithRateLimitLogger(l Logger) RateLimitOption {
	return func(c *rateLimitConfig) { c.logger = l }
}

// RateLimit enforces a token-bucket limit of rate requests per second with
// the given burst. Rejected requests fail with a rate-limited error.
func RateLimit(rate, burst int, opts ...RateLimitOption) Middleware {
	cfg := &rateLimitConfig{
		keyFunc: func(*protocol.Request) string { return "global" },
	}
	for _, opt := range opts {
		opt(cfg)
	}

	limiter := ratelimit.New(&ratelimit.Config{
		Rate:     rate,
		Burst:    burst,
		Interval: time.Second,
	})

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			key := cfg.keyFunc(req)
			if !limiter.Allow(ctx, key) {
				if cfg.logger != nil {
					cfg.logger.Warn("rate limit exceeded",
						F("method", req.Method),
						F("key", key))
				}
				return nil, protocol.NewRateLimited("rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}

// RateLimitByMethod applies an independent bucket per method name.
func RateLimitByMethod(rate, burst int, opts ...RateLimitOption) Middleware {
	all := append([]RateLimitOption{
		WithRateLimitKeyFunc(func(req *protocol.Request) string { return req.Method }),
	}, opts...)
	return RateLimit(rate, burst, all...)
}

// RateLimitBySubject applies an independent bucket per authenticated
// subject; unauthenticated requests share the "anonymous" bucket.
func RateLimitBySubject(rate, burst int, opts ...RateLimitOption) Middleware {
	cfg := &rateLimitConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	limiter := ratelimit.New(&ratelimit.Config{
		Rate:     rate,
		Burst:    burst,
		Interval: time.Second,
	})

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			key := "anonymous"
			if id := IdentityFromContext(ctx); id != nil && id.Subject != "" {
				key = id.Subject
			}
			if !limiter.Allow(ctx, key) {
				if cfg.logger != nil {
					cfg.logger.Warn("rate limit exceeded",
						F("method", req.Method),
						F("subject", key))
				}
				return nil, protocol.NewRateLimited("rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
