package middleware

import (
	"context"
	"time"

	"github.com/relaykit/relaykit/protocol"
)

// TimeoutOption configures the timeout middleware.
type TimeoutOption func(*timeoutConfig)

type timeoutConfig struct {
	perMethod map[string]time.Duration
}

// WithMethodTimeout overrides the default deadline for one method, for
// capabilities that legitimately run long.
func WithMethodTimeout(method string, d time.Duration) TimeoutOption {
	return func(c *timeoutConfig) {
		if c.perMethod == nil {
			c.perMethod = make(map[string]time.Duration)
		}
		c.perMethod[method] = d
	}
}

// Timeout bounds each request with a deadline. Handlers that honor their
// context observe cancellation; the caller gets context.DeadlineExceeded.
func Timeout(d time.Duration, opts ...TimeoutOption) Middleware {
	cfg := timeoutConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			deadline := d
			if override, ok := cfg.perMethod[req.Method]; ok {
				deadline = override
			}
			ctx, cancel := context.WithTimeout(ctx, deadline)
			defer cancel()
			return next(ctx, req)
		}
	}
}
