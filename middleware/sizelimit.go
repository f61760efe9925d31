package middleware

import (
	"context"
	"fmt"

	"github.com/relaykit/relaykit/protocol"
)

// Size limit presets.
const (
	KB = 1024
	MB = 1024 * 1024
)

// SizeLimitOption configures the size limit middleware.
type SizeLimitOption func(*sizeLimitConfig)

type sizeLimitConfig struct {
	logger Logger
}

// WithSizeLimitLogger logs rejected requests.
func WithSizeLimitLogger(l Logger) SizeLimitOption {
	return func(c *sizeLimitConfig) { c.logger = l }
}

// SizeLimit rejects requests whose params exceed maxBytes.
func SizeLimit(maxBytes int64, opts ...SizeLimitOption) Middleware {
	cfg := &sizeLimitConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			if size := int64(len(req.Params)); size > maxBytes {
				if cfg.logger != nil {
					cfg.logger.Warn("request size limit exceeded",
						F("method", req.Method),
						F("size", size),
						F("max", maxBytes))
				}
				return nil, protocol.NewInvalidRequest(
					fmt.Sprintf("params size %d exceeds limit of %d bytes", size, maxBytes))
			}
			return next(ctx, req)
		}
	}
}
