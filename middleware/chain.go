// Package middleware provides composable wrappers around request handling:
// logging, panic recovery, request ids, deadlines, rate limits, size
// limits, authentication, and OpenTelemetry instrumentation.
package middleware

import (
	"context"

	"github.com/relaykit/relaykit/protocol"
)

// HandlerFunc is the signature middleware wraps. An error return is mapped
// to an error envelope by the dispatcher.
type HandlerFunc func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

// Middleware wraps a handler with additional behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middleware so they execute in the given order:
// Chain(a, b)(h) runs a, then b, then h.
func Chain(middlewares ...Middleware) Middleware {
	return func(final HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// DefaultStack is the recommended baseline: panic recovery first, then
// request ids, then logging.
func DefaultStack(logger Logger) []Middleware {
	return []Middleware{
		Recover(),
		RequestID(),
		Logging(logger),
	}
}
