package middleware

import (
	"context"
	"fmt"

	"github.com/relaykit/relaykit/protocol"
)

// PanicHandler converts a recovered panic into a response or error.
type PanicHandler func(ctx context.Context, req *protocol.Request, panicVal any) (*protocol.Response, error)

// Recover catches handler panics and turns them into internal errors, so a
// misbehaving capability cannot take the session loop down with it.
func Recover() Middleware {
	return RecoverWithHandler(func(_ context.Context, _ *protocol.Request, panicVal any) (*protocol.Response, error) {
		return nil, protocol.NewInternalError(fmt.Sprintf("panic: %v", panicVal))
	})
}

// RecoverWithHandler catches panics and delegates to a custom handler.
func RecoverWithHandler(handler PanicHandler) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (resp *protocol.Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp, err = handler(ctx, req, r)
				}
			}()
			return next(ctx, req)
		}
	}
}
