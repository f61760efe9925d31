package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/relaykit/relaykit/protocol"
)

func okHandler() HandlerFunc {
	return func(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
		return protocol.NewResponse(req.ID, "ok"), nil
	}
}

func newReq(method string) *protocol.Request {
	return protocol.NewRequest([]byte(`1`), method, nil)
}

// captureLogger records log calls for assertions.
type captureLogger struct {
	mu      sync.Mutex
	entries []string
}

func (c *captureLogger) record(level, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, level+": "+msg)
}

func (c *captureLogger) Debug(msg string, _ ...Field) { c.record("debug", msg) }
func (c *captureLogger) Info(msg string, _ ...Field)  { c.record("info", msg) }
func (c *captureLogger) Warn(msg string, _ ...Field)  { c.record("warn", msg) }
func (c *captureLogger) Error(msg string, _ ...Field) { c.record("error", msg) }

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	handler := Chain(tag("first"), tag("second"), tag("third"))(okHandler())
	if _, err := handler(context.Background(), newReq("ping")); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	want := []string{"first", "second", "third"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("execution order = %v, want %v", order, want)
		}
	}
}

func TestRecover(t *testing.T) {
	handler := Recover()(func(context.Context, *protocol.Request) (*protocol.Response, error) {
		panic("handler exploded")
	})

	_, err := handler(context.Background(), newReq("boom"))
	var perr *protocol.Error
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *protocol.Error", err)
	}
	if perr.Code != protocol.CodeInternalError {
		t.Errorf("Code = %d, want internal error", perr.Code)
	}
}

func TestRequestID(t *testing.T) {
	t.Run("injects when absent", func(t *testing.T) {
		var seen string
		handler := RequestID()(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			seen = RequestIDFromContext(ctx)
			return nil, nil
		})
		_, _ = handler(context.Background(), newReq("x"))
		if seen == "" {
			t.Error("no request id injected")
		}
	})

	t.Run("preserves existing", func(t *testing.T) {
		var seen string
		handler := RequestID()(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			seen = RequestIDFromContext(ctx)
			return nil, nil
		})
		ctx := ContextWithRequestID(context.Background(), "preset")
		_, _ = handler(ctx, newReq("x"))
		if seen != "preset" {
			t.Errorf("request id = %q, want preset", seen)
		}
	})
}

func TestTimeout(t *testing.T) {
	handler := Timeout(20 * time.Millisecond)(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return protocol.NewResponse(req.ID, "late"), nil
		}
	})

	if _, err := handler(context.Background(), newReq("slow")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}

	t.Run("per-method override", func(t *testing.T) {
		handler := Timeout(time.Millisecond, WithMethodTimeout("slow", time.Second))(
			func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(50 * time.Millisecond):
					return protocol.NewResponse(req.ID, "done"), nil
				}
			})
		if _, err := handler(context.Background(), newReq("slow")); err != nil {
			t.Errorf("overridden method timed out: %v", err)
		}
		if _, err := handler(context.Background(), newReq("other")); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want deadline exceeded", err)
		}
	})
}

func TestLogging(t *testing.T) {
	logger := &captureLogger{}

	t.Run("success at info", func(t *testing.T) {
		handler := Logging(logger)(okHandler())
		_, _ = handler(context.Background(), newReq("ping"))
	})
	t.Run("failure at error", func(t *testing.T) {
		handler := Logging(logger)(func(context.Context, *protocol.Request) (*protocol.Response, error) {
			return nil, fmt.Errorf("bad")
		})
		_, _ = handler(context.Background(), newReq("ping"))
	})

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.entries) != 2 {
		t.Fatalf("log entries = %v", logger.entries)
	}
	if logger.entries[0] != "info: request completed" {
		t.Errorf("first entry = %q", logger.entries[0])
	}
	if logger.entries[1] != "error: request failed" {
		t.Errorf("second entry = %q", logger.entries[1])
	}
}

func TestSizeLimit(t *testing.T) {
	handler := SizeLimit(8)(okHandler())

	small := protocol.NewRequest([]byte(`1`), "go", []byte(`{"a":1}`))
	if _, err := handler(context.Background(), small); err != nil {
		t.Errorf("small request error = %v", err)
	}

	big := protocol.NewRequest([]byte(`2`), "go", []byte(`{"a":"0123456789"}`))
	_, err := handler(context.Background(), big)
	var perr *protocol.Error
	if !errors.As(err, &perr) || perr.Code != protocol.CodeInvalidRequest {
		t.Errorf("big request error = %v, want invalid request", err)
	}
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(1, 1)(okHandler())
	ctx := context.Background()

	if _, err := handler(ctx, newReq("a")); err != nil {
		t.Fatalf("first request error = %v", err)
	}
	_, err := handler(ctx, newReq("a"))
	if !errors.Is(err, &protocol.Error{Code: protocol.CodeRateLimited}) {
		t.Errorf("second request error = %v, want rate limited", err)
	}
}

func TestAuth(t *testing.T) {
	tokens := StaticTokens(map[string]*Identity{
		"sekrit": {Subject: "user-1", Name: "Test User"},
	})
	mw := Auth(BearerTokenAuthenticator(tokens))

	t.Run("valid token attaches identity", func(t *testing.T) {
		var seen *Identity
		handler := mw(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			seen = IdentityFromContext(ctx)
			return nil, nil
		})
		ctx := protocol.ContextWithRequestMeta(context.Background(),
			protocol.RequestMeta{"Authorization": "Bearer sekrit"})
		if _, err := handler(ctx, newReq("tools/call")); err != nil {
			t.Fatalf("handler error = %v", err)
		}
		if seen == nil || seen.Subject != "user-1" {
			t.Errorf("identity = %+v, want subject user-1", seen)
		}
	})

	t.Run("missing credentials rejected", func(t *testing.T) {
		handler := mw(okHandler())
		_, err := handler(context.Background(), newReq("tools/call"))
		var perr *protocol.Error
		if !errors.As(err, &perr) || perr.Code != protocol.CodePermissionDenied {
			t.Errorf("error = %v, want permission denied", err)
		}
	})

	t.Run("ping exempt", func(t *testing.T) {
		handler := mw(okHandler())
		if _, err := handler(context.Background(), newReq(protocol.MethodPing)); err != nil {
			t.Errorf("ping error = %v", err)
		}
	})

	t.Run("custom skip methods", func(t *testing.T) {
		handler := Auth(BearerTokenAuthenticator(tokens),
			WithAuthSkipMethods(protocol.MethodToolsList))(okHandler())
		if _, err := handler(context.Background(), newReq(protocol.MethodToolsList)); err != nil {
			t.Errorf("skipped method error = %v", err)
		}
	})
}

func TestChainAuthenticators(t *testing.T) {
	none := func(context.Context, *protocol.Request) (*Identity, error) { return nil, nil }
	found := func(context.Context, *protocol.Request) (*Identity, error) {
		return &Identity{Subject: "second"}, nil
	}

	id, err := ChainAuthenticators(none, found)(context.Background(), newReq("x"))
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	if id == nil || id.Subject != "second" {
		t.Errorf("identity = %+v, want subject second", id)
	}
}
