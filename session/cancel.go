package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/relaykit/relaykit/protocol"
)

// CancelParams is the payload of a cancellation notification.
type CancelParams struct {
	RequestID json.RawMessage `json:"requestId"`
	Reason    string          `json:"reason,omitempty"`
}

// canceller tracks cancel funcs for in-flight inbound requests so a peer
// can abort work it no longer wants.
type canceller struct {
	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func newCanceller() *canceller {
	return &canceller{active: make(map[string]context.CancelFunc)}
}

// track derives a cancellable context for one request. The returned release
// func untracks without cancelling and must run when the handler finishes.
func (c *canceller) track(ctx context.Context, key string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.active[key] = cancel
	c.mu.Unlock()
	return ctx, func() {
		cancel()
		c.mu.Lock()
		delete(c.active, key)
		c.mu.Unlock()
	}
}

// cancel aborts the request with the given key. It reports whether the
// request was still in flight.
func (c *canceller) cancel(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fn, ok := c.active[key]; ok {
		fn()
		delete(c.active, key)
		return true
	}
	return false
}

func (c *canceller) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// handleCancelled aborts the named in-flight request. Cancellation for an
// unknown or already-finished id is a no-op.
func (s *Session) handleCancelled(note *protocol.Request) {
	var p CancelParams
	if err := json.Unmarshal(note.Params, &p); err != nil {
		s.reportError(fmt.Errorf("decode cancellation: %w", err))
		return
	}
	if len(p.RequestID) == 0 {
		s.reportError(fmt.Errorf("cancellation without request id"))
		return
	}
	s.cancels.cancel(Key(p.RequestID))
}

// CancelRequest asks the peer to abandon a request this session issued.
func (s *Session) CancelRequest(ctx context.Context, id json.RawMessage, reason string) error {
	return s.Notify(ctx, protocol.MethodCancelled, CancelParams{RequestID: id, Reason: reason})
}
