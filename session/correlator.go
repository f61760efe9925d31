package session

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/relaykit/relaykit/protocol"
)

// Outcome is the terminal result of one correlated call: a response from
// the peer or a local failure (timeout, disconnect).
type Outcome struct {
	Response *protocol.Response
	Err      error
}

// Pending is a single-fulfillment slot for one in-flight request.
type Pending struct {
	ch chan Outcome
}

// Await blocks until the slot is fulfilled or ctx fires.
func (p *Pending) Await(ctx context.Context) (*protocol.Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-p.ch:
		if out.Err != nil {
			return nil, out.Err
		}
		return out.Response, nil
	}
}

// Correlator matches inbound responses to the requests that initiated them.
// Each slot is fulfilled at most once: the first of response, failure, or
// removal wins, and anything arriving later finds no slot.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*Pending
	nextID  atomic.Int64
}

// NewCorrelator creates an empty pending-request table.
func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[string]*Pending)}
}

// NextID allocates a fresh numeric request id as its raw JSON token.
func (c *Correlator) NextID() json.RawMessage {
	return json.RawMessage(strconv.FormatInt(c.nextID.Add(1), 10))
}

// Key canonicalizes a raw id token for table lookup. Responses echo the
// request id byte-for-byte modulo whitespace, so the trimmed token is a
// stable key for both numeric and string ids.
func Key(id json.RawMessage) string {
	return string(bytes.TrimSpace(id))
}

// Register creates a slot for the given request id.
func (c *Correlator) Register(id json.RawMessage) *Pending {
	p := &Pending{ch: make(chan Outcome, 1)}
	c.mu.Lock()
	c.pending[Key(id)] = p
	c.mu.Unlock()
	return p
}

// Fulfill delivers a response to its slot. It reports false when no slot
// exists, either because the id is unknown or the caller already gave up.
func (c *Correlator) Fulfill(resp *protocol.Response) bool {
	c.mu.Lock()
	key := Key(resp.ID)
	p, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	p.ch <- Outcome{Response: resp}
	return true
}

// Remove drops a slot without fulfilling it. Used on call timeout so a late
// response is discarded rather than delivered to a caller that moved on.
func (c *Correlator) Remove(id json.RawMessage) bool {
	c.mu.Lock()
	key := Key(id)
	_, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	return ok
}

// FailAll fulfills every outstanding slot with err. Called when the
// underlying transport disconnects.
func (c *Correlator) FailAll(err error) {
	c.mu.Lock()
	drained := c.pending
	c.pending = make(map[string]*Pending)
	c.mu.Unlock()
	for _, p := range drained {
		p.ch <- Outcome{Err: err}
	}
}

// Len reports the number of in-flight requests.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
