package dispatch

import (
	"context"
	"sync"

	"github.com/relaykit/relaykit/protocol"
)

// SubscribeParams is the payload of resources/subscribe and
// resources/unsubscribe.
type SubscribeParams struct {
	URI string `json:"uri"`
}

// ResourceUpdatedParams is the payload of the resource update
// notification.
type ResourceUpdatedParams struct {
	URI string `json:"uri"`
}

// Subscriptions tracks which sessions want update notifications for
// which resource URIs. Sessions are identified by their Notifier, which
// must be comparable.
type Subscriptions struct {
	mu    sync.RWMutex
	byURI map[string]map[Notifier]struct{}
}

// NewSubscriptions creates an empty subscription table.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{byURI: make(map[string]map[Notifier]struct{})}
}

// Subscribe registers n for updates to uri.
func (s *Subscriptions) Subscribe(uri string, n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byURI[uri] == nil {
		s.byURI[uri] = make(map[Notifier]struct{})
	}
	s.byURI[uri][n] = struct{}{}
}

// Unsubscribe removes n's subscription to uri.
func (s *Subscriptions) Unsubscribe(uri string, n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if subs, ok := s.byURI[uri]; ok {
		delete(subs, n)
		if len(subs) == 0 {
			delete(s.byURI, uri)
		}
	}
}

// Drop removes every subscription held by n, typically on session end.
func (s *Subscriptions) Drop(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for uri, subs := range s.byURI {
		delete(subs, n)
		if len(subs) == 0 {
			delete(s.byURI, uri)
		}
	}
}

// HasSubscribers reports whether anyone watches uri.
func (s *Subscriptions) HasSubscribers(uri string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byURI[uri]) > 0
}

// Count returns the total number of subscriptions.
func (s *Subscriptions) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, subs := range s.byURI {
		n += len(subs)
	}
	return n
}

// Publish notifies every subscriber of uri that the resource changed.
// The first notifier failure is returned; remaining subscribers are
// still notified.
func (s *Subscriptions) Publish(ctx context.Context, uri string) error {
	s.mu.RLock()
	notifiers := make([]Notifier, 0, len(s.byURI[uri]))
	for n := range s.byURI[uri] {
		notifiers = append(notifiers, n)
	}
	s.mu.RUnlock()

	var firstErr error
	for _, n := range notifiers {
		if err := n.Notify(ctx, protocol.MethodResourceUpdated, ResourceUpdatedParams{URI: uri}); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (d *Dispatcher) handleResourcesSubscribe(ctx context.Context, req *protocol.Request, subscribe bool) (*protocol.Response, error) {
	var params SubscribeParams
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, err
	}
	if params.URI == "" {
		return nil, protocol.NewMissingParameter("uri")
	}
	if _, ok := d.reg.FindResource(params.URI); !ok {
		return nil, protocol.NewNotFound("no resource matches " + params.URI)
	}

	n, ok := ctx.Value(notifierKey{}).(Notifier)
	if !ok {
		return nil, protocol.NewInvalidRequest("subscriptions need a bidirectional transport")
	}
	if subscribe {
		d.subs.Subscribe(params.URI, n)
	} else {
		d.subs.Unsubscribe(params.URI, n)
	}
	return protocol.NewResponse(req.ID, map[string]any{}), nil
}
