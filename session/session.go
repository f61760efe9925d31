package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/relaykit/relaykit/protocol"
	"github.com/relaykit/relaykit/transport"
)

// ErrDisconnected fulfills pending calls when the transport drops before
// their responses arrive.
var ErrDisconnected = errors.New("session: disconnected")

// ErrNotReady is returned by Call and Notify before Start.
var ErrNotReady = errors.New("session: not started")

// State is the lifecycle position of a session.
type State int32

const (
	StateConnecting State = iota
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handler processes one inbound request and returns the response envelope
// to write back. Returning nil suppresses the reply, which is only correct
// for handlers that already sent one.
type Handler interface {
	Handle(ctx context.Context, req *protocol.Request) *protocol.Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *protocol.Request) *protocol.Response

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, req *protocol.Request) *protocol.Response {
	return f(ctx, req)
}

// Option configures a Session.
type Option func(*Session)

// WithHandler sets the handler for inbound requests. Without one, every
// request is answered with a method-not-found error.
func WithHandler(h Handler) Option {
	return func(s *Session) { s.handler = h }
}

// WithNotificationHandler sets the sink for inbound notifications. It is
// invoked from the receive loop, so notifications arrive in wire order.
func WithNotificationHandler(fn func(ctx context.Context, note *protocol.Request)) Option {
	return func(s *Session) { s.onNotification = fn }
}

// WithErrorHandler sets the sink for loop-level faults: malformed frames,
// write failures, responses nobody is waiting for. The loop keeps running
// after reporting one.
func WithErrorHandler(fn func(err error)) Option {
	return func(s *Session) { s.onError = fn }
}

// WithCallTimeout bounds how long Call waits for a response. Default 30s.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Session) { s.callTimeout = d }
}

// WithDrainTimeout bounds how long CloseGracefully waits for in-flight
// handlers. Default 30s.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *Session) { s.drain = newDrainer(d) }
}

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// Session binds one transport handle to one receive loop.
type Session struct {
	id   string
	tr   transport.Transport
	corr *Correlator

	handler        Handler
	onNotification func(ctx context.Context, note *protocol.Request)
	onError        func(err error)
	callTimeout    time.Duration
	drain          *drainer
	cancels        *canceller

	state  atomic.Int32
	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once
}

// New creates a session over tr. The session is in StateConnecting until
// Start is called.
func New(tr transport.Transport, opts ...Option) *Session {
	s := &Session{
		id:          uuid.NewString(),
		tr:          tr,
		corr:        NewCorrelator(),
		callTimeout: 30 * time.Second,
		cancels:     newCanceller(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.drain == nil {
		s.drain = newDrainer(30 * time.Second)
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Transport exposes the underlying handle, e.g. for stats.
func (s *Session) Transport() transport.Transport { return s.tr }

// InFlight reports the number of handlers currently executing.
func (s *Session) InFlight() int64 { return s.drain.inFlight.Load() }

// Wait blocks until the receive loop has exited, which happens on peer
// disconnect, context cancellation, or Close.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Start transitions to StateReady and launches the receive loop. It fails
// if the session already started.
func (s *Session) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateReady)) {
		return fmt.Errorf("session %s: start from state %s", s.id, s.State())
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(loopCtx)
	return nil
}

// loop is the single reader of the transport. Responses fulfill pending
// calls, notifications go to the sink in arrival order, and each request is
// handled on its own goroutine.
func (s *Session) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		frame, err := s.tr.Receive(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.teardown(ErrDisconnected)
				return
			case ctx.Err() != nil:
				s.teardown(ErrDisconnected)
				return
			default:
				s.reportError(fmt.Errorf("receive: %w", err))
				if !s.tr.Connected() {
					s.teardown(ErrDisconnected)
					return
				}
				continue
			}
		}

		msg, err := protocol.ParseFrame([]byte(frame))
		if err != nil {
			// A malformed frame poisons only itself, never the loop.
			s.reportError(err)
			continue
		}

		switch {
		case msg.Response != nil:
			// Unknown or expired ids are dropped; the slot was already
			// consumed by timeout, cancellation, or teardown.
			s.corr.Fulfill(msg.Response)
		case msg.Request.IsNotification():
			if msg.Request.Method == protocol.MethodCancelled {
				s.handleCancelled(msg.Request)
				continue
			}
			if s.onNotification != nil {
				s.onNotification(ctx, msg.Request)
			}
		default:
			s.dispatchRequest(ctx, msg.Request)
		}
	}
}

// dispatchRequest runs the handler on its own goroutine so one slow request
// cannot stall the loop. During drain new requests are refused outright.
func (s *Session) dispatchRequest(ctx context.Context, req *protocol.Request) {
	if !s.drain.track() {
		s.writeResponse(ctx, protocol.NewErrorResponse(req.ID,
			protocol.NewInternalError("session is shutting down")))
		return
	}
	reqCtx, release := s.cancels.track(ctx, Key(req.ID))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.drain.complete()
		defer release()
		resp := s.handle(reqCtx, req)
		if resp != nil {
			// The response rides the parent context: a cancelled handler
			// still answers, typically with an error envelope.
			s.writeResponse(ctx, resp)
		}
	}()
}

func (s *Session) handle(ctx context.Context, req *protocol.Request) *protocol.Response {
	if s.handler == nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewMethodNotFound(req.Method))
	}
	return s.handler.Handle(ctx, req)
}

func (s *Session) writeResponse(ctx context.Context, resp *protocol.Response) {
	frame, err := protocol.EncodeFrame(resp)
	if err != nil {
		s.reportError(fmt.Errorf("encode response: %w", err))
		return
	}
	if err := s.tr.Send(ctx, frame); err != nil {
		s.reportError(fmt.Errorf("send response: %w", err))
	}
}

// Call sends a request and blocks for its response. A timeout releases the
// pending slot immediately; a response that arrives later is discarded.
func (s *Session) Call(ctx context.Context, method string, params any) (*protocol.Response, error) {
	if s.State() != StateReady {
		return nil, ErrNotReady
	}

	rawParams, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	id := s.corr.NextID()
	req := protocol.NewRequest(id, method, rawParams)
	frame, err := protocol.EncodeFrame(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	pending := s.corr.Register(id)
	if err := s.tr.Send(ctx, frame); err != nil {
		s.corr.Remove(id)
		return nil, fmt.Errorf("send request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	resp, err := pending.Await(callCtx)
	if err != nil {
		s.corr.Remove(id)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("call %s: %w", method, err)
		}
		return nil, err
	}
	return resp, nil
}

// Notify sends a fire-and-forget notification.
func (s *Session) Notify(ctx context.Context, method string, params any) error {
	if s.State() != StateReady {
		return ErrNotReady
	}
	rawParams, err := marshalParams(params)
	if err != nil {
		return err
	}
	frame, err := protocol.EncodeFrame(protocol.NewNotification(method, rawParams))
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return s.tr.Send(ctx, frame)
}

// CloseGracefully stops accepting requests, waits for in-flight handlers up
// to the drain timeout, then tears the session down.
func (s *Session) CloseGracefully(ctx context.Context) error {
	s.state.CompareAndSwap(int32(StateReady), int32(StateClosing))
	drainErr := s.drain.wait(ctx)
	s.teardown(ErrDisconnected)
	return drainErr
}

// Close aborts the session: the transport closes, pending calls fail with
// ErrDisconnected, and in-flight handlers are abandoned.
func (s *Session) Close() error {
	s.teardown(ErrDisconnected)
	return nil
}

func (s *Session) teardown(cause error) {
	s.once.Do(func() {
		s.state.Store(int32(StateClosed))
		if s.cancel != nil {
			s.cancel()
		}
		_ = s.tr.Close()
		s.corr.FailAll(cause)
	})
	s.state.Store(int32(StateClosed))
}

func (s *Session) reportError(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return data, nil
}
