package transport

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the non-envelope failure surface.
var (
	// ErrNotReady is returned when sending or receiving on a handle whose
	// underlying connection has not been attached yet.
	ErrNotReady = errors.New("transport: not ready")

	// ErrClosed is returned when operating on a closed handle.
	ErrClosed = errors.New("transport: closed")
)

// Transport is the single contract every binding implements.
type Transport interface {
	// Send writes one complete frame. It fails with ErrNotReady before
	// attachment and ErrClosed after Close.
	Send(ctx context.Context, frame string) error

	// Receive blocks until one complete frame is available. It returns
	// io.EOF when the peer closes gracefully and an error on I/O failure.
	Receive(ctx context.Context) (string, error)

	// Close releases the underlying connection. Calling it again is a no-op.
	Close() error

	// Connected reports whether the handle is currently usable.
	Connected() bool

	// Kind returns the binding name ("stdio", "websocket", "http", "pipe").
	Kind() string

	// Stats returns a snapshot of the handle's traffic counters.
	Stats() Stats
}

// Config selects a concrete binding. It is a tagged union: exactly one of
// the concrete config types below is passed to Dial.
type Config interface {
	kind() string
}

// StdioConfig spawns a child process and frames over its stdio pipes.
// An empty Command binds the current process's stdin/stdout instead.
type StdioConfig struct {
	Command string
	Args    []string
}

func (StdioConfig) kind() string { return "stdio" }

// WebSocketConfig dials a WebSocket URL.
type WebSocketConfig struct {
	URL string
}

func (WebSocketConfig) kind() string { return "websocket" }

// HTTPConfig binds the request/response HTTP emulation against a URL.
type HTTPConfig struct {
	URL string
}

func (HTTPConfig) kind() string { return "http" }

// CustomConfig plugs in a caller-provided binding.
type CustomConfig struct {
	Name string
	Open func(ctx context.Context) (Transport, error)
}

func (c CustomConfig) kind() string { return c.Name }

// Dial creates a connected Transport from a config. Connection failures
// (spawn error, refused dial, unreachable endpoint) surface here, not from
// a later Send or Receive.
func Dial(ctx context.Context, cfg Config) (Transport, error) {
	switch c := cfg.(type) {
	case StdioConfig:
		if c.Command == "" {
			return NewStdio(), nil
		}
		return NewProcess(c.Command, c.Args...)
	case WebSocketConfig:
		return DialWebSocket(ctx, c.URL)
	case HTTPConfig:
		return NewHTTP(ctx, c.URL)
	case CustomConfig:
		if c.Open == nil {
			return nil, fmt.Errorf("transport: custom config %q has no open function", c.Name)
		}
		return c.Open(ctx)
	default:
		return nil, fmt.Errorf("transport: unknown config type %T", cfg)
	}
}
