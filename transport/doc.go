// Package transport provides the frame-level connection bindings the
// runtime speaks over: child-process stdio pipes, WebSocket, and HTTP.
//
// Every binding satisfies the same Transport contract: Send writes one
// complete frame, Receive blocks for the next inbound frame (io.EOF on
// graceful peer close), Close is idempotent, and Connected reports liveness.
// A handle belongs to exactly one session; it is not meant to be shared
// without external synchronization beyond the Send/Receive split.
//
// Each handle keeps exact per-connection statistics (messages and bytes in
// both directions, connect time, last activity) updated on its own
// send/receive path.
//
// The HTTP binding is a degenerate duplex emulation: each Send issues one
// HTTP exchange and queues the response body as the next Receive result, so
// receives correspond one-to-one with prior sends and the server can never
// push an unsolicited notification. Use the stdio or WebSocket bindings when
// server-initiated messages matter.
package transport
