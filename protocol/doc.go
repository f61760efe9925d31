// Package protocol defines the wire envelopes exchanged between peers:
// requests, responses, and notifications, encoded as JSON-RPC 2.0 objects
// carried one per frame.
//
// The package is transport-agnostic. Frames arrive as opaque text; ParseFrame
// classifies a frame into exactly one envelope type, and the envelope
// constructors produce values that marshal back to the same frame. Request
// ids are opaque tokens (string or integer) kept as raw JSON so a peer's
// choice of id shape survives a round trip untouched.
//
// Errors carry a numeric JSON-RPC code plus a machine-readable kind string
// ("method_not_found", "invalid_params", ...) in the error data, so callers
// can branch on failures without parsing human-readable messages.
package protocol
