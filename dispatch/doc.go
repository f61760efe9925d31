// Package dispatch routes validated requests to registered capabilities.
// Every request passes through the same pipeline: envelope validation,
// optional authorization, then execution, and produces exactly one response
// envelope regardless of what the handler does.
package dispatch
