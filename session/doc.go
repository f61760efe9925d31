// Package session runs the message loop for one connection: it reads frames
// from a transport, routes responses to their pending callers, hands
// requests to a handler, and delivers notifications in arrival order.
//
// A Session owns exactly one transport handle and one receive loop. Outbound
// calls are correlated to inbound responses by request id; a call that times
// out releases its slot immediately, and a response arriving after that is
// discarded.
package session
