package transport

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/relaykit/relaykit/protocol"
)

// WebSocket frames one message per WebSocket data frame over a dialed or
// adopted connection.
type WebSocket struct {
	conn  *websocket.Conn
	lines <-chan lineResult

	wmu sync.Mutex

	mu     sync.Mutex
	closed bool

	counters
}

// DialWebSocket connects to a ws:// or wss:// endpoint. A refused or failed
// dial is reported here, never deferred to a later Send or Receive.
func DialWebSocket(ctx context.Context, rawURL string) (*WebSocket, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, protocol.NewHandlerError(protocol.KindInvalidURL,
			fmt.Sprintf("not a websocket url: %q", rawURL))
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	return NewWebSocketConn(conn), nil
}

// NewWebSocketConn wraps an already-established connection, typically one
// produced by a server-side upgrade.
func NewWebSocketConn(conn *websocket.Conn) *WebSocket {
	w := &WebSocket{conn: conn}
	w.lines = w.readPump()
	w.markConnected()
	return w
}

// readPump drains the connection into a channel so Receive can honor
// context cancellation. A normal closure becomes a closed channel, which
// Receive maps to io.EOF.
func (w *WebSocket) readPump() <-chan lineResult {
	lines := make(chan lineResult)
	go func() {
		defer close(lines)
		for {
			_, data, err := w.conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return
				}
				lines <- lineResult{err: err}
				return
			}
			lines <- lineResult{text: string(data)}
		}
	}()
	return lines
}

// Kind returns the binding name.
func (w *WebSocket) Kind() string { return "websocket" }

// Connected reports whether the connection is still open.
func (w *WebSocket) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.closed
}

// Send writes one frame as a single text message. Concurrent senders are
// serialized; gorilla allows only one writer at a time.
func (w *WebSocket) Send(_ context.Context, frame string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.mu.Unlock()

	w.wmu.Lock()
	defer w.wmu.Unlock()
	if err := w.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	w.recordSent(len(frame))
	return nil
}

// Receive blocks for the next message. Binary frames are treated as UTF-8
// text. A peer-initiated close yields io.EOF.
func (w *WebSocket) Receive(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-w.lines:
		if !ok {
			w.mu.Lock()
			w.closed = true
			w.mu.Unlock()
			return "", io.EOF
		}
		if line.err != nil {
			return "", fmt.Errorf("websocket read: %w", line.err)
		}
		w.recordReceived(len(line.text))
		return line.text, nil
	}
}

// Close sends a close frame on a best-effort basis and tears down the
// connection. Calling it again is a no-op.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.wmu.Lock()
	_ = w.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	w.wmu.Unlock()
	return w.conn.Close()
}

// Stats returns a snapshot of the traffic counters.
func (w *WebSocket) Stats() Stats { return w.snapshot() }
