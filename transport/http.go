package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/relaykit/relaykit/protocol"
)

// httpQueueDepth bounds unclaimed response bodies. A handle with this many
// sends outstanding and no intervening Receive calls blocks on the next Send.
const httpQueueDepth = 64

// HTTP emulates a duplex stream over request/response exchanges: each Send
// issues one POST and the response body is queued as the next Receive
// result. Receives therefore correspond one-to-one with earlier sends; the
// server cannot push unsolicited messages through this binding.
type HTTP struct {
	endpoint string
	client   *http.Client
	queue    chan string
	quit     chan struct{}

	mu     sync.Mutex
	closed bool

	counters
}

// NewHTTP validates the endpoint and probes it with a GET so an unreachable
// server fails construction rather than the first Send. Any HTTP status is
// accepted from the probe; only a transport-level failure rejects it.
func NewHTTP(ctx context.Context, rawURL string) (*HTTP, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, protocol.NewHandlerError(protocol.KindInvalidURL,
			fmt.Sprintf("not an http url: %q", rawURL))
	}

	client := &http.Client{Timeout: 30 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("probe request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", rawURL, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	h := &HTTP{
		endpoint: rawURL,
		client:   client,
		queue:    make(chan string, httpQueueDepth),
		quit:     make(chan struct{}),
	}
	h.markConnected()
	return h, nil
}

// Kind returns the binding name.
func (h *HTTP) Kind() string { return "http" }

// Connected reports whether the handle has been closed.
func (h *HTTP) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.closed
}

// Send POSTs one frame and queues the response body for the next Receive.
// Empty bodies (e.g. a 204 for a notification) queue nothing.
func (h *HTTP) Send(ctx context.Context, frame string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	h.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint,
		bytes.NewBufferString(frame))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", h.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return protocol.NewHandlerError(protocol.KindHTTPError,
			fmt.Sprintf("endpoint returned %s", resp.Status))
	}
	h.recordSent(len(frame))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return nil
	}

	select {
	case h.queue <- text:
		return nil
	case <-h.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive pops the oldest queued response body. It blocks until a prior
// Send produces one, the handle closes (io.EOF), or ctx fires.
func (h *HTTP) Receive(ctx context.Context) (string, error) {
	// Bodies queued before Close are still delivered.
	select {
	case text := <-h.queue:
		h.recordReceived(len(text))
		return text, nil
	default:
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-h.quit:
		return "", io.EOF
	case text := <-h.queue:
		h.recordReceived(len(text))
		return text, nil
	}
}

// Close drops the handle and wakes blocked receivers with io.EOF. Calling
// it again is a no-op.
func (h *HTTP) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	close(h.quit)
	h.client.CloseIdleConnections()
	return nil
}

// Stats returns a snapshot of the traffic counters.
func (h *HTTP) Stats() Stats { return h.snapshot() }
