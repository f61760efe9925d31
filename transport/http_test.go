package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relaykit/relaykit/protocol"
)

func TestNewHTTP(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects non http url", func(t *testing.T) {
		_, err := NewHTTP(ctx, "ws://example.com")
		var perr *protocol.Error
		if !errors.As(err, &perr) {
			t.Fatalf("NewHTTP() error = %v, want *protocol.Error", err)
		}
		if perr.Kind() != protocol.KindInvalidURL {
			t.Errorf("Kind() = %q, want %q", perr.Kind(), protocol.KindInvalidURL)
		}
	})

	t.Run("reports unreachable endpoint at construction", func(t *testing.T) {
		if _, err := NewHTTP(ctx, "http://127.0.0.1:1"); err == nil {
			t.Error("NewHTTP() error = nil, want probe failure")
		}
	})

	t.Run("accepts any probe status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()
		h, err := NewHTTP(ctx, srv.URL)
		if err != nil {
			t.Fatalf("NewHTTP() error = %v", err)
		}
		defer h.Close()
		if !h.Connected() {
			t.Error("Connected() = false after construction")
		}
	})
}

func TestHTTPExchange(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			return
		}
		n := calls.Add(1)
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":{}}`, n)
	}))
	defer srv.Close()

	h, err := NewHTTP(ctx, srv.URL)
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}
	defer h.Close()

	if h.Kind() != "http" {
		t.Errorf("Kind() = %q, want %q", h.Kind(), "http")
	}

	// Responses come back in send order, one body per exchange.
	for i := 1; i <= 2; i++ {
		if err := h.Send(ctx, fmt.Sprintf(`{"id":%d}`, i)); err != nil {
			t.Fatalf("Send(%d) error = %v", i, err)
		}
	}
	for i := 1; i <= 2; i++ {
		got, err := h.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive(%d) error = %v", i, err)
		}
		want := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{}}`, i)
		if got != want {
			t.Errorf("Receive(%d) = %q, want %q", i, got, want)
		}
	}

	stats := h.Stats()
	if stats.MessagesSent != 2 || stats.MessagesReceived != 2 {
		t.Errorf("message counters = %d/%d, want 2/2", stats.MessagesSent, stats.MessagesReceived)
	}
}

func TestHTTPEmptyBodyQueuesNothing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	h, err := NewHTTP(ctx, srv.URL)
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}
	defer h.Close()

	if err := h.Send(ctx, `{"method":"notify"}`); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	rctx, rcancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer rcancel()
	if _, err := h.Receive(rctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Receive() error = %v, want deadline exceeded", err)
	}
	if got := h.Stats().MessagesReceived; got != 0 {
		t.Errorf("MessagesReceived = %d, want 0", got)
	}
}

func TestHTTPErrorStatus(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	h, err := NewHTTP(ctx, srv.URL)
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}
	defer h.Close()

	err = h.Send(ctx, `{"id":1}`)
	var perr *protocol.Error
	if !errors.As(err, &perr) {
		t.Fatalf("Send() error = %v, want *protocol.Error", err)
	}
	if perr.Kind() != protocol.KindHTTPError {
		t.Errorf("Kind() = %q, want %q", perr.Kind(), protocol.KindHTTPError)
	}
	if got := h.Stats().MessagesSent; got != 0 {
		t.Errorf("MessagesSent = %d after failed exchange, want 0", got)
	}
}

func TestHTTPClose(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	h, err := NewHTTP(ctx, srv.URL)
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if h.Connected() {
		t.Error("Connected() = true after Close")
	}
	if err := h.Send(ctx, "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close error = %v, want ErrClosed", err)
	}
	if _, err := h.Receive(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Receive() after Close error = %v, want io.EOF", err)
	}
}

func TestHTTPCloseDeliversQueuedBodies(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `{"queued":true}`)
		}
	}))
	defer srv.Close()

	h, err := NewHTTP(ctx, srv.URL)
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}
	if err := h.Send(ctx, "request"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got, err := h.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v, want queued body", err)
	}
	if got != `{"queued":true}` {
		t.Errorf("Receive() = %q", got)
	}
	if _, err := h.Receive(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("second Receive() error = %v, want io.EOF", err)
	}
}
