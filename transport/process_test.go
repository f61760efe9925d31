package transport

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestPipeRoundTrip(t *testing.T) {
	ctx := context.Background()

	t.Run("send and receive frames", func(t *testing.T) {
		pr, pw := io.Pipe()
		tr := NewPipe(strings.NewReader("{\"jsonrpc\":\"2.0\"}\n"), pw)
		go func() {
			_ = tr.Send(ctx, `{"id":1}`)
		}()

		echo := NewPipe(pr, io.Discard)
		got, err := echo.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		if got != `{"id":1}` {
			t.Errorf("Receive() = %q, want %q", got, `{"id":1}`)
		}

		own, err := tr.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		if own != `{"jsonrpc":"2.0"}` {
			t.Errorf("Receive() = %q", own)
		}
	})

	t.Run("eof after reader exhaustion", func(t *testing.T) {
		tr := NewPipe(strings.NewReader(""), io.Discard)
		if _, err := tr.Receive(ctx); !errors.Is(err, io.EOF) {
			t.Errorf("Receive() error = %v, want io.EOF", err)
		}
	})

	t.Run("context cancellation unblocks receive", func(t *testing.T) {
		pr, _ := io.Pipe()
		tr := NewPipe(pr, io.Discard)
		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		if _, err := tr.Receive(cctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Receive() error = %v, want deadline exceeded", err)
		}
	})

	t.Run("send after close", func(t *testing.T) {
		tr := NewPipe(strings.NewReader(""), io.Discard)
		if err := tr.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if err := tr.Send(ctx, "x"); !errors.Is(err, ErrClosed) {
			t.Errorf("Send() error = %v, want ErrClosed", err)
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		tr := NewPipe(strings.NewReader(""), io.Discard)
		if err := tr.Close(); err != nil {
			t.Fatalf("first Close() error = %v", err)
		}
		if err := tr.Close(); err != nil {
			t.Errorf("second Close() error = %v", err)
		}
		if tr.Connected() {
			t.Error("Connected() = true after Close")
		}
	})
}

func TestProcessDetached(t *testing.T) {
	ctx := context.Background()
	var p Process

	if p.Connected() {
		t.Error("Connected() = true for detached handle")
	}
	if err := p.Send(ctx, "x"); !errors.Is(err, ErrNotReady) {
		t.Errorf("Send() error = %v, want ErrNotReady", err)
	}
	if _, err := p.Receive(ctx); !errors.Is(err, ErrNotReady) {
		t.Errorf("Receive() error = %v, want ErrNotReady", err)
	}
	if err := p.Wait(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Wait() error = %v, want ErrNotReady", err)
	}
}

func TestProcessSpawnFailure(t *testing.T) {
	if _, err := NewProcess("/nonexistent/definitely-not-a-binary"); err == nil {
		t.Fatal("NewProcess() error = nil, want spawn failure")
	}
}

func TestProcessEcho(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := NewProcess("cat")
	if err != nil {
		t.Fatalf("NewProcess() error = %v", err)
	}
	defer p.Close()

	if !p.Connected() {
		t.Fatal("Connected() = false after spawn")
	}
	if got := p.Kind(); got != "stdio" {
		t.Errorf("Kind() = %q, want %q", got, "stdio")
	}

	frame := `{"jsonrpc":"2.0","id":1,"method":"ping"}`
	if err := p.Send(ctx, frame); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got, err := p.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if got != frame {
		t.Errorf("Receive() = %q, want %q", got, frame)
	}

	stats := p.Stats()
	if stats.MessagesSent != 1 {
		t.Errorf("MessagesSent = %d, want 1", stats.MessagesSent)
	}
	if stats.MessagesReceived != 1 {
		t.Errorf("MessagesReceived = %d, want 1", stats.MessagesReceived)
	}
	if stats.BytesSent == 0 || stats.BytesReceived == 0 {
		t.Errorf("byte counters = %d/%d, want both > 0", stats.BytesSent, stats.BytesReceived)
	}
	if stats.ConnectedAt.IsZero() {
		t.Error("ConnectedAt is zero")
	}
	if stats.LastActivity.Before(stats.ConnectedAt) {
		t.Error("LastActivity precedes ConnectedAt")
	}
}

func TestProcessCloseSignalsEOF(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := NewProcess("cat")
	if err != nil {
		t.Fatalf("NewProcess() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if p.Connected() {
		t.Error("Connected() = true after Close")
	}
	if _, err := p.Receive(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Receive() error = %v, want io.EOF", err)
	}
}

func TestProcessKill(t *testing.T) {
	p, err := NewProcess("sleep", "60")
	if err != nil {
		t.Fatalf("NewProcess() error = %v", err)
	}
	defer p.Close()

	if err := p.Kill(); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}
	if p.Connected() {
		t.Error("Connected() = true after Kill")
	}
	ctx := context.Background()
	if err := p.Send(ctx, "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Kill error = %v, want ErrClosed", err)
	}
}

func TestDial(t *testing.T) {
	ctx := context.Background()

	t.Run("stdio config spawns a child", func(t *testing.T) {
		tr, err := Dial(ctx, StdioConfig{Command: "cat"})
		if err != nil {
			t.Fatalf("Dial() error = %v", err)
		}
		defer tr.Close()
		if tr.Kind() != "stdio" {
			t.Errorf("Kind() = %q, want %q", tr.Kind(), "stdio")
		}
	})

	t.Run("custom config calls opener", func(t *testing.T) {
		want := NewPipe(strings.NewReader(""), io.Discard)
		tr, err := Dial(ctx, CustomConfig{
			Name: "memory",
			Open: func(context.Context) (Transport, error) { return want, nil },
		})
		if err != nil {
			t.Fatalf("Dial() error = %v", err)
		}
		if tr != Transport(want) {
			t.Error("Dial() did not return the opened transport")
		}
	})

	t.Run("custom config without opener", func(t *testing.T) {
		if _, err := Dial(ctx, CustomConfig{Name: "memory"}); err == nil {
			t.Error("Dial() error = nil, want missing opener error")
		}
	})
}
