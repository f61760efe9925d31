package transport

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"
)

type trackingReader struct {
	*io.PipeReader
	closed atomic.Bool
}

func (r *trackingReader) Close() error {
	r.closed.Store(true)
	return r.PipeReader.Close()
}

type trackingWriter struct {
	*io.PipeWriter
	closed atomic.Bool
}

func (w *trackingWriter) Close() error {
	w.closed.Store(true)
	return w.PipeWriter.Close()
}

func TestPipeCloseClosesBothEnds(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	r := &trackingReader{PipeReader: pr}

	_, ww := io.Pipe()
	w := &trackingWriter{PipeWriter: ww}

	p := NewPipe(r, w)
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if p.Connected() {
		t.Error("Connected() = true after Close")
	}
	if !w.closed.Load() {
		t.Error("writer not closed")
	}
	if !r.closed.Load() {
		t.Error("reader not closed")
	}

	// With the reader closed the read goroutine terminates, so Receive
	// fails instead of waiting out the context.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := p.Receive(ctx); err == nil || ctx.Err() != nil {
		t.Errorf("Receive() error = %v after Close", err)
	}
}
