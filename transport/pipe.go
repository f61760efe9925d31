package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// maxFrameSize bounds a single newline-delimited frame.
const maxFrameSize = 10 * 1024 * 1024

// lineResult carries one framed line or the terminal read error.
type lineResult struct {
	text string
	err  error
}

// readLines pumps newline-delimited frames from r into the returned channel.
// The channel is closed on EOF or after a read error has been delivered.
func readLines(r io.Reader) <-chan lineResult {
	lines := make(chan lineResult)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
		for scanner.Scan() {
			lines <- lineResult{text: scanner.Text()}
		}
		if err := scanner.Err(); err != nil {
			lines <- lineResult{err: err}
		}
	}()
	return lines
}

// Pipe frames newline-delimited messages over an arbitrary reader/writer
// pair. It backs the current-process stdio binding and the in-memory
// transports used in tests.
type Pipe struct {
	r     io.Reader
	w     io.Writer
	wmu   sync.Mutex
	lines <-chan lineResult

	mu     sync.Mutex
	closed bool

	counters
}

// NewPipe creates a transport over the given reader and writer. If either
// side implements io.Closer it is closed by Close.
func NewPipe(r io.Reader, w io.Writer) *Pipe {
	p := &Pipe{
		r:     r,
		w:     w,
		lines: readLines(r),
	}
	p.markConnected()
	return p
}

// NewStdio binds the current process's stdin and stdout. This is the
// server-side counterpart of a Process transport spawned by a host.
func NewStdio() *Pipe {
	return NewPipe(os.Stdin, os.Stdout)
}

// Kind returns the binding name.
func (p *Pipe) Kind() string { return "pipe" }

// Connected reports whether the pipe is still open.
func (p *Pipe) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

// Send writes one frame followed by a newline.
func (p *Pipe) Send(_ context.Context, frame string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.mu.Unlock()

	p.wmu.Lock()
	defer p.wmu.Unlock()
	n, err := io.WriteString(p.w, frame+"\n")
	if err != nil {
		return fmt.Errorf("pipe write: %w", err)
	}
	p.recordSent(n)
	return nil
}

// Receive blocks until the next frame, io.EOF on reader exhaustion, or ctx
// cancellation.
func (p *Pipe) Receive(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		if line.err != nil {
			return "", fmt.Errorf("pipe read: %w", line.err)
		}
		p.recordReceived(len(line.text))
		return line.text, nil
	}
}

// Close releases both ends. Calling it more than once is a no-op.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if c, ok := p.w.(io.Closer); ok {
		_ = c.Close()
	}
	// Closing the reader unblocks the readLines goroutine.
	if c, ok := p.r.(io.Closer); ok {
		_ = c.Close()
	}
	return nil
}

// Stats returns a snapshot of the traffic counters.
func (p *Pipe) Stats() Stats { return p.snapshot() }
