package transport

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// Process frames newline-delimited messages over a child process's stdio
// pipes. The zero value is a detached handle: Send and Receive return
// ErrNotReady until a process is attached via NewProcess or AdoptProcess.
type Process struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stderr   io.ReadCloser
	lines    <-chan lineResult
	attached bool
	closed   bool
	killed   bool

	wmu sync.Mutex

	counters
}

// NewProcess spawns command with piped stdio and returns a connected
// transport. A spawn failure (command not found, permission denied) is
// reported here, never deferred to a later Send or Receive.
func NewProcess(command string, args ...string) (*Process, error) {
	cmd := exec.Command(command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %q: %w", command, err)
	}

	p := &Process{
		cmd:      cmd,
		stdin:    stdin,
		stderr:   stderr,
		lines:    readLines(stdout),
		attached: true,
	}
	p.markConnected()
	return p, nil
}

// AdoptProcess wraps stdio pipes already wired to a running child. cmd may
// be nil when the caller owns the process lifecycle.
func AdoptProcess(stdin io.WriteCloser, stdout io.Reader, cmd *exec.Cmd) *Process {
	p := &Process{
		cmd:      cmd,
		stdin:    stdin,
		lines:    readLines(stdout),
		attached: true,
	}
	p.markConnected()
	return p
}

// Kind returns the binding name.
func (p *Process) Kind() string { return "stdio" }

// Connected reports whether the child is attached and neither closed nor
// killed.
func (p *Process) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attached && !p.closed && !p.killed
}

// Send writes one frame to the child's stdin, newline-terminated.
func (p *Process) Send(_ context.Context, frame string) error {
	p.mu.Lock()
	switch {
	case !p.attached:
		p.mu.Unlock()
		return ErrNotReady
	case p.closed || p.killed:
		p.mu.Unlock()
		return ErrClosed
	}
	stdin := p.stdin
	p.mu.Unlock()

	p.wmu.Lock()
	defer p.wmu.Unlock()
	n, err := io.WriteString(stdin, frame+"\n")
	if err != nil {
		return fmt.Errorf("write to child stdin: %w", err)
	}
	p.recordSent(n)
	return nil
}

// Receive blocks until the child emits one frame on stdout. It returns
// io.EOF when the child closes its stdout (typically on exit).
func (p *Process) Receive(ctx context.Context) (string, error) {
	p.mu.Lock()
	if !p.attached {
		p.mu.Unlock()
		return "", ErrNotReady
	}
	lines := p.lines
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-lines:
		if !ok {
			return "", io.EOF
		}
		if line.err != nil {
			return "", fmt.Errorf("read from child stdout: %w", line.err)
		}
		p.recordReceived(len(line.text))
		return line.text, nil
	}
}

// Kill forcibly terminates the child. Connected reports false afterwards.
func (p *Process) Kill() error {
	p.mu.Lock()
	if p.killed || p.cmd == nil || p.cmd.Process == nil {
		p.mu.Unlock()
		return nil
	}
	p.killed = true
	cmd := p.cmd
	p.mu.Unlock()

	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill child: %w", err)
	}
	// Reap so the child does not linger as a zombie.
	go func() { _ = cmd.Wait() }()
	return nil
}

// Wait blocks until the child exits and returns its wait error.
func (p *Process) Wait() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil {
		return ErrNotReady
	}
	return cmd.Wait()
}

// Stderr exposes the child's stderr stream, or nil for adopted handles
// without one.
func (p *Process) Stderr() io.Reader {
	return p.stderr
}

// Close signals EOF to the child by closing its stdin and terminates it if
// it is still running. Calling Close again is a no-op.
func (p *Process) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	stdin := p.stdin
	cmd := p.cmd
	alreadyKilled := p.killed
	p.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd != nil && cmd.Process != nil && !alreadyKilled {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
	return nil
}

// Stats returns a snapshot of the traffic counters.
func (p *Process) Stats() Stats { return p.snapshot() }
