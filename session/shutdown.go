package session

import (
	"context"
	"sync/atomic"
	"time"
)

// drainer tracks in-flight handlers for graceful close. Once draining, new
// requests are refused while running ones are given time to finish.
type drainer struct {
	timeout  time.Duration
	draining atomic.Bool
	inFlight atomic.Int64
}

func newDrainer(timeout time.Duration) *drainer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &drainer{timeout: timeout}
}

// track reserves a slot for one handler. It reports false once draining
// has begun.
func (d *drainer) track() bool {
	if d.draining.Load() {
		return false
	}
	d.inFlight.Add(1)
	return true
}

func (d *drainer) complete() {
	d.inFlight.Add(-1)
}

// wait flips to draining and polls until in-flight handlers reach zero or
// the timeout expires.
func (d *drainer) wait(ctx context.Context) error {
	d.draining.Store(true)

	waitCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if d.inFlight.Load() == 0 {
			return nil
		}
		select {
		case <-waitCtx.Done():
			if d.inFlight.Load() > 0 {
				return waitCtx.Err()
			}
			return nil
		case <-ticker.C:
		}
	}
}
