package transport

import (
	"sync"
	"time"
)

// Stats holds exact traffic counters for one transport handle. Counters are
// updated on every successful send and receive; tests assert precise values,
// so nothing here is sampled.
type Stats struct {
	MessagesSent     uint64
	MessagesReceived uint64
	BytesSent        uint64
	BytesReceived    uint64
	ConnectedAt      time.Time
	LastActivity     time.Time
}

// counters is the shared mutable backing embedded by every binding. The
// send and receive paths may run on different goroutines, so updates are
// guarded.
type counters struct {
	mu sync.Mutex
	s  Stats
}

func (c *counters) markConnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.s.ConnectedAt = now
	c.s.LastActivity = now
}

func (c *counters) recordSent(bytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.MessagesSent++
	c.s.BytesSent += uint64(bytes)
	c.s.LastActivity = time.Now()
}

func (c *counters) recordReceived(bytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.MessagesReceived++
	c.s.BytesReceived += uint64(bytes)
	c.s.LastActivity = time.Now()
}

func (c *counters) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
