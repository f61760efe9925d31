package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/relaykit/relaykit/protocol"
)

func TestCorrelatorFulfill(t *testing.T) {
	ctx := context.Background()
	c := NewCorrelator()

	id := c.NextID()
	pending := c.Register(id)

	resp := protocol.NewResponse(id, map[string]string{"ok": "yes"})
	if !c.Fulfill(resp) {
		t.Fatal("Fulfill() = false for registered id")
	}
	got, err := pending.Await(ctx)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if got != resp {
		t.Error("Await() returned a different response")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after fulfillment, want 0", c.Len())
	}

	// Second delivery for the same id finds no slot.
	if c.Fulfill(resp) {
		t.Error("Fulfill() = true for already-fulfilled id")
	}
}

func TestCorrelatorKeyNormalization(t *testing.T) {
	c := NewCorrelator()
	c.Register(json.RawMessage(`42`))

	// Peers may echo the id with surrounding whitespace.
	resp := protocol.NewResponse(json.RawMessage(" 42 "), nil)
	if !c.Fulfill(resp) {
		t.Error("Fulfill() = false for whitespace-padded id echo")
	}
}

func TestCorrelatorRemove(t *testing.T) {
	c := NewCorrelator()
	id := c.NextID()
	c.Register(id)

	if !c.Remove(id) {
		t.Fatal("Remove() = false for registered id")
	}
	// A late response after removal is an orphan.
	if c.Fulfill(protocol.NewResponse(id, nil)) {
		t.Error("Fulfill() = true after Remove")
	}
	if c.Remove(id) {
		t.Error("second Remove() = true")
	}
}

func TestCorrelatorFailAll(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	c := NewCorrelator()
	var slots []*Pending
	for i := 0; i < 3; i++ {
		slots = append(slots, c.Register(c.NextID()))
	}

	c.FailAll(ErrDisconnected)
	for i, p := range slots {
		if _, err := p.Await(ctx); !errors.Is(err, ErrDisconnected) {
			t.Errorf("slot %d Await() error = %v, want ErrDisconnected", i, err)
		}
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after FailAll, want 0", c.Len())
	}
}

func TestCorrelatorNextIDMonotonic(t *testing.T) {
	c := NewCorrelator()
	a, b := string(c.NextID()), string(c.NextID())
	if a == b {
		t.Errorf("NextID() repeated %q", a)
	}
}
