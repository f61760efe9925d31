package dispatch

import (
	"context"
	"testing"

	"github.com/relaykit/relaykit/protocol"
)

func TestSubscriptions(t *testing.T) {
	d := New(Info{Name: "s", Version: "1"}, testRegistry(t))
	rec := &notifyRecorder{}
	ctx := ContextWithNotifier(context.Background(), rec)

	t.Run("subscribe and publish", func(t *testing.T) {
		resp := d.Handle(ctx, request(protocol.MethodResourcesSubscribe, `{"uri":"notes://1"}`))
		if resp.Error != nil {
			t.Fatalf("subscribe error = %v", resp.Error)
		}
		if !d.Subscriptions().HasSubscribers("notes://1") {
			t.Fatal("no subscribers recorded")
		}

		if err := d.Subscriptions().Publish(ctx, "notes://1"); err != nil {
			t.Fatalf("publish: %v", err)
		}
		if len(rec.methods) != 1 || rec.methods[0] != protocol.MethodResourceUpdated {
			t.Errorf("notifications = %v", rec.methods)
		}
		params, ok := rec.params[0].(ResourceUpdatedParams)
		if !ok || params.URI != "notes://1" {
			t.Errorf("params = %v", rec.params[0])
		}
	})

	t.Run("unsubscribe stops updates", func(t *testing.T) {
		resp := d.Handle(ctx, request(protocol.MethodResourcesUnsubscribe, `{"uri":"notes://1"}`))
		if resp.Error != nil {
			t.Fatalf("unsubscribe error = %v", resp.Error)
		}
		before := len(rec.methods)
		if err := d.Subscriptions().Publish(ctx, "notes://1"); err != nil {
			t.Fatalf("publish: %v", err)
		}
		if len(rec.methods) != before {
			t.Error("notified after unsubscribe")
		}
	})

	t.Run("unknown resource rejected", func(t *testing.T) {
		resp := d.Handle(ctx, request(protocol.MethodResourcesSubscribe, `{"uri":"bogus://x"}`))
		if resp.Error == nil || resp.Error.Code != protocol.CodeNotFound {
			t.Errorf("error = %v, want not found", resp.Error)
		}
	})

	t.Run("missing uri rejected", func(t *testing.T) {
		resp := d.Handle(ctx, request(protocol.MethodResourcesSubscribe, `{}`))
		if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidParams {
			t.Errorf("error = %v, want invalid params", resp.Error)
		}
	})

	t.Run("no notifier rejected", func(t *testing.T) {
		resp := d.Handle(context.Background(), request(protocol.MethodResourcesSubscribe, `{"uri":"notes://1"}`))
		if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidRequest {
			t.Errorf("error = %v, want invalid request", resp.Error)
		}
	})

	t.Run("drop removes all", func(t *testing.T) {
		d.Subscriptions().Subscribe("notes://2", rec)
		d.Subscriptions().Subscribe("notes://3", rec)
		if d.Subscriptions().Count() != 2 {
			t.Fatalf("count = %d", d.Subscriptions().Count())
		}
		d.Subscriptions().Drop(rec)
		if d.Subscriptions().Count() != 0 {
			t.Errorf("count = %d after drop", d.Subscriptions().Count())
		}
	})
}
