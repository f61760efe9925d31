// Package e2e exercises the full stack over real framing: raw JSON-RPC
// frames in, raw frames out, through transport, session, and dispatch.
package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/relaykit/relaykit"
	"github.com/relaykit/relaykit/protocol"
	"github.com/relaykit/relaykit/testutil"
	"github.com/relaykit/relaykit/transport"
)

type sumInput struct {
	A int `json:"a" jsonschema:"required,minimum=0"`
	B int `json:"b" jsonschema:"required"`
}

func complianceServer(t *testing.T) *relaykit.Server {
	t.Helper()
	srv := relaykit.NewServer(relaykit.Info{
		Name:    "compliance",
		Version: "1.0.0",
	})

	srv.Tool("sum").
		Description("Adds two non-negative numbers").
		Handler(func(_ context.Context, in sumInput) (int, error) {
			return in.A + in.B, nil
		})

	srv.Tool("slow").
		Description("Waits for cancellation").
		Handler(func(ctx context.Context, in struct{}) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(5 * time.Second):
				return "finished", nil
			}
		})

	srv.Resource("kv://{key}").
		Name("kv").
		Handler(func(_ context.Context, uri string, params map[string]string) (*relaykit.ResourceContent, error) {
			return &relaykit.ResourceContent{URI: uri, Text: params["key"]}, nil
		})

	if err := srv.Err(); err != nil {
		t.Fatalf("registration: %v", err)
	}
	return srv
}

// rawPeer serves srv over a duplex and exposes the client end for raw
// frame exchange.
func rawPeer(t *testing.T) *transport.Pipe {
	t.Helper()
	clientTr, serverTr := testutil.Duplex()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = relaykit.Serve(ctx, complianceServer(t), serverTr)
	}()
	t.Cleanup(func() {
		_ = clientTr.Close()
		cancel()
		<-done
	})
	return clientTr
}

func exchange(t *testing.T, tr *transport.Pipe, frame string) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tr.Send(ctx, frame); err != nil {
		t.Fatalf("send: %v", err)
	}
	reply, err := tr.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	var envelope map[string]any
	if err := json.Unmarshal([]byte(reply), &envelope); err != nil {
		t.Fatalf("decode %q: %v", reply, err)
	}
	return envelope
}

func TestInitializeEnvelope(t *testing.T) {
	tr := rawPeer(t)
	envelope := exchange(t, tr,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"probe","version":"0"}}}`)

	if envelope["jsonrpc"] != "2.0" {
		t.Errorf("jsonrpc = %v", envelope["jsonrpc"])
	}
	if envelope["id"] != float64(1) {
		t.Errorf("id = %v, want 1", envelope["id"])
	}
	result, ok := envelope["result"].(map[string]any)
	if !ok {
		t.Fatalf("result = %v", envelope["result"])
	}
	if result["protocolVersion"] != protocol.ProtocolVersion {
		t.Errorf("protocolVersion = %v", result["protocolVersion"])
	}
	serverInfo, _ := result["serverInfo"].(map[string]any)
	if serverInfo["name"] != "compliance" {
		t.Errorf("serverInfo = %v", serverInfo)
	}
}

func TestIDEchoedVerbatim(t *testing.T) {
	tr := rawPeer(t)

	t.Run("string id", func(t *testing.T) {
		envelope := exchange(t, tr, `{"jsonrpc":"2.0","id":"req-abc","method":"ping"}`)
		if envelope["id"] != "req-abc" {
			t.Errorf("id = %v", envelope["id"])
		}
	})
	t.Run("number id", func(t *testing.T) {
		envelope := exchange(t, tr, `{"jsonrpc":"2.0","id":42,"method":"ping"}`)
		if envelope["id"] != float64(42) {
			t.Errorf("id = %v", envelope["id"])
		}
	})
}

func TestErrorEnvelopeShape(t *testing.T) {
	tr := rawPeer(t)

	t.Run("method not found", func(t *testing.T) {
		envelope := exchange(t, tr, `{"jsonrpc":"2.0","id":1,"method":"no/such"}`)
		errObj, ok := envelope["error"].(map[string]any)
		if !ok {
			t.Fatalf("error = %v", envelope["error"])
		}
		if errObj["code"] != float64(protocol.CodeMethodNotFound) {
			t.Errorf("code = %v", errObj["code"])
		}
		if _, ok := errObj["message"].(string); !ok {
			t.Errorf("message = %v", errObj["message"])
		}
	})

	t.Run("wrong version", func(t *testing.T) {
		envelope := exchange(t, tr, `{"jsonrpc":"1.0","id":2,"method":"ping"}`)
		errObj, _ := envelope["error"].(map[string]any)
		if errObj == nil || errObj["code"] != float64(protocol.CodeInvalidRequest) {
			t.Errorf("error = %v, want invalid request", envelope["error"])
		}
	})

	t.Run("unknown tool carries kind", func(t *testing.T) {
		envelope := exchange(t, tr,
			`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"ghost"}}`)
		errObj, _ := envelope["error"].(map[string]any)
		if errObj == nil || errObj["code"] != float64(protocol.CodeNotFound) {
			t.Fatalf("error = %v, want not found", envelope["error"])
		}
		data, _ := errObj["data"].(map[string]any)
		if data["kind"] != protocol.KindNotFound {
			t.Errorf("kind = %v", data["kind"])
		}
	})

	t.Run("missing required argument", func(t *testing.T) {
		envelope := exchange(t, tr,
			`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"sum","arguments":{"a":1}}}`)
		errObj, _ := envelope["error"].(map[string]any)
		if errObj == nil || errObj["code"] != float64(protocol.CodeInvalidParams) {
			t.Fatalf("error = %v, want invalid params", envelope["error"])
		}
		data, _ := errObj["data"].(map[string]any)
		if data["kind"] != protocol.KindMissingParameter {
			t.Errorf("kind = %v", data["kind"])
		}
	})

	t.Run("constraint violation is invalid params", func(t *testing.T) {
		envelope := exchange(t, tr,
			`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"sum","arguments":{"a":-1,"b":2}}}`)
		errObj, _ := envelope["error"].(map[string]any)
		if errObj == nil || errObj["code"] != float64(protocol.CodeInvalidParams) {
			t.Fatalf("error = %v, want invalid params", envelope["error"])
		}
	})
}

func TestNotificationGetsNoResponse(t *testing.T) {
	tr := rawPeer(t)
	ctx := context.Background()

	if err := tr.Send(ctx, `{"jsonrpc":"2.0","method":"notifications/initialized"}`); err != nil {
		t.Fatalf("send: %v", err)
	}

	// The next frame on the wire must answer the ping, not the
	// notification.
	envelope := exchange(t, tr, `{"jsonrpc":"2.0","id":"after-note","method":"ping"}`)
	if envelope["id"] != "after-note" {
		t.Errorf("id = %v, notification leaked a response", envelope["id"])
	}
}

func TestMalformedFrameDoesNotKillSession(t *testing.T) {
	tr := rawPeer(t)
	ctx := context.Background()

	if err := tr.Send(ctx, `{"jsonrpc":"2.0","id":`); err != nil {
		t.Fatalf("send: %v", err)
	}

	envelope := exchange(t, tr, `{"jsonrpc":"2.0","id":9,"method":"ping"}`)
	if envelope["id"] != float64(9) {
		t.Errorf("id = %v, session did not survive malformed frame", envelope["id"])
	}
}

func TestToolCallResult(t *testing.T) {
	tr := rawPeer(t)
	envelope := exchange(t, tr,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"sum","arguments":{"a":19,"b":23}}}`)

	result, _ := envelope["result"].(map[string]any)
	if result == nil {
		t.Fatalf("result = %v", envelope["result"])
	}
	content, _ := result["content"].([]any)
	if len(content) != 1 {
		t.Fatalf("content = %v", content)
	}
	item, _ := content[0].(map[string]any)
	if item["type"] != "text" || !strings.Contains(item["text"].(string), "42") {
		t.Errorf("content item = %v", item)
	}
}

func TestCancellationAbortsInFlightCall(t *testing.T) {
	tr := rawPeer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tr.Send(ctx, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"slow"}}`); err != nil {
		t.Fatalf("send: %v", err)
	}
	// Give the handler a moment to start before cancelling.
	time.Sleep(50 * time.Millisecond)
	if err := tr.Send(ctx, `{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":7}}`); err != nil {
		t.Fatalf("send cancel: %v", err)
	}

	reply, err := tr.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	var envelope map[string]any
	if err := json.Unmarshal([]byte(reply), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope["id"] != float64(7) {
		t.Fatalf("id = %v", envelope["id"])
	}
	// A cancelled handler answers with an error envelope rather than
	// hanging until its own timeout.
	if envelope["error"] == nil {
		t.Errorf("envelope = %v, want error for cancelled call", envelope)
	}
}

func TestFullClientAgainstServer(t *testing.T) {
	c := testutil.NewSessionClient(t, complianceServer(t))
	ctx := context.Background()

	if _, err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	result, err := c.CallTool(ctx, "sum", map[string]int{"a": 20, "b": 22})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !strings.Contains(result.Text(), "42") {
		t.Errorf("result = %q", result.Text())
	}

	content, err := c.ReadResource(ctx, "kv://hello")
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if content.Text != "hello" {
		t.Errorf("content = %+v", content)
	}

	_, err = c.CallTool(ctx, "ghost", nil)
	var perr *protocol.Error
	if !errors.As(err, &perr) || perr.Code != protocol.CodeNotFound {
		t.Errorf("error = %v, want not found", err)
	}
}
