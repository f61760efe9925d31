// Package testutil provides helpers for testing relaykit servers.
//
// TestClient drives a server's request pipeline in memory, without a
// transport:
//
//	func TestMyServer(t *testing.T) {
//	    srv := relaykit.NewServer(relaykit.Info{Name: "test", Version: "1.0.0"})
//	    srv.Tool("greet").Handler(func(ctx context.Context, input GreetInput) (string, error) {
//	        return "Hello, " + input.Name, nil
//	    })
//
//	    tc := testutil.NewTestClient(t, srv)
//	    text, err := tc.CallTool("greet", map[string]any{"name": "World"})
//	    ...
//	}
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/relaykit/relaykit"
	"github.com/relaykit/relaykit/client"
	"github.com/relaykit/relaykit/dispatch"
	"github.com/relaykit/relaykit/protocol"
	"github.com/relaykit/relaykit/transport"
)

// ToolDescriptor is one tools/list entry.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ResourceDescriptor is one resources/list entry.
type ResourceDescriptor struct {
	URI      string `json:"uri"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

// PromptDescriptor is one prompts/list entry.
type PromptDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// TestClient exercises a server's dispatcher directly.
type TestClient struct {
	t testing.TB
	d *dispatch.Dispatcher

	mu    sync.Mutex
	reqID int64
}

// NewTestClient builds a client for srv and performs the initialize
// handshake. Registration errors on srv fail the test immediately.
func NewTestClient(t testing.TB, srv *relaykit.Server) *TestClient {
	t.Helper()
	if err := srv.Err(); err != nil {
		t.Fatalf("server registration: %v", err)
	}
	tc := &TestClient{t: t, d: srv.Dispatcher()}
	if _, err := tc.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return tc
}

func (tc *TestClient) nextID() json.RawMessage {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.reqID++
	return json.RawMessage(fmt.Sprintf("%d", tc.reqID))
}

// Send issues one request through the pipeline and returns the raw
// response envelope.
func (tc *TestClient) Send(method string, params any) *protocol.Response {
	tc.t.Helper()

	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			tc.t.Fatalf("marshal params: %v", err)
		}
		raw = data
	}
	return tc.d.Handle(context.Background(), protocol.NewRequest(tc.nextID(), method, raw))
}

// call sends and decodes the result into into.
func (tc *TestClient) call(method string, params, into any) error {
	tc.t.Helper()

	resp := tc.Send(method, params)
	if resp.Error != nil {
		return resp.Error
	}
	if into == nil {
		return nil
	}
	data, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return json.Unmarshal(data, into)
}

// Initialize performs the handshake and returns the raw result.
func (tc *TestClient) Initialize() (map[string]any, error) {
	tc.t.Helper()
	var result map[string]any
	err := tc.call(protocol.MethodInitialize, map[string]any{
		"protocolVersion": protocol.ProtocolVersion,
		"clientInfo": map[string]any{
			"name":    "test-client",
			"version": "1.0.0",
		},
	}, &result)
	return result, err
}

// Ping checks liveness.
func (tc *TestClient) Ping() error {
	tc.t.Helper()
	return tc.call(protocol.MethodPing, nil, nil)
}

// ListTools returns the registered tools.
func (tc *TestClient) ListTools() ([]ToolDescriptor, error) {
	tc.t.Helper()
	var result struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	err := tc.call(protocol.MethodToolsList, nil, &result)
	return result.Tools, err
}

// CallTool invokes a tool and returns its concatenated text content. A
// handler failure surfaces as an error built from the error content.
func (tc *TestClient) CallTool(name string, args any) (string, error) {
	tc.t.Helper()

	resp, err := tc.CallToolRaw(name, args)
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", resp.Error
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	data, err := json.Marshal(resp.Result)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("decode result: %w", err)
	}

	var text string
	for _, c := range result.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}
	if result.IsError {
		return "", fmt.Errorf("tool %q failed: %s", name, text)
	}
	return text, nil
}

// CallToolRaw invokes a tool and returns the raw response envelope.
func (tc *TestClient) CallToolRaw(name string, args any) (*protocol.Response, error) {
	tc.t.Helper()
	params := map[string]any{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	return tc.Send(protocol.MethodToolsCall, params), nil
}

// ListResources returns the registered resources.
func (tc *TestClient) ListResources() ([]ResourceDescriptor, error) {
	tc.t.Helper()
	var result struct {
		Resources []ResourceDescriptor `json:"resources"`
	}
	err := tc.call(protocol.MethodResourcesList, nil, &result)
	return result.Resources, err
}

// ReadResource reads a resource and returns its text content.
func (tc *TestClient) ReadResource(uri string) (string, error) {
	tc.t.Helper()
	var result struct {
		Contents []struct {
			Text string `json:"text"`
		} `json:"contents"`
	}
	if err := tc.call(protocol.MethodResourcesRead, map[string]string{"uri": uri}, &result); err != nil {
		return "", err
	}
	if len(result.Contents) == 0 {
		return "", fmt.Errorf("resource %q: empty contents", uri)
	}
	return result.Contents[0].Text, nil
}

// ListPrompts returns the registered prompts.
func (tc *TestClient) ListPrompts() ([]PromptDescriptor, error) {
	tc.t.Helper()
	var result struct {
		Prompts []PromptDescriptor `json:"prompts"`
	}
	err := tc.call(protocol.MethodPromptsList, nil, &result)
	return result.Prompts, err
}

// GetPrompt renders a prompt and returns the result.
func (tc *TestClient) GetPrompt(name string, args map[string]string) (*relaykit.PromptResult, error) {
	tc.t.Helper()
	params := map[string]any{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	var result relaykit.PromptResult
	if err := tc.call(protocol.MethodPromptsGet, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AssertToolExists fails the test if no tool with the given name is
// registered.
func (tc *TestClient) AssertToolExists(name string) {
	tc.t.Helper()
	tools, err := tc.ListTools()
	if err != nil {
		tc.t.Fatalf("ListTools: %v", err)
	}
	for _, tool := range tools {
		if tool.Name == name {
			return
		}
	}
	tc.t.Errorf("tool %q not found", name)
}

// AssertResourceExists fails the test if no resource with the given URI
// template is registered.
func (tc *TestClient) AssertResourceExists(uriTemplate string) {
	tc.t.Helper()
	resources, err := tc.ListResources()
	if err != nil {
		tc.t.Fatalf("ListResources: %v", err)
	}
	for _, res := range resources {
		if res.URI == uriTemplate {
			return
		}
	}
	tc.t.Errorf("resource %q not found", uriTemplate)
}

// AssertPromptExists fails the test if no prompt with the given name is
// registered.
func (tc *TestClient) AssertPromptExists(name string) {
	tc.t.Helper()
	prompts, err := tc.ListPrompts()
	if err != nil {
		tc.t.Fatalf("ListPrompts: %v", err)
	}
	for _, p := range prompts {
		if p.Name == name {
			return
		}
	}
	tc.t.Errorf("prompt %q not found", name)
}

// Duplex returns two in-memory transports wired back to back. Frames
// sent on one side arrive on the other.
func Duplex() (*transport.Pipe, *transport.Pipe) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return transport.NewPipe(ar, aw), transport.NewPipe(br, bw)
}

// NewSessionClient serves srv over an in-memory duplex and returns a
// connected client. Unlike TestClient this exercises the full session and
// framing path. The client and server shut down with the test.
func NewSessionClient(t testing.TB, srv *relaykit.Server, opts ...client.Option) *client.Client {
	t.Helper()
	clientTr, serverTr := Duplex()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := relaykit.Serve(ctx, srv, serverTr); err != nil && ctx.Err() == nil {
			t.Errorf("serve: %v", err)
		}
	}()

	c := client.New(clientTr, opts...)
	if err := c.Start(ctx); err != nil {
		cancel()
		t.Fatalf("client start: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
		cancel()
		<-done
	})
	return c
}
