// Package client provides a typed caller for servers speaking this
// runtime's protocol over any supported transport binding.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/relaykit/relaykit/protocol"
	"github.com/relaykit/relaykit/session"
	"github.com/relaykit/relaykit/transport"
)

// ServerInfo describes the peer after the initialize handshake.
type ServerInfo struct {
	Name            string
	Version         string
	ProtocolVersion string
	Capabilities    Capabilities
}

// Capabilities reports which categories the server exposes.
type Capabilities struct {
	Tools     bool `json:"tools"`
	Resources bool `json:"resources"`
	Prompts   bool `json:"prompts"`
}

// Tool is one entry from tools/list.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

// ContentItem is one piece of tool or prompt content.
type ContentItem struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ToolResult is the outcome of tools/call.
type ToolResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// Text concatenates the textual content items.
func (r *ToolResult) Text() string {
	var out string
	for _, item := range r.Content {
		if item.Type == "text" {
			out += item.Text
		}
	}
	return out
}

// Resource is one entry from resources/list.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceContent is one payload from resources/read.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// Prompt is one entry from prompts/list.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument describes an argument a prompt accepts.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptMessage is one message of a rendered prompt.
type PromptMessage struct {
	Role    string      `json:"role"`
	Content ContentItem `json:"content"`
}

// PromptResult is the outcome of prompts/get.
type PromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// Option configures a Client.
type Option func(*options)

type options struct {
	timeout       time.Duration
	clientName    string
	clientVersion string
	onNotify      func(ctx context.Context, note *protocol.Request)
	onError       func(err error)
}

// WithTimeout bounds each call. Default 30s.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithClientInfo names the client in the initialize handshake.
func WithClientInfo(name, version string) Option {
	return func(o *options) { o.clientName = name; o.clientVersion = version }
}

// WithNotificationHandler receives server-initiated notifications, e.g.
// progress updates, in arrival order.
func WithNotificationHandler(fn func(ctx context.Context, note *protocol.Request)) Option {
	return func(o *options) { o.onNotify = fn }
}

// WithErrorHandler receives session-level faults.
func WithErrorHandler(fn func(err error)) Option {
	return func(o *options) { o.onError = fn }
}

// Client drives one session against a server.
type Client struct {
	sess *session.Session
	opts options

	mu         sync.RWMutex
	serverInfo *ServerInfo
}

// Connect dials the configured binding and starts the session. The client
// is ready for Initialize when Connect returns.
func Connect(ctx context.Context, cfg transport.Config, opts ...Option) (*Client, error) {
	tr, err := transport.Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c := New(tr, opts...)
	if err := c.sess.Start(ctx); err != nil {
		_ = tr.Close()
		return nil, err
	}
	return c, nil
}

// New wraps an already-connected transport. The caller must start the
// returned client's session via Start before making calls.
func New(tr transport.Transport, opts ...Option) *Client {
	o := options{
		timeout:       30 * time.Second,
		clientName:    "relaykit-client",
		clientVersion: "0.1.0",
	}
	for _, opt := range opts {
		opt(&o)
	}

	sessOpts := []session.Option{session.WithCallTimeout(o.timeout)}
	if o.onNotify != nil {
		sessOpts = append(sessOpts, session.WithNotificationHandler(o.onNotify))
	}
	if o.onError != nil {
		sessOpts = append(sessOpts, session.WithErrorHandler(o.onError))
	}

	return &Client{
		sess: session.New(tr, sessOpts...),
		opts: o,
	}
}

// Start launches the session loop for clients built with New.
func (c *Client) Start(ctx context.Context) error {
	return c.sess.Start(ctx)
}

// Session exposes the underlying session, e.g. for transport stats.
func (c *Client) Session() *session.Session {
	return c.sess
}

// ServerInfo returns the peer description cached by Initialize.
func (c *Client) ServerInfo() *ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Initialize performs the handshake and announces readiness with an
// initialized notification.
func (c *Client) Initialize(ctx context.Context) (*ServerInfo, error) {
	params := map[string]any{
		"protocolVersion": protocol.ProtocolVersion,
		"clientInfo": map[string]any{
			"name":    c.opts.clientName,
			"version": c.opts.clientVersion,
		},
		"capabilities": map[string]any{},
	}

	var result struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
		Capabilities Capabilities `json:"capabilities"`
	}
	if err := c.call(ctx, protocol.MethodInitialize, params, &result); err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}

	info := &ServerInfo{
		Name:            result.ServerInfo.Name,
		Version:         result.ServerInfo.Version,
		ProtocolVersion: result.ProtocolVersion,
		Capabilities:    result.Capabilities,
	}
	c.mu.Lock()
	c.serverInfo = info
	c.mu.Unlock()

	if err := c.sess.Notify(ctx, protocol.MethodInitialized, nil); err != nil {
		return nil, fmt.Errorf("initialized notification: %w", err)
	}
	return info, nil
}

// Ping checks liveness.
func (c *Client) Ping(ctx context.Context) error {
	var result map[string]any
	if err := c.call(ctx, protocol.MethodPing, nil, &result); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// ListTools fetches the server's tool listing.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var result struct {
		Tools []Tool `json:"tools"`
	}
	if err := c.call(ctx, protocol.MethodToolsList, nil, &result); err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return result.Tools, nil
}

// CallTool invokes a tool. arguments may be any JSON-encodable value.
func (c *Client) CallTool(ctx context.Context, name string, arguments any) (*ToolResult, error) {
	params := map[string]any{"name": name}
	if arguments != nil {
		params["arguments"] = arguments
	}
	var result ToolResult
	if err := c.call(ctx, protocol.MethodToolsCall, params, &result); err != nil {
		return nil, fmt.Errorf("call tool %q: %w", name, err)
	}
	return &result, nil
}

// CallToolWithProgress invokes a tool and asks the server to stream
// progress notifications tagged with token.
func (c *Client) CallToolWithProgress(ctx context.Context, name string, arguments any, token string) (*ToolResult, error) {
	params := map[string]any{
		"name":  name,
		"_meta": map[string]any{"progressToken": token},
	}
	if arguments != nil {
		params["arguments"] = arguments
	}
	var result ToolResult
	if err := c.call(ctx, protocol.MethodToolsCall, params, &result); err != nil {
		return nil, fmt.Errorf("call tool %q: %w", name, err)
	}
	return &result, nil
}

// ListResources fetches the server's resource listing.
func (c *Client) ListResources(ctx context.Context) ([]Resource, error) {
	var result struct {
		Resources []Resource `json:"resources"`
	}
	if err := c.call(ctx, protocol.MethodResourcesList, nil, &result); err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return result.Resources, nil
}

// ReadResource reads one resource by URI.
func (c *Client) ReadResource(ctx context.Context, uri string) (*ResourceContent, error) {
	var result struct {
		Contents []ResourceContent `json:"contents"`
	}
	if err := c.call(ctx, protocol.MethodResourcesRead, map[string]any{"uri": uri}, &result); err != nil {
		return nil, fmt.Errorf("read resource %q: %w", uri, err)
	}
	if len(result.Contents) == 0 {
		return nil, fmt.Errorf("read resource %q: empty contents", uri)
	}
	return &result.Contents[0], nil
}

// ListPrompts fetches the server's prompt listing.
func (c *Client) ListPrompts(ctx context.Context) ([]Prompt, error) {
	var result struct {
		Prompts []Prompt `json:"prompts"`
	}
	if err := c.call(ctx, protocol.MethodPromptsList, nil, &result); err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	return result.Prompts, nil
}

// GetPrompt renders a prompt with the given arguments.
func (c *Client) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*PromptResult, error) {
	params := map[string]any{"name": name}
	if arguments != nil {
		params["arguments"] = arguments
	}
	var result PromptResult
	if err := c.call(ctx, protocol.MethodPromptsGet, params, &result); err != nil {
		return nil, fmt.Errorf("get prompt %q: %w", name, err)
	}
	return &result, nil
}

// Notify sends a fire-and-forget notification to the server.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	return c.sess.Notify(ctx, method, params)
}

// Close tears the session and its transport down.
func (c *Client) Close() error {
	return c.sess.Close()
}

// call performs one request and decodes its result. A server error
// envelope comes back as the *protocol.Error itself so callers can match
// on code and kind.
func (c *Client) call(ctx context.Context, method string, params, into any) error {
	resp, err := c.sess.Call(ctx, method, params)
	if err != nil {
		return err
	}
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
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
