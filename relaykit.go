// Package relaykit is a transport-agnostic JSON-RPC 2.0 runtime with
// pluggable tool, resource, and prompt capabilities.
//
// A server declares capabilities with fluent builders, then serves them
// over stdio, WebSocket, or HTTP:
//
//	srv := relaykit.NewServer(relaykit.Info{
//	    Name:    "search-server",
//	    Version: "1.0.0",
//	})
//
//	type SearchInput struct {
//	    Query string `json:"query" jsonschema:"required"`
//	}
//
//	srv.Tool("search").
//	    Description("Search for items").
//	    Handler(func(ctx context.Context, input SearchInput) ([]string, error) {
//	        return []string{"result1", "result2"}, nil
//	    })
//
//	relaykit.ServeStdio(ctx, srv)
package relaykit

import (
	"context"
	"errors"
	"sync"

	"github.com/relaykit/relaykit/client"
	"github.com/relaykit/relaykit/dispatch"
	"github.com/relaykit/relaykit/middleware"
	"github.com/relaykit/relaykit/registry"
	"github.com/relaykit/relaykit/transport"
)

// Re-export core types for convenience.

// Info contains server metadata exposed to clients.
type Info = dispatch.Info

// Capabilities declares which categories the server exposes.
type Capabilities = dispatch.Capabilities

// Authorizer gates capability invocation.
type Authorizer = dispatch.Authorizer

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc = dispatch.AuthorizerFunc

// Content types.
type Content = registry.Content
type ToolResult = registry.ToolResult
type ResourceContent = registry.ResourceContent
type PromptResult = registry.PromptResult
type PromptMessage = registry.PromptMessage

// Content constructors.
var (
	NewTextContent     = registry.NewTextContent
	NewImageContent    = registry.NewImageContent
	NewToolResultText  = registry.NewToolResultText
	NewToolResultError = registry.NewToolResultError
)

// Middleware types.
type Middleware = middleware.Middleware
type MiddlewareHandlerFunc = middleware.HandlerFunc
type Logger = middleware.Logger
type Field = middleware.Field

// Middleware re-exports.
var (
	Chain         = middleware.Chain
	Recover       = middleware.Recover
	RequestID     = middleware.RequestID
	Logging       = middleware.Logging
	Timeout       = middleware.Timeout
	RateLimit     = middleware.RateLimit
	SizeLimit     = middleware.SizeLimit
	Auth          = middleware.Auth
	OTel          = middleware.OTel
	NewSlogLogger = middleware.NewSlogLogger
	F             = middleware.F
)

// Size limit presets.
const (
	KB = middleware.KB
	MB = middleware.MB
)

// ProgressFromContext returns the progress reporter for the current
// request. Use it in tool handlers to stream progress:
//
//	srv.Tool("process").Handler(func(ctx context.Context, input ProcessInput) (string, error) {
//	    progress := relaykit.ProgressFromContext(ctx)
//	    total := 100.0
//	    for i := 0; i < 100; i++ {
//	        progress.Report(ctx, float64(i), &total)
//	    }
//	    return "done", nil
//	})
var ProgressFromContext = dispatch.ProgressFromContext

// DefaultMiddleware returns the recommended production stack.
func DefaultMiddleware(logger Logger) []Middleware {
	return middleware.DefaultStack(logger)
}

// Connect dials the configured transport and returns a ready client.
var Connect = client.Connect

// Transport configs, re-exported so callers need only this package.
type StdioConfig = transport.StdioConfig
type WebSocketConfig = transport.WebSocketConfig
type HTTPConfig = transport.HTTPConfig

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used by serve loops and the default stack.
func WithLogger(l Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithAuthorizer gates tools/call, resources/read, and prompts/get.
func WithAuthorizer(a Authorizer) Option {
	return func(s *Server) { s.auth = a }
}

// Server holds the capability registry and the request pipeline
// configuration. Register capabilities with the fluent builders, then
// hand the server to one of the Serve functions.
type Server struct {
	mu     sync.Mutex
	info   Info
	reg    *registry.Registry
	mw     []Middleware
	auth   Authorizer
	logger Logger
	subs   *dispatch.Subscriptions
	errs   []error
}

// NewServer creates a server with the given info and options.
func NewServer(info Info, opts ...Option) *Server {
	s := &Server{
		info: info,
		reg:  registry.New(),
		subs: dispatch.NewSubscriptions(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = middleware.NopLogger{}
	}
	return s
}

// Info returns the server metadata.
func (s *Server) Info() Info { return s.info }

// Registry exposes the capability registry.
func (s *Server) Registry() *registry.Registry { return s.reg }

// Use appends middleware to the request pipeline.
func (s *Server) Use(mw ...Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mw = append(s.mw, mw...)
}

// Err returns the registration errors collected by the builders, joined.
// Serve functions refuse to run a server with registration errors.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.errs...)
}

func (s *Server) recordErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

// Dispatcher builds the request pipeline for this server. Each call
// snapshots the current middleware and registry.
func (s *Server) Dispatcher(opts ...dispatch.Option) *dispatch.Dispatcher {
	s.mu.Lock()
	mw := make([]Middleware, len(s.mw))
	copy(mw, s.mw)
	s.mu.Unlock()

	all := make([]dispatch.Option, 0, len(opts)+3)
	all = append(all, dispatch.WithSubscriptions(s.subs))
	if s.auth != nil {
		all = append(all, dispatch.WithAuthorizer(s.auth))
	}
	if len(mw) > 0 {
		all = append(all, dispatch.WithMiddleware(mw...))
	}
	all = append(all, opts...)
	return dispatch.New(s.info, s.reg, all...)
}

// PublishResourceUpdate notifies every session subscribed to uri that
// the resource changed. Sessions subscribe with resources/subscribe.
func (s *Server) PublishResourceUpdate(ctx context.Context, uri string) error {
	return s.subs.Publish(ctx, uri)
}

// Tool starts building a tool capability. Registration happens when
// Handler is called; failures surface through Server.Err.
func (s *Server) Tool(name string) *ToolBuilder {
	return &ToolBuilder{server: s, name: name}
}

// ToolBuilder provides a fluent API for registering tools.
type ToolBuilder struct {
	server      *Server
	name        string
	description string
	raw         bool
}

// Description sets the tool description.
func (b *ToolBuilder) Description(desc string) *ToolBuilder {
	b.description = desc
	return b
}

// RawArguments disables schema validation of call arguments. By default a
// call whose arguments fail the input struct's schema is rejected with an
// invalid-params error before the handler runs.
func (b *ToolBuilder) RawArguments() *ToolBuilder {
	b.raw = true
	return b
}

// Handler sets the handler and registers the tool. The signature must be
// one of:
//   - func(input T) (R, error)
//   - func(ctx context.Context, input T) (R, error)
func (b *ToolBuilder) Handler(fn any) *ToolBuilder {
	var opts []registry.ToolOption
	if b.raw {
		opts = append(opts, registry.WithRawArguments())
	}
	tool, err := registry.NewTool(b.name, b.description, fn, opts...)
	if err != nil {
		b.server.recordErr(err)
		return b
	}
	if err := b.server.reg.RegisterTool(tool); err != nil {
		b.server.recordErr(err)
	}
	return b
}

// Resource starts building a resource capability addressed by a URI
// template like "file://{path}".
func (s *Server) Resource(uriTemplate string) *ResourceBuilder {
	return &ResourceBuilder{server: s, uriTemplate: uriTemplate}
}

// ResourceBuilder provides a fluent API for registering resources.
type ResourceBuilder struct {
	server      *Server
	uriTemplate string
	name        string
	description string
	mimeType    string
}

// Name sets the human-readable resource name.
func (b *ResourceBuilder) Name(name string) *ResourceBuilder {
	b.name = name
	return b
}

// Description sets the resource description.
func (b *ResourceBuilder) Description(desc string) *ResourceBuilder {
	b.description = desc
	return b
}

// MimeType sets the resource mime type.
func (b *ResourceBuilder) MimeType(mt string) *ResourceBuilder {
	b.mimeType = mt
	return b
}

// Handler sets the read handler and registers the resource.
func (b *ResourceBuilder) Handler(fn registry.ResourceHandler) *ResourceBuilder {
	var opts []registry.ResourceOption
	if b.name != "" {
		opts = append(opts, registry.WithResourceName(b.name))
	}
	if b.description != "" {
		opts = append(opts, registry.WithResourceDescription(b.description))
	}
	if b.mimeType != "" {
		opts = append(opts, registry.WithResourceMimeType(b.mimeType))
	}
	res, err := registry.NewResource(b.uriTemplate, fn, opts...)
	if err != nil {
		b.server.recordErr(err)
		return b
	}
	if err := b.server.reg.RegisterResource(res); err != nil {
		b.server.recordErr(err)
	}
	return b
}

// Prompt starts building a prompt capability.
func (s *Server) Prompt(name string) *PromptBuilder {
	return &PromptBuilder{server: s, name: name}
}

// PromptBuilder provides a fluent API for registering prompts.
type PromptBuilder struct {
	server      *Server
	name        string
	description string
	args        []registry.PromptOption
}

// Description sets the prompt description.
func (b *PromptBuilder) Description(desc string) *PromptBuilder {
	b.description = desc
	return b
}

// Argument declares an argument the prompt accepts.
func (b *PromptBuilder) Argument(name, description string, required bool) *PromptBuilder {
	b.args = append(b.args, registry.WithPromptArgument(name, description, required))
	return b
}

// Handler sets the render handler and registers the prompt.
func (b *PromptBuilder) Handler(fn registry.PromptHandler) *PromptBuilder {
	opts := make([]registry.PromptOption, 0, len(b.args)+1)
	if b.description != "" {
		opts = append(opts, registry.WithPromptDescription(b.description))
	}
	opts = append(opts, b.args...)
	p, err := registry.NewPrompt(b.name, fn, opts...)
	if err != nil {
		b.server.recordErr(err)
		return b
	}
	if err := b.server.reg.RegisterPrompt(p); err != nil {
		b.server.recordErr(err)
	}
	return b
}

// contextDone reports whether ctx is already cancelled.
func contextDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
