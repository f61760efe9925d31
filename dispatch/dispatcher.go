package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/relaykit/relaykit/middleware"
	"github.com/relaykit/relaykit/protocol"
	"github.com/relaykit/relaykit/registry"
)

// Phase is a request's position in the handling pipeline.
type Phase string

const (
	PhaseReceived   Phase = "received"
	PhaseValidated  Phase = "validated"
	PhaseAuthorized Phase = "authorized"
	PhaseExecuting  Phase = "executing"
	PhaseCompleted  Phase = "completed"
)

// Capability categories used in authorization checks.
const (
	CategoryTool     = "tool"
	CategoryResource = "resource"
	CategoryPrompt   = "prompt"
)

// Info identifies the server in initialize responses.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities reports which categories have registrations.
type Capabilities struct {
	Tools     bool `json:"tools"`
	Resources bool `json:"resources"`
	Prompts   bool `json:"prompts"`
}

// InitializeResult answers an initialize request.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      Info         `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithAuthorizer installs an access policy checked before any tool call,
// resource read, or prompt render. Listing and initialize are never gated.
func WithAuthorizer(a Authorizer) Option {
	return func(d *Dispatcher) { d.auth = a }
}

// WithMiddleware wraps the routing core. Middleware run in the given order.
func WithMiddleware(mw ...middleware.Middleware) Option {
	return func(d *Dispatcher) { d.mw = append(d.mw, mw...) }
}

// WithSubscriptions installs a shared subscription table so that
// several dispatchers (one per connection, say) publish to the same
// set of subscribers. Without it each dispatcher keeps its own table.
func WithSubscriptions(s *Subscriptions) Option {
	return func(d *Dispatcher) { d.subs = s }
}

// WithPhaseHook observes pipeline transitions, mainly for tests and
// tracing.
func WithPhaseHook(hook func(req *protocol.Request, phase Phase)) Option {
	return func(d *Dispatcher) { d.onPhase = hook }
}

// Dispatcher owns the method table for one server. It is safe for use by
// any number of concurrent sessions.
type Dispatcher struct {
	info    Info
	reg     *registry.Registry
	auth    Authorizer
	mw      []middleware.Middleware
	handle  middleware.HandlerFunc
	onPhase func(req *protocol.Request, phase Phase)
	subs    *Subscriptions
}

// New builds a dispatcher over a capability registry.
func New(info Info, reg *registry.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		info: info,
		reg:  reg,
		auth: AllowAll(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.subs == nil {
		d.subs = NewSubscriptions()
	}
	d.handle = middleware.Chain(d.mw...)(d.route)
	return d
}

// Subscriptions exposes the resource subscription table so servers can
// publish update notifications.
func (d *Dispatcher) Subscriptions() *Subscriptions {
	return d.subs
}

// Handle runs one request through the pipeline and always returns exactly
// one response envelope for it.
func (d *Dispatcher) Handle(ctx context.Context, req *protocol.Request) *protocol.Response {
	d.phase(req, PhaseReceived)

	if err := validateEnvelope(req); err != nil {
		return protocol.NewErrorResponse(req.ID, err)
	}
	d.phase(req, PhaseValidated)

	resp, err := d.handle(ctx, req)
	if err != nil {
		resp = protocol.NewErrorResponse(req.ID, asWireError(err))
	}
	if resp == nil {
		resp = protocol.NewErrorResponse(req.ID,
			protocol.NewInternalError(fmt.Sprintf("no response produced for %s", req.Method)))
	}
	d.phase(req, PhaseCompleted)
	return resp
}

func (d *Dispatcher) phase(req *protocol.Request, p Phase) {
	if d.onPhase != nil {
		d.onPhase(req, p)
	}
}

func validateEnvelope(req *protocol.Request) *protocol.Error {
	if req.JSONRPC != protocol.Version {
		return protocol.NewInvalidRequest(fmt.Sprintf("unsupported version %q", req.JSONRPC))
	}
	if req.Method == "" {
		return protocol.NewInvalidRequest("missing method")
	}
	return nil
}

// asWireError maps any handler failure onto the wire taxonomy, preserving
// typed protocol errors as-is.
func asWireError(err error) *protocol.Error {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return perr
	}
	return protocol.NewInternalError(err.Error())
}

// route is the method table. It sits at the bottom of the middleware chain.
func (d *Dispatcher) route(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	switch req.Method {
	case protocol.MethodInitialize:
		return d.handleInitialize(req)
	case protocol.MethodPing:
		return protocol.NewResponse(req.ID, map[string]any{}), nil
	case protocol.MethodToolsList:
		return d.handleToolsList(req)
	case protocol.MethodToolsCall:
		return d.handleToolsCall(ctx, req)
	case protocol.MethodResourcesList:
		return d.handleResourcesList(req)
	case protocol.MethodResourcesRead:
		return d.handleResourcesRead(ctx, req)
	case protocol.MethodResourcesSubscribe:
		return d.handleResourcesSubscribe(ctx, req, true)
	case protocol.MethodResourcesUnsubscribe:
		return d.handleResourcesSubscribe(ctx, req, false)
	case protocol.MethodPromptsList:
		return d.handlePromptsList(req)
	case protocol.MethodPromptsGet:
		return d.handlePromptsGet(ctx, req)
	default:
		return nil, protocol.NewMethodNotFound(req.Method)
	}
}

func (d *Dispatcher) handleInitialize(req *protocol.Request) (*protocol.Response, error) {
	result := InitializeResult{
		ProtocolVersion: protocol.ProtocolVersion,
		ServerInfo:      d.info,
		Capabilities: Capabilities{
			Tools:     len(d.reg.Tools()) > 0,
			Resources: len(d.reg.Resources()) > 0,
			Prompts:   len(d.reg.Prompts()) > 0,
		},
	}
	return protocol.NewResponse(req.ID, result), nil
}

func (d *Dispatcher) handleToolsList(req *protocol.Request) (*protocol.Response, error) {
	tools := d.reg.Tools()
	list := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		list = append(list, map[string]any{
			"name":        t.Name(),
			"description": t.Description(),
			"inputSchema": t.InputSchema(),
		})
	}
	return protocol.NewResponse(req.ID, map[string]any{"tools": list}), nil
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
		Meta      *struct {
			ProgressToken json.RawMessage `json:"progressToken"`
		} `json:"_meta"`
	}
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, protocol.NewMissingParameter("name")
	}

	tool, ok := d.reg.Tool(params.Name)
	if !ok {
		return nil, protocol.NewNotFound(fmt.Sprintf("tool %q is not registered", params.Name))
	}

	if err := d.authorize(ctx, req, CategoryTool, params.Name, nil); err != nil {
		return nil, err
	}
	d.phase(req, PhaseExecuting)

	if params.Meta != nil && len(params.Meta.ProgressToken) > 0 {
		ctx = contextWithProgressToken(ctx, params.Meta.ProgressToken)
	}

	result, err := tool.Execute(ctx, params.Arguments)
	if err != nil {
		return nil, err
	}
	return protocol.NewResponse(req.ID, toolResultPayload(result)), nil
}

// toolResultPayload normalizes handler return values onto the content
// envelope: a *ToolResult passes through, a string becomes text content,
// anything else is JSON-encoded text.
func toolResultPayload(result any) *registry.ToolResult {
	switch v := result.(type) {
	case *registry.ToolResult:
		return v
	case registry.ToolResult:
		return &v
	case string:
		return registry.NewToolResultText(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return registry.NewToolResultError(fmt.Sprintf("encode result: %v", err))
		}
		return registry.NewToolResultText(string(encoded))
	}
}

func (d *Dispatcher) handleResourcesList(req *protocol.Request) (*protocol.Response, error) {
	resources := d.reg.Resources()
	list := make([]map[string]any, 0, len(resources))
	for _, r := range resources {
		entry := map[string]any{"uri": r.URITemplate()}
		if r.Name() != "" {
			entry["name"] = r.Name()
		}
		if r.Description() != "" {
			entry["description"] = r.Description()
		}
		if r.MimeType() != "" {
			entry["mimeType"] = r.MimeType()
		}
		list = append(list, entry)
	}
	return protocol.NewResponse(req.ID, map[string]any{"resources": list}), nil
}

func (d *Dispatcher) handleResourcesRead(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	var params struct {
		URI string `json:"uri"`
	}
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, err
	}
	if params.URI == "" {
		return nil, protocol.NewMissingParameter("uri")
	}

	res, ok := d.reg.FindResource(params.URI)
	if !ok {
		return nil, protocol.NewNotFound(fmt.Sprintf("no resource matches %q", params.URI))
	}

	if err := d.authorize(ctx, req, CategoryResource, res.URITemplate(),
		map[string]string{"uri": params.URI}); err != nil {
		return nil, err
	}
	d.phase(req, PhaseExecuting)

	content, err := res.Read(ctx, params.URI)
	if err != nil {
		return nil, err
	}
	return protocol.NewResponse(req.ID, map[string]any{
		"contents": []*registry.ResourceContent{content},
	}), nil
}

func (d *Dispatcher) handlePromptsList(req *protocol.Request) (*protocol.Response, error) {
	prompts := d.reg.Prompts()
	list := make([]map[string]any, 0, len(prompts))
	for _, p := range prompts {
		entry := map[string]any{"name": p.Name()}
		if p.Description() != "" {
			entry["description"] = p.Description()
		}
		if args := p.Arguments(); len(args) > 0 {
			entry["arguments"] = args
		}
		list = append(list, entry)
	}
	return protocol.NewResponse(req.ID, map[string]any{"prompts": list}), nil
}

func (d *Dispatcher) handlePromptsGet(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	var params struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments"`
	}
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, protocol.NewMissingParameter("name")
	}

	prompt, ok := d.reg.Prompt(params.Name)
	if !ok {
		return nil, protocol.NewNotFound(fmt.Sprintf("prompt %q is not registered", params.Name))
	}

	if err := d.authorize(ctx, req, CategoryPrompt, params.Name, params.Arguments); err != nil {
		return nil, err
	}
	d.phase(req, PhaseExecuting)

	result, err := prompt.Render(ctx, params.Arguments)
	if err != nil {
		return nil, err
	}
	return protocol.NewResponse(req.ID, result), nil
}

// authorize consults the policy before the handler runs. The subject comes
// from the authenticated identity on the context, if any.
func (d *Dispatcher) authorize(ctx context.Context, req *protocol.Request, category, capability string, attrs map[string]string) error {
	subject := ""
	if id := middleware.IdentityFromContext(ctx); id != nil {
		subject = id.Subject
	}

	allowed, err := d.auth.Check(ctx, subject, category, capability, attrs)
	if err != nil {
		return protocol.NewInternalError(fmt.Sprintf("authorization check: %v", err))
	}
	if !allowed {
		return protocol.NewPermissionDenied(
			fmt.Sprintf("%s %q denied for subject %q", category, capability, subject))
	}
	d.phase(req, PhaseAuthorized)
	return nil
}

func decodeParams(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return protocol.NewInvalidParams("missing params")
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return protocol.NewInvalidParams(fmt.Sprintf("decode params: %v", err))
	}
	return nil
}
