package registry

import (
	"context"
	"fmt"

	"github.com/relaykit/relaykit/protocol"
)

// PromptHandler renders a prompt with the supplied argument values.
type PromptHandler func(ctx context.Context, args map[string]string) (*PromptResult, error)

// Prompt is a template capability rendered on demand.
type Prompt struct {
	name        string
	description string
	arguments   []PromptArgument
	handler     PromptHandler
}

// PromptOption configures a Prompt at construction.
type PromptOption func(*Prompt)

// WithPromptDescription sets the description.
func WithPromptDescription(desc string) PromptOption {
	return func(p *Prompt) { p.description = desc }
}

// WithPromptArgument declares one argument.
func WithPromptArgument(name, description string, required bool) PromptOption {
	return func(p *Prompt) {
		p.arguments = append(p.arguments, PromptArgument{
			Name:        name,
			Description: description,
			Required:    required,
		})
	}
}

// NewPrompt builds a prompt from a handler.
func NewPrompt(name string, handler PromptHandler, opts ...PromptOption) (*Prompt, error) {
	if handler == nil {
		return nil, fmt.Errorf("prompt %q: nil handler", name)
	}
	p := &Prompt{name: name, handler: handler}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the prompt name.
func (p *Prompt) Name() string { return p.name }

// Description returns the description.
func (p *Prompt) Description() string { return p.description }

// Arguments returns the declared arguments in declaration order.
func (p *Prompt) Arguments() []PromptArgument { return p.arguments }

// Render checks required arguments and runs the handler. A missing required
// argument is a missing-parameter error; the handler never runs for it.
func (p *Prompt) Render(ctx context.Context, args map[string]string) (*PromptResult, error) {
	for _, arg := range p.arguments {
		if arg.Required && args[arg.Name] == "" {
			return nil, protocol.NewMissingParameter(arg.Name)
		}
	}
	return p.handler(ctx, args)
}
