package registry

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateName rejects a second registration under a name already taken
// within the same category. The same name in different categories is fine.
var ErrDuplicateName = errors.New("registry: duplicate name")

// Registry is the capability table for one server. Listings come back in
// registration order.
type Registry struct {
	mu sync.RWMutex

	tools     []*Tool
	toolIndex map[string]*Tool

	resources     []*Resource
	resourceIndex map[string]*Resource

	prompts     []*Prompt
	promptIndex map[string]*Prompt
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		toolIndex:     make(map[string]*Tool),
		resourceIndex: make(map[string]*Resource),
		promptIndex:   make(map[string]*Prompt),
	}
}

// RegisterTool adds a tool under its name.
func (r *Registry) RegisterTool(t *Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.toolIndex[t.name]; taken {
		return fmt.Errorf("%w: tool %q", ErrDuplicateName, t.name)
	}
	r.toolIndex[t.name] = t
	r.tools = append(r.tools, t)
	return nil
}

// Tool looks up a tool by name.
func (r *Registry) Tool(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.toolIndex[name]
	return t, ok
}

// Tools returns all tools in registration order.
func (r *Registry) Tools() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// RegisterResource adds a resource under its URI template.
func (r *Registry) RegisterResource(res *Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.resourceIndex[res.uriTemplate]; taken {
		return fmt.Errorf("%w: resource %q", ErrDuplicateName, res.uriTemplate)
	}
	r.resourceIndex[res.uriTemplate] = res
	r.resources = append(r.resources, res)
	return nil
}

// Resource looks up a resource by its exact URI template.
func (r *Registry) Resource(uriTemplate string) (*Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resourceIndex[uriTemplate]
	return res, ok
}

// Resources returns all resources in registration order.
func (r *Registry) Resources() []*Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Resource, len(r.resources))
	copy(out, r.resources)
	return out
}

// FindResource returns the first registered resource whose template matches
// uri. Registration order decides ties.
func (r *Registry) FindResource(uri string) (*Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, res := range r.resources {
		if _, ok := res.Match(uri); ok {
			return res, true
		}
	}
	return nil, false
}

// RegisterPrompt adds a prompt under its name.
func (r *Registry) RegisterPrompt(p *Prompt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.promptIndex[p.name]; taken {
		return fmt.Errorf("%w: prompt %q", ErrDuplicateName, p.name)
	}
	r.promptIndex[p.name] = p
	r.prompts = append(r.prompts, p)
	return nil
}

// Prompt looks up a prompt by name.
func (r *Registry) Prompt(name string) (*Prompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.promptIndex[name]
	return p, ok
}

// Prompts returns all prompts in registration order.
func (r *Registry) Prompts() []*Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Prompt, len(r.prompts))
	copy(out, r.prompts)
	return out
}
