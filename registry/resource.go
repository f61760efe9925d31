package registry

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/relaykit/relaykit/protocol"
)

// ResourceHandler produces the content for one resource read. params holds
// the values extracted from the URI template.
type ResourceHandler func(ctx context.Context, uri string, params map[string]string) (*ResourceContent, error)

// Resource is a readable capability addressed by a URI template like
// "users://{id}/profile". The template compiles once at construction.
type Resource struct {
	uriTemplate string
	name        string
	description string
	mimeType    string
	handler     ResourceHandler

	uriRegex   *regexp.Regexp
	paramNames []string
}

// ResourceOption configures a Resource at construction.
type ResourceOption func(*Resource)

// WithResourceName sets a human-readable name.
func WithResourceName(name string) ResourceOption {
	return func(r *Resource) { r.name = name }
}

// WithResourceDescription sets the description.
func WithResourceDescription(desc string) ResourceOption {
	return func(r *Resource) { r.description = desc }
}

// WithResourceMimeType sets the content MIME type.
func WithResourceMimeType(mimeType string) ResourceOption {
	return func(r *Resource) { r.mimeType = mimeType }
}

var templateParamRegex = regexp.MustCompile(`\{([^}]+)\}`)

// NewResource builds a resource from a URI template and handler.
func NewResource(uriTemplate string, handler ResourceHandler, opts ...ResourceOption) (*Resource, error) {
	if handler == nil {
		return nil, fmt.Errorf("resource %q: nil handler", uriTemplate)
	}
	r := &Resource{
		uriTemplate: uriTemplate,
		handler:     handler,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.compileTemplate(); err != nil {
		return nil, fmt.Errorf("resource %q: %w", uriTemplate, err)
	}
	return r, nil
}

func (r *Resource) compileTemplate() error {
	for _, match := range templateParamRegex.FindAllStringSubmatch(r.uriTemplate, -1) {
		r.paramNames = append(r.paramNames, match[1])
	}

	pattern := regexp.QuoteMeta(r.uriTemplate)
	pattern = strings.ReplaceAll(pattern, `\{`, "{")
	pattern = strings.ReplaceAll(pattern, `\}`, "}")
	pattern = templateParamRegex.ReplaceAllString(pattern, `([^/]+)`)

	var err error
	r.uriRegex, err = regexp.Compile("^" + pattern + "$")
	return err
}

// URITemplate returns the registered template.
func (r *Resource) URITemplate() string { return r.uriTemplate }

// Name returns the human-readable name.
func (r *Resource) Name() string { return r.name }

// Description returns the description.
func (r *Resource) Description() string { return r.description }

// MimeType returns the content MIME type.
func (r *Resource) MimeType() string { return r.mimeType }

// Match tests uri against the template and extracts parameter values.
func (r *Resource) Match(uri string) (map[string]string, bool) {
	groups := r.uriRegex.FindStringSubmatch(uri)
	if groups == nil {
		return nil, false
	}
	params := make(map[string]string, len(r.paramNames))
	for i, name := range r.paramNames {
		if i+1 < len(groups) {
			params[name] = groups[i+1]
		}
	}
	return params, true
}

// Read runs the handler for a URI that matches the template.
func (r *Resource) Read(ctx context.Context, uri string) (*ResourceContent, error) {
	params, ok := r.Match(uri)
	if !ok {
		return nil, protocol.NewNotFound(fmt.Sprintf("uri %q does not match %q", uri, r.uriTemplate))
	}
	return r.handler(ctx, uri, params)
}
