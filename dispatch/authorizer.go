package dispatch

import "context"

// Authorizer gates capability access per request. subjectID identifies the
// caller (empty when unauthenticated), category is the capability kind
// ("tool", "resource", "prompt"), capability is its name or URI, and attrs
// carries request attributes useful for policy decisions.
//
// A false verdict denies the request before the handler runs; an error
// denies it and surfaces as an internal error.
type Authorizer interface {
	Check(ctx context.Context, subjectID, category, capability string, attrs map[string]string) (bool, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, subjectID, category, capability string, attrs map[string]string) (bool, error)

// Check calls f.
func (f AuthorizerFunc) Check(ctx context.Context, subjectID, category, capability string, attrs map[string]string) (bool, error) {
	return f(ctx, subjectID, category, capability, attrs)
}

// AllowAll permits every request. It is the default when no authorizer is
// configured.
func AllowAll() Authorizer {
	return AuthorizerFunc(func(context.Context, string, string, string, map[string]string) (bool, error) {
		return true, nil
	})
}
