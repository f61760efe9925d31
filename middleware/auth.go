package middleware

import (
	"context"
	"strings"

	"github.com/relaykit/relaykit/protocol"
)

// Identity is an authenticated caller. Subject is the stable identifier
// authorization policies key on.
type Identity struct {
	Subject  string
	Name     string
	Metadata map[string]any
}

type identityContextKey struct{}

// IdentityFromContext returns the authenticated identity, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}

// ContextWithIdentity attaches an identity.
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// Authenticator validates a request's credentials. A nil identity with a
// nil error means "no credentials presented".
type Authenticator func(ctx context.Context, req *protocol.Request) (*Identity, error)

// AuthOption configures the Auth middleware.
type AuthOption func(*authConfig)

type authConfig struct {
	logger      Logger
	skipMethods map[string]bool
	message     string
}

// WithAuthLogger logs authentication outcomes.
func WithAuthLogger(l Logger) AuthOption {
	return func(c *authConfig) { c.logger = l }
}

// WithAuthSkipMethods exempts methods from authentication. initialize and
// ping are always exempt.
func WithAuthSkipMethods(methods ...string) AuthOption {
	return func(c *authConfig) {
		for _, m := range methods {
			c.skipMethods[m] = true
		}
	}
}

// WithAuthErrorMessage customizes the rejection message.
func WithAuthErrorMessage(msg string) AuthOption {
	return func(c *authConfig) { c.message = msg }
}

// Auth rejects unauthenticated requests and attaches the identity to the
// context for downstream authorization.
func Auth(authenticator Authenticator, opts ...AuthOption) Middleware {
	cfg := &authConfig{
		skipMethods: map[string]bool{
			protocol.MethodInitialize: true,
			protocol.MethodPing:       true,
		},
		message: "authentication required",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			if cfg.skipMethods[req.Method] {
				return next(ctx, req)
			}

			identity, err := authenticator(ctx, req)
			if err != nil || identity == nil {
				if cfg.logger != nil {
					fields := []Field{F("method", req.Method)}
					if err != nil {
						fields = append(fields, F("error", err.Error()))
					}
					cfg.logger.Warn("authentication failed", fields...)
				}
				return nil, protocol.NewPermissionDenied(cfg.message)
			}

			return next(ContextWithIdentity(ctx, identity), req)
		}
	}
}

// APIKeyAuthenticator checks a key carried in request metadata under
// headerName. The validator returns nil for unknown keys.
func APIKeyAuthenticator(headerName string, validator func(key string) *Identity) Authenticator {
	return func(ctx context.Context, _ *protocol.Request) (*Identity, error) {
		key := protocol.GetRequestMeta(ctx, headerName)
		if key == "" {
			key = protocol.GetRequestMeta(ctx, strings.ToLower(headerName))
		}
		if key == "" {
			return nil, nil
		}
		return validator(key), nil
	}
}

// BearerTokenAuthenticator checks an "Authorization: Bearer <token>"
// credential in request metadata.
func BearerTokenAuthenticator(validator func(token string) *Identity) Authenticator {
	return func(ctx context.Context, _ *protocol.Request) (*Identity, error) {
		auth := protocol.GetRequestMeta(ctx, "Authorization")
		if auth == "" {
			auth = protocol.GetRequestMeta(ctx, "authorization")
		}
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			return nil, nil
		}
		return validator(token), nil
	}
}

// StaticTokens builds a validator from a fixed token table.
func StaticTokens(tokens map[string]*Identity) func(string) *Identity {
	return func(token string) *Identity {
		return tokens[token]
	}
}

// ChainAuthenticators tries each authenticator in order and returns the
// first identity found.
func ChainAuthenticators(authenticators ...Authenticator) Authenticator {
	return func(ctx context.Context, req *protocol.Request) (*Identity, error) {
		for _, auth := range authenticators {
			identity, err := auth(ctx, req)
			if err != nil {
				return nil, err
			}
			if identity != nil {
				return identity, nil
			}
		}
		return nil, nil
	}
}
