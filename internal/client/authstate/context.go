package authstate

import (
	"context"
	"errors"
)

type providerKey struct{}

// ErrNoProvider is the panic value of MustFromContext outside a provider scope.
var ErrNoProvider = errors.New("authstate: no provider in context")

// WithProvider scopes p to everything that receives the returned context.
func WithProvider(ctx context.Context, p *Provider) context.Context {
	return context.WithValue(ctx, providerKey{}, p)
}

// FromContext returns the provider in scope, if any.
func FromContext(ctx context.Context) (*Provider, bool) {
	p, ok := ctx.Value(providerKey{}).(*Provider)
	return p, ok && p != nil
}

// MustFromContext returns the provider in scope. Asking for one outside a
// provider scope is a programming error and panics.
func MustFromContext(ctx context.Context) *Provider {
	p, ok := FromContext(ctx)
	if !ok {
		panic(ErrNoProvider)
	}
	return p
}
