package gocdi

import (
	"context"

	"github.com/gocdi/gocdi/internal/meta"
	"github.com/gocdi/gocdi/internal/scopes"
)

// Scope identifies a bean lifecycle scope.
type Scope = meta.ScopeID

const (
	// Dependent is the pseudo-scope: a fresh instance per resolution,
	// owned by whatever requested it and destroyed with its owner.
	Dependent = meta.Dependent

	// Singleton caches one instance for the container lifetime.
	Singleton = meta.Singleton

	// Session caches one instance per logical session. Session-scoped
	// beans may be passivated to a store and restored later, including
	// across container restarts.
	Session = meta.Session
)

// WithSession binds a session identifier to the context. Resolution of
// session-scoped beans under this context uses that session's partition.
//
// In web applications the identifier is typically the authenticated
// session cookie:
//
//	ctx := gocdi.WithSession(r.Context(), sessionID)
//	cart, err := gocdi.Resolve[*ShoppingCart](ctx, container)
func WithSession(ctx context.Context, id string) context.Context {
	return scopes.WithSession(ctx, id)
}

// SessionFrom extracts the session identifier bound to the context.
func SessionFrom(ctx context.Context) (string, bool) {
	return scopes.SessionFrom(ctx)
}

// Stereotype bundles a recurring set of component attributes under one
// name: a default scope, extra qualifiers and optionally the alternative
// marker. Declaring the stereotype on a component applies the bundle.
type Stereotype = meta.Stereotype
