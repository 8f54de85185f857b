package scopes

import (
	"sync"

	"github.com/gocdi/gocdi/internal/meta"
)

// Registry maps scope markers to their live contexts. Registration happens
// at container construction; lookups during resolution are read-only.
type Registry struct {
	mu       sync.RWMutex
	contexts map[meta.ScopeID]Context
	deferred map[meta.ScopeID]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		contexts: make(map[meta.ScopeID]Context),
		deferred: make(map[meta.ScopeID]bool),
	}
}

// Register installs a context for its scope. A deferred scope hands out
// re-resolving references instead of raw instances, so a reference obtained
// in one activation stays valid in the next.
func (r *Registry) Register(ctx Context, deferred bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contexts[ctx.Scope()] = ctx
	r.deferred[ctx.Scope()] = deferred
}

// Lookup returns the context for a scope marker.
func (r *Registry) Lookup(scope meta.ScopeID) (Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctx, ok := r.contexts[scope]
	return ctx, ok
}

// IsDeferred reports whether the scope requires reference indirection.
func (r *Registry) IsDeferred(scope meta.ScopeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.deferred[scope]
}

// Scopes returns the registered scope markers.
func (r *Registry) Scopes() []meta.ScopeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]meta.ScopeID, 0, len(r.contexts))
	for id := range r.contexts {
		out = append(out, id)
	}
	return out
}

// DestroyAll tears every registered context down. Errors are collected,
// one failing context never blocks the rest.
func (r *Registry) DestroyAll() []error {
	r.mu.Lock()
	contexts := make([]Context, 0, len(r.contexts))
	// Dependent instances may reference wider-scoped beans, so narrower
	// scopes go first: session, then dependent, then singleton.
	for _, id := range []meta.ScopeID{meta.Session, meta.Dependent, meta.Singleton} {
		if ctx, ok := r.contexts[id]; ok {
			contexts = append(contexts, ctx)
			delete(r.contexts, id)
		}
	}
	for _, ctx := range r.contexts {
		contexts = append(contexts, ctx)
	}
	r.contexts = make(map[meta.ScopeID]Context)
	r.mu.Unlock()

	var errs []error
	for _, ctx := range contexts {
		if err := ctx.Destroy(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
