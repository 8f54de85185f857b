// Package scopes implements the per-scope instance caches governing
// instance identity, creation-once guarantees and destruction ordering.
package scopes

import (
	"context"
	"errors"

	"github.com/gocdi/gocdi/internal/meta"
)

var (
	// ErrDestroyed is returned from Get once a context has been torn
	// down; a destroyed context never silently re-creates instances.
	ErrDestroyed = errors.New("scope context has been destroyed")
)

// Result is what a bean factory hands back to a scope context: the live
// instance plus the handles the context needs to destroy it later and to
// passivate it.
type Result struct {
	Value any

	// StableKey re-identifies the bean across container restarts, used by
	// session passivation. Derived from class and producing member, never
	// from the runtime bean identity.
	StableKey string

	// Destroy invokes the instance's pre-destroy callbacks and disposer.
	Destroy func(value any) error

	// PrePassivate runs before the instance is serialized. Optional.
	PrePassivate func(value any) error
}

// Factory creates one bean instance together with its lifecycle handles.
// A scope context invokes the factory at most once per bean identity per
// cache partition, no matter how many resolutions race.
type Factory func() (Result, error)

// Context is one lifecycle scope's instance cache. State machine:
// inactive → active → destroyed; Get fails once destroyed.
type Context interface {
	// Scope returns the scope marker this context serves.
	Scope() meta.ScopeID

	// Active reports whether the scope has a current activation for the
	// given call context.
	Active(ctx context.Context) bool

	// Get returns the cached instance for the bean identity, invoking the
	// factory exactly once on first access.
	Get(ctx context.Context, bean meta.BeanID, factory Factory) (any, error)

	// GetIfExists returns the cached instance without ever triggering
	// creation.
	GetIfExists(ctx context.Context, bean meta.BeanID) (any, bool)

	// Destroy tears the context down: every cached instance's disposal
	// hook is attempted, per-instance failures are collected, the cache is
	// cleared and the context transitions to destroyed.
	Destroy() error
}

// entry is one (bean identity → live instance) pair owned by exactly one
// scope context.
type entry struct {
	result Result
	err    error
	ready  chan struct{} // closed once the factory has run
}

// cache is the shared creation-once instance map used by the singleton
// context and by each session partition. Creation order is kept so
// disposal can run newest first.
type cache struct {
	entries map[meta.BeanID]*entry
	order   []meta.BeanID
}

func newCache() *cache {
	return &cache{entries: make(map[meta.BeanID]*entry)}
}

// get implements at-most-once creation under concurrent first access. The
// caller must hold mu around the claim step only; the factory runs without
// the lock so slow factories do not serialize unrelated beans.
func (c *cache) get(mu interface {
	Lock()
	Unlock()
}, bean meta.BeanID, factory Factory) (any, error) {
	mu.Lock()
	if e, ok := c.entries[bean]; ok {
		mu.Unlock()
		<-e.ready
		return e.result.Value, e.err
	}
	e := &entry{ready: make(chan struct{})}
	c.entries[bean] = e
	c.order = append(c.order, bean)
	mu.Unlock()

	e.result, e.err = factory()
	if e.err != nil {
		// A failed creation is not cached: later resolutions retry.
		mu.Lock()
		delete(c.entries, bean)
		for i, id := range c.order {
			if id == bean {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
		mu.Unlock()
	}
	close(e.ready)
	return e.result.Value, e.err
}

func (c *cache) getIfExists(bean meta.BeanID) (any, bool) {
	e, ok := c.entries[bean]
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
	default:
		return nil, false
	}
	if e.err != nil {
		return nil, false
	}
	return e.result.Value, true
}

// settled returns the successfully created entries in creation order
// without removing them.
func (c *cache) settled() []*entry {
	out := make([]*entry, 0, len(c.entries))
	for _, id := range c.order {
		e, ok := c.entries[id]
		if !ok {
			continue
		}
		select {
		case <-e.ready:
			if e.err == nil {
				out = append(out, e)
			}
		default:
		}
	}
	return out
}

// drain empties the cache and returns the settled entries in reverse
// creation order, so disposal tears the newest instances down first.
func (c *cache) drain() []*entry {
	settled := c.settled()
	out := make([]*entry, 0, len(settled))
	for i := len(settled) - 1; i >= 0; i-- {
		out = append(out, settled[i])
	}
	c.entries = make(map[meta.BeanID]*entry)
	c.order = nil
	return out
}

// destroyEntries attempts every instance's disposal hook. One failing
// disposal never blocks the rest.
func destroyEntries(entries []*entry) []error {
	var errs []error
	for _, e := range entries {
		if e.result.Destroy == nil {
			continue
		}
		if err := e.result.Destroy(e.result.Value); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
