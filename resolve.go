package gocdi

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"reflect"
	"sync"

	"github.com/gocdi/gocdi/internal/meta"
	"github.com/gocdi/gocdi/internal/resolver"
)

// Resolve resolves the single enabled bean assignable to T, honoring the
// requested qualifiers.
//
// Example:
//
//	gateway, err := gocdi.Resolve[PaymentGateway](ctx, c, gocdi.Named("stripe"))
func Resolve[T any](ctx context.Context, c *Container, qualifiers ...Qualifier) (T, error) {
	var zero T
	v, err := c.ResolveType(ctx, typeFor[T](), qualifiers...)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("resolved %T is not assignable to %s", v, typeFor[T]())
	}
	return out, nil
}

// ResolveAll resolves one instance of every enabled bean assignable to T.
func ResolveAll[T any](ctx context.Context, c *Container, qualifiers ...Qualifier) ([]T, error) {
	vs, err := c.ResolveAllType(ctx, typeFor[T](), qualifiers...)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(vs))
	for _, v := range vs {
		t, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("resolved %T is not assignable to %s", v, typeFor[T]())
		}
		out = append(out, t)
	}
	return out, nil
}

// Ref is a deferred, serializable reference to a bean. Resolution happens
// on Get, not at injection, so a session-scoped bean may safely hold a Ref
// to another session bean through passivation: the reference serializes as
// the target's type and qualifiers and re-binds to the live container when
// the owning session is activated again.
//
// Declare it as a regular injected field:
//
//	type Checkout struct {
//	    Gateway gocdi.Ref[PaymentGateway] `inject:""`
//	}
type Ref[T any] struct {
	mu         sync.Mutex
	rt         resolver.Runtime
	qualifiers meta.Qualifiers
}

// BindRuntime is called by the resolver when the Ref is injected.
func (r *Ref[T]) BindRuntime(rt resolver.Runtime, point meta.InjectionPoint) {
	r.mu.Lock()
	r.rt = rt
	r.qualifiers = point.Qualifiers
	r.mu.Unlock()
}

func (r *Ref[T]) runtime() (resolver.Runtime, meta.Qualifiers, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rt == nil {
		// A Ref restored from passivated state lost its binding; fall back
		// to the live container.
		c := currentContainer()
		if c == nil {
			return nil, nil, fmt.Errorf("reference to %s is unbound and no container is live", typeFor[T]())
		}
		r.rt = c.resolver
	}
	return r.rt, r.qualifiers, nil
}

// Get resolves the referenced bean. Each call goes through the scope
// contexts, so a dependent-scoped target yields a fresh instance per call.
func (r *Ref[T]) Get(ctx context.Context) (T, error) {
	var zero T
	rt, quals, err := r.runtime()
	if err != nil {
		return zero, err
	}
	v, err := rt.ResolveType(ctx, typeFor[T](), quals)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("resolved %T is not assignable to %s", v, typeFor[T]())
	}
	return out, nil
}

// refWire is the serialized form: the qualifier set only. The type travels
// in the Ref's own type parameter and the runtime re-binds on first use.
type refWire struct {
	Qualifiers meta.Qualifiers
}

// GobEncode serializes the reference without its runtime binding.
func (r *Ref[T]) GobEncode() ([]byte, error) {
	r.mu.Lock()
	wire := refWire{Qualifiers: r.qualifiers}
	r.mu.Unlock()
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(wire); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode restores the qualifier set; the runtime binding is recovered
// lazily on the next Get.
func (r *Ref[T]) GobDecode(data []byte) error {
	var wire refWire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&wire); err != nil {
		return err
	}
	r.mu.Lock()
	r.qualifiers = wire.Qualifiers
	r.rt = nil
	r.mu.Unlock()
	return nil
}

// Instance is a programmatic lookup handle over the beans assignable to T.
// Injecting Instance[T] never fails at deployment even when zero or many
// candidates exist; ambiguity and absence surface on the individual calls.
//
//	type Dispatch struct {
//	    Handlers gocdi.Instance[Handler] `inject:""`
//	}
type Instance[T any] struct {
	rt         resolver.Runtime
	qualifiers meta.Qualifiers
}

// BindRuntime is called by the resolver when the Instance is injected.
func (i *Instance[T]) BindRuntime(rt resolver.Runtime, point meta.InjectionPoint) {
	i.rt = rt
	i.qualifiers = point.Qualifiers
}

// Select narrows the handle with additional qualifiers. The receiver is
// unchanged.
func (i *Instance[T]) Select(qualifiers ...Qualifier) *Instance[T] {
	merged := append(append(meta.Qualifiers(nil), i.qualifiers...), qualifiers...)
	return &Instance[T]{rt: i.rt, qualifiers: merged}
}

// Get resolves the single matching bean.
func (i *Instance[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if i.rt == nil {
		return zero, fmt.Errorf("instance handle for %s was not injected by a container", typeFor[T]())
	}
	v, err := i.rt.ResolveType(ctx, typeFor[T](), i.qualifiers)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("resolved %T is not assignable to %s", v, typeFor[T]())
	}
	return out, nil
}

// All resolves one instance of every matching bean.
func (i *Instance[T]) All(ctx context.Context) ([]T, error) {
	if i.rt == nil {
		return nil, fmt.Errorf("instance handle for %s was not injected by a container", typeFor[T]())
	}
	vs, err := i.rt.ResolveAll(ctx, typeFor[T](), i.qualifiers)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(vs))
	for _, v := range vs {
		t, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("resolved %T is not assignable to %s", v, typeFor[T]())
		}
		out = append(out, t)
	}
	return out, nil
}

// Implementations enumerates the class of every matching enabled candidate
// without instantiating any of them.
func (i *Instance[T]) Implementations() []reflect.Type {
	if i.rt == nil {
		return nil
	}
	beans := i.rt.Candidates(typeFor[T](), i.qualifiers)
	out := make([]reflect.Type, 0, len(beans))
	for _, b := range beans {
		out = append(out, b.Class)
	}
	return out
}

// IsResolvable reports whether exactly one enabled candidate matches.
func (i *Instance[T]) IsResolvable() bool {
	if i.rt == nil {
		return false
	}
	return len(i.rt.Candidates(typeFor[T](), i.qualifiers)) == 1
}

// IsAmbiguous reports whether more than one enabled candidate matches.
func (i *Instance[T]) IsAmbiguous() bool {
	if i.rt == nil {
		return false
	}
	return len(i.rt.Candidates(typeFor[T](), i.qualifiers)) > 1
}
