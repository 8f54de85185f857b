// Package resolver performs typesafe resolution over the sealed metadata
// store and drives instance lifecycles through the scope contexts.
package resolver

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/zap"

	"github.com/gocdi/gocdi/internal/events"
	"github.com/gocdi/gocdi/internal/meta"
	"github.com/gocdi/gocdi/internal/scopes"
	"github.com/gocdi/gocdi/internal/typematch"
)

// Runtime is the resolution surface handed to container-provided injectable
// values such as event sinks and deferred references.
type Runtime interface {
	// ResolveType resolves the single bean matching the requested type and
	// qualifier set.
	ResolveType(ctx context.Context, requested reflect.Type, qualifiers meta.Qualifiers) (any, error)

	// ResolveAll resolves every enabled bean matching the requested type
	// and qualifier set.
	ResolveAll(ctx context.Context, requested reflect.Type, qualifiers meta.Qualifiers) ([]any, error)

	// Candidates lists the matching bean descriptors without instantiating
	// anything.
	Candidates(requested reflect.Type, qualifiers meta.Qualifiers) []*meta.Bean

	// Fire delivers an event synchronously.
	Fire(ctx context.Context, payload any, qualifiers meta.Qualifiers) error

	// FireAsync delivers an event on the bus executor.
	FireAsync(ctx context.Context, payload any, qualifiers meta.Qualifiers) <-chan error
}

// Binder marks container-provided injectable types. When an injection point
// declares a Binder implementation the resolver constructs the value itself
// and hands it the runtime instead of searching the bean set.
type Binder interface {
	BindRuntime(rt Runtime, point meta.InjectionPoint)
}

var (
	binderType         = reflect.TypeOf((*Binder)(nil)).Elem()
	injectionPointType = reflect.TypeOf(meta.InjectionPoint{})
	errorType          = reflect.TypeOf((*error)(nil)).Elem()
)

// Resolver selects bean descriptors for requested types and materializes
// their contextual instances.
type Resolver struct {
	store  *meta.Store
	scopes *scopes.Registry
	logger *zap.Logger

	// bus is set after construction; the bus needs the resolver as its
	// bean source.
	bus *events.Bus
}

// New creates a resolver over a sealed store.
func New(store *meta.Store, registry *scopes.Registry, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, scopes: registry, logger: logger}
}

// SetBus installs the event bus once both sides exist.
func (r *Resolver) SetBus(bus *events.Bus) { r.bus = bus }

// Provided reports whether the container itself supplies values of this
// type at injection points rather than resolving a bean for them.
func Provided(t reflect.Type) bool {
	if t == injectionPointType {
		return true
	}
	if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct {
		return t.Implements(binderType)
	}
	return t.Kind() == reflect.Struct && reflect.PointerTo(t).Implements(binderType)
}

// StableKey identifies a bean across container restarts: the class path
// plus the producing member for producer-derived beans. Runtime bean
// identities are never stable, this is.
func StableKey(b *meta.Bean) string {
	if b.Producer != nil {
		return b.Class.String() + "#" + b.Producer.Member
	}
	return b.Class.String()
}

// Candidates returns every resolvable descriptor matching the requested
// type and normalized qualifier set, alternatives included.
func (r *Resolver) Candidates(requested reflect.Type, qualifiers meta.Qualifiers) []*meta.Bean {
	qualifiers = meta.Normalize(qualifiers)
	var out []*meta.Bean
	for _, b := range r.store.Beans() {
		if !b.Resolvable() {
			continue
		}
		if !typematch.ExposedMatches(b.InstanceType, b.Types, requested) {
			continue
		}
		if !b.Qualifiers.Satisfies(qualifiers) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// selectBean applies the resolution rules: alternatives displace regular
// beans, the highest priority wins among alternatives, ties and leftover
// plurality are ambiguous, emptiness is unsatisfied.
func (r *Resolver) selectBean(requested reflect.Type, qualifiers meta.Qualifiers) (*meta.Bean, error) {
	qualifiers = meta.Normalize(qualifiers)
	matching := r.Candidates(requested, qualifiers)
	if len(matching) == 0 {
		return nil, meta.UnsatisfiedError{
			Requested:  requested,
			Qualifiers: qualifiers,
			Available:  r.availableFor(),
		}
	}

	var alternatives, regular []*meta.Bean
	for _, b := range matching {
		if b.Alternative {
			alternatives = append(alternatives, b)
		} else {
			regular = append(regular, b)
		}
	}

	if len(alternatives) > 0 {
		sort.SliceStable(alternatives, func(i, j int) bool {
			return alternatives[i].EffectivePriority() > alternatives[j].EffectivePriority()
		})
		if len(alternatives) > 1 && alternatives[0].EffectivePriority() == alternatives[1].EffectivePriority() {
			return nil, ambiguous(requested, qualifiers, alternatives)
		}
		return alternatives[0], nil
	}

	if len(regular) > 1 {
		return nil, ambiguous(requested, qualifiers, regular)
	}
	return regular[0], nil
}

func ambiguous(requested reflect.Type, qualifiers meta.Qualifiers, beans []*meta.Bean) error {
	types := make([]reflect.Type, len(beans))
	for i, b := range beans {
		types[i] = b.InstanceType
	}
	return meta.AmbiguousError{Requested: requested, Qualifiers: qualifiers, Candidates: types}
}

// availableFor lists every registered bean class, feeding the unsatisfied
// diagnostic.
func (r *Resolver) availableFor() []reflect.Type {
	var out []reflect.Type
	for _, b := range r.store.Beans() {
		out = append(out, b.Class)
	}
	return out
}

// ResolveType resolves one contextual instance for the requested type.
func (r *Resolver) ResolveType(ctx context.Context, requested reflect.Type, qualifiers meta.Qualifiers) (any, error) {
	return r.resolve(ctx, requested, qualifiers, nil)
}

func (r *Resolver) resolve(ctx context.Context, requested reflect.Type, qualifiers meta.Qualifiers, parent *meta.InjectionPoint) (any, error) {
	if err := typematch.ValidInjectionTarget(requested); err != nil {
		return nil, fmt.Errorf("cannot resolve %s: %w", meta.FormatType(requested), err)
	}
	bean, err := r.selectBean(requested, qualifiers)
	if err != nil {
		return nil, err
	}
	return r.instanceOf(ctx, bean, parent)
}

// ResolveAll resolves an instance of every matching enabled bean.
func (r *Resolver) ResolveAll(ctx context.Context, requested reflect.Type, qualifiers meta.Qualifiers) ([]any, error) {
	if err := typematch.ValidInjectionTarget(requested); err != nil {
		return nil, fmt.Errorf("cannot resolve %s: %w", meta.FormatType(requested), err)
	}
	beans := r.Candidates(requested, qualifiers)
	out := make([]any, 0, len(beans))
	for _, b := range beans {
		v, err := r.instanceOf(ctx, b, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// instanceOf routes a selected bean through its scope context.
func (r *Resolver) instanceOf(ctx context.Context, bean *meta.Bean, parent *meta.InjectionPoint) (any, error) {
	sc, ok := r.scopes.Lookup(bean.Scope)
	if !ok {
		return nil, fmt.Errorf("%w: %s declares scope %q", meta.ErrScopeMissing, bean, bean.Scope)
	}
	if !sc.Active(ctx) {
		return nil, meta.ContextNotActiveError{Scope: bean.Scope}
	}
	return sc.Get(ctx, bean.ID, r.factory(ctx, bean, parent))
}

func (r *Resolver) factory(ctx context.Context, bean *meta.Bean, parent *meta.InjectionPoint) scopes.Factory {
	return func() (scopes.Result, error) {
		if bean.Producer != nil {
			// The declaring host is captured at production time: at
			// disposal the host's own scope may already be draining and
			// could not serve a fresh lookup.
			value, host, err := r.produce(ctx, bean, parent)
			if err != nil {
				return scopes.Result{}, err
			}
			return scopes.Result{
				Value:     value,
				StableKey: StableKey(bean),
				Destroy:   func(v any) error { return r.dispose(bean, host, v) },
			}, nil
		}

		value, err := r.construct(ctx, bean, parent)
		if err != nil {
			return scopes.Result{}, err
		}
		return scopes.Result{
			Value:        value,
			StableKey:    StableKey(bean),
			Destroy:      func(v any) error { return r.destroy(bean, v) },
			PrePassivate: r.passivateHook(bean),
		}, nil
	}
}

// InstanceFor materializes an instance by bean identity, used for observer
// hosts and producer declaring beans.
func (r *Resolver) InstanceFor(ctx context.Context, id meta.BeanID) (any, error) {
	bean := r.store.Bean(id)
	if bean == nil {
		return nil, fmt.Errorf("%w: unknown bean %s", meta.ErrNoCandidate, id)
	}
	return r.instanceOf(ctx, bean, nil)
}

// LiveInstanceFor returns an existing contextual instance without creating
// one.
func (r *Resolver) LiveInstanceFor(ctx context.Context, id meta.BeanID) (any, bool) {
	bean := r.store.Bean(id)
	if bean == nil {
		return nil, false
	}
	sc, ok := r.scopes.Lookup(bean.Scope)
	if !ok || !sc.Active(ctx) {
		return nil, false
	}
	return sc.GetIfExists(ctx, bean.ID)
}

// ResolvePoint satisfies one injection point: container-provided types bind
// to the runtime, everything else resolves against the bean set.
func (r *Resolver) ResolvePoint(ctx context.Context, point meta.InjectionPoint) (any, error) {
	return r.resolvePoint(ctx, point, nil)
}

func (r *Resolver) resolvePoint(ctx context.Context, point meta.InjectionPoint, parent *meta.InjectionPoint) (any, error) {
	if point.Type == injectionPointType {
		if parent == nil {
			return nil, meta.InjectionError{
				Class: point.Owner,
				Point: point.String(),
				Cause: fmt.Errorf("injection point metadata is only available to beans reached through another injection point"),
			}
		}
		return *parent, nil
	}
	if provided, ok, err := r.bindProvided(point); ok || err != nil {
		return provided, err
	}
	v, err := r.resolve(ctx, point.Type, point.Qualifiers, &point)
	if err != nil {
		return nil, meta.InjectionError{Class: point.Owner, Point: point.String(), Cause: err}
	}
	return v, nil
}

// bindProvided constructs container-provided injectables (event sinks,
// deferred references, programmatic lookups) declared via the Binder
// contract.
func (r *Resolver) bindProvided(point meta.InjectionPoint) (any, bool, error) {
	t := point.Type
	if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct && t.Implements(binderType) {
		v := reflect.New(t.Elem())
		v.Interface().(Binder).BindRuntime(r, point)
		return v.Interface(), true, nil
	}
	if t.Kind() == reflect.Struct && reflect.PointerTo(t).Implements(binderType) {
		v := reflect.New(t)
		v.Interface().(Binder).BindRuntime(r, point)
		return v.Elem().Interface(), true, nil
	}
	return nil, false, nil
}

// Fire delivers an event through the bus.
func (r *Resolver) Fire(ctx context.Context, payload any, qualifiers meta.Qualifiers) error {
	if r.bus == nil {
		return fmt.Errorf("event bus is not wired")
	}
	return r.bus.Fire(ctx, payload, qualifiers)
}

// FireAsync delivers an event asynchronously through the bus.
func (r *Resolver) FireAsync(ctx context.Context, payload any, qualifiers meta.Qualifiers) <-chan error {
	if r.bus == nil {
		done := make(chan error, 1)
		done <- fmt.Errorf("event bus is not wired")
		return done
	}
	return r.bus.FireAsync(ctx, payload, qualifiers)
}

// Reassociate maps a passivated stable key back onto the deployed bean set.
// Session activation drops entries this method cannot place.
func (r *Resolver) Reassociate(stableKey string) (meta.BeanID, reflect.Type, func(any) error, func(any) error, bool) {
	for _, b := range r.store.Beans() {
		if !b.Resolvable() || StableKey(b) != stableKey {
			continue
		}
		bean := b
		postActivate := func(v any) error { return r.runCallbacks(bean, v, bean.PostActivates) }
		destroy := func(v any) error {
			if bean.Producer != nil {
				return nil
			}
			return r.destroy(bean, v)
		}
		return bean.ID, bean.InstanceType, postActivate, destroy, true
	}
	return "", nil, nil, nil, false
}
