// Package events delivers fired payloads to the observer methods recorded
// in the metadata store.
package events

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/zap"

	"github.com/gocdi/gocdi/internal/meta"
)

// BeanSource supplies observer host instances and injected observer
// parameters. The resolver implements it; the indirection keeps delivery
// free of resolution internals.
type BeanSource interface {
	// InstanceFor returns the declaring bean's contextual instance,
	// creating it if the scope allows.
	InstanceFor(ctx context.Context, bean meta.BeanID) (any, error)

	// LiveInstanceFor returns the instance only if one already exists in
	// the declaring bean's scope context.
	LiveInstanceFor(ctx context.Context, bean meta.BeanID) (any, bool)

	// ResolvePoint satisfies one injected observer parameter.
	ResolvePoint(ctx context.Context, point meta.InjectionPoint) (any, error)
}

// Executor schedules asynchronous delivery work. The default spawns one
// goroutine per fire; callers may install a pooled executor instead.
type Executor func(fn func())

// Bus matches fired events against observer descriptors and invokes them
// in ascending priority order.
type Bus struct {
	store    *meta.Store
	source   BeanSource
	executor Executor
	logger   *zap.Logger
}

// NewBus wires a bus over the sealed metadata store.
func NewBus(store *meta.Store, source BeanSource, executor Executor, logger *zap.Logger) *Bus {
	if executor == nil {
		executor = func(fn func()) { go fn() }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{store: store, source: source, executor: executor, logger: logger}
}

// matching returns the observers selected by payload type and fired
// qualifiers, sorted by ascending priority with declaration order breaking
// ties.
func (b *Bus) matching(payload reflect.Type, fired meta.Qualifiers, async bool) []*meta.Observer {
	var out []*meta.Observer
	for _, o := range b.store.Observers() {
		if o.Async != async {
			continue
		}
		if o.Matches(payload, fired) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// Fire delivers the payload synchronously. Observers bound to a transaction
// phase are deferred to the coordinator when one is active; everything else
// runs inline, fail fast, in priority order.
func (b *Bus) Fire(ctx context.Context, payload any, qualifiers meta.Qualifiers) error {
	if payload == nil {
		return fmt.Errorf("cannot fire a nil event payload")
	}
	fired := meta.WithImplicit(qualifiers)
	coordinator := CoordinatorFrom(ctx)

	for _, o := range b.matching(reflect.TypeOf(payload), fired, false) {
		if o.Phase != meta.InProgress && coordinator != nil {
			b.deferToPhase(ctx, coordinator, o, payload)
			continue
		}
		if err := b.notify(ctx, o, payload); err != nil {
			return err
		}
	}
	return nil
}

// FireAsync delivers to asynchronous observers on the executor. Observers
// run sequentially in priority order; the first failure stops the rest and
// is reported on the returned channel, which always receives exactly one
// value.
func (b *Bus) FireAsync(ctx context.Context, payload any, qualifiers meta.Qualifiers) <-chan error {
	done := make(chan error, 1)
	if payload == nil {
		done <- fmt.Errorf("cannot fire a nil event payload")
		return done
	}
	fired := meta.WithImplicit(qualifiers)
	observers := b.matching(reflect.TypeOf(payload), fired, true)

	b.executor(func() {
		for _, o := range observers {
			if err := b.notify(ctx, o, payload); err != nil {
				b.logger.Warn("async observer failed",
					zap.String("observer", o.String()), zap.Error(err))
				done <- err
				return
			}
		}
		done <- nil
	})
	return done
}

// deferToPhase registers a phase-bound observer with the active coordinator. Its
// eventual failure is logged, never propagated into the firing code path or
// the transaction outcome.
func (b *Bus) deferToPhase(ctx context.Context, c TransactionCoordinator, o *meta.Observer, payload any) {
	c.RegisterSynchronization(o.Phase, func() {
		if err := b.notify(ctx, o, payload); err != nil {
			b.logger.Warn("transactional observer failed",
				zap.String("observer", o.String()),
				zap.String("phase", o.Phase.String()),
				zap.Error(err))
		}
	})
}

// notify resolves the declaring instance, the injected parameters, and
// invokes the observer method.
func (b *Bus) notify(ctx context.Context, o *meta.Observer, payload any) error {
	var host any
	if o.Reception == meta.IfExists {
		live, ok := b.source.LiveInstanceFor(ctx, o.DeclaringBean)
		if !ok {
			return nil
		}
		host = live
	} else {
		created, err := b.source.InstanceFor(ctx, o.DeclaringBean)
		if err != nil {
			return fmt.Errorf("cannot materialize %s: %w", o, err)
		}
		host = created
	}

	args := make([]reflect.Value, 0, 2+len(o.Params))
	args = append(args, reflect.ValueOf(host), reflect.ValueOf(payload))
	for _, p := range o.Params {
		v, err := b.source.ResolvePoint(ctx, p)
		if err != nil {
			return fmt.Errorf("cannot inject parameter %d of %s: %w", p.ParamIndex, o, err)
		}
		args = append(args, reflect.ValueOf(v))
	}

	out := o.Method.Func.Call(args)
	if len(out) == 1 && !out[0].IsNil() {
		return out[0].Interface().(error)
	}
	return nil
}
