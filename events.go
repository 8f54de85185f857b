package gocdi

import (
	"context"

	"github.com/gocdi/gocdi/internal/events"
	"github.com/gocdi/gocdi/internal/meta"
	"github.com/gocdi/gocdi/internal/resolver"
)

// Event is a typed sink for firing events from inside a bean. The payload
// type constrains the observer set at the type level and the injection
// point's qualifiers travel with every fire.
//
//	type Checkout struct {
//	    Placed gocdi.Event[OrderPlaced] `inject:""`
//	}
//
//	func (c *Checkout) Submit(ctx context.Context, o OrderPlaced) error {
//	    return c.Placed.Fire(ctx, o)
//	}
type Event[T any] struct {
	rt         resolver.Runtime
	qualifiers meta.Qualifiers
}

// BindRuntime is called by the resolver when the sink is injected.
func (e *Event[T]) BindRuntime(rt resolver.Runtime, point meta.InjectionPoint) {
	e.rt = rt
	e.qualifiers = point.Qualifiers
}

// Fire delivers the payload synchronously to all matching synchronous
// observers, in priority order, stopping at the first failure.
func (e *Event[T]) Fire(ctx context.Context, payload T, qualifiers ...Qualifier) error {
	return e.rt.Fire(ctx, payload, e.merged(qualifiers))
}

// FireAsync schedules delivery to asynchronous observers and returns a
// channel that yields exactly one value: the first failure, or nil.
func (e *Event[T]) FireAsync(ctx context.Context, payload T, qualifiers ...Qualifier) <-chan error {
	return e.rt.FireAsync(ctx, payload, e.merged(qualifiers))
}

func (e *Event[T]) merged(extra []Qualifier) meta.Qualifiers {
	if len(extra) == 0 {
		return e.qualifiers
	}
	return append(append(meta.Qualifiers(nil), e.qualifiers...), extra...)
}

// TransactionCoordinator receives the deferred delivery callbacks for
// phase-bound observers.
type TransactionCoordinator = events.TransactionCoordinator

// Coordinator is an in-memory transaction coordinator. Attach it to the
// context with WithCoordinator, fire events during the unit of work, then
// call Complete to release the phase-bound observers.
type Coordinator = events.Coordinator

// NewCoordinator creates a coordinator with no registered callbacks.
func NewCoordinator() *Coordinator { return events.NewCoordinator() }

// WithCoordinator attaches a transaction coordinator to the context so
// phase-bound observers of events fired under it defer until completion.
func WithCoordinator(ctx context.Context, c TransactionCoordinator) context.Context {
	return events.WithCoordinator(ctx, c)
}
