package events

import (
	"context"
	"sync"

	"github.com/gocdi/gocdi/internal/meta"
)

// TransactionCoordinator receives deferred observer notifications and
// releases them when the transaction reaches the corresponding phase.
type TransactionCoordinator interface {
	RegisterSynchronization(phase meta.TxPhase, fn func())
}

type txnKey struct{}

// WithCoordinator attaches a coordinator to the call context. Events fired
// under this context defer their phase-bound observers to it.
func WithCoordinator(ctx context.Context, c TransactionCoordinator) context.Context {
	return context.WithValue(ctx, txnKey{}, c)
}

// CoordinatorFrom extracts the active coordinator, nil when none.
func CoordinatorFrom(ctx context.Context) TransactionCoordinator {
	c, _ := ctx.Value(txnKey{}).(TransactionCoordinator)
	return c
}

// Coordinator is an in-process TransactionCoordinator. Callers drive it
// explicitly: Complete(success) runs before-completion hooks, then the
// outcome phase, then after-completion.
type Coordinator struct {
	mu    sync.Mutex
	hooks map[meta.TxPhase][]func()
	done  bool
}

// NewCoordinator creates a coordinator with no registered hooks.
func NewCoordinator() *Coordinator {
	return &Coordinator{hooks: make(map[meta.TxPhase][]func())}
}

func (c *Coordinator) RegisterSynchronization(phase meta.TxPhase, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		// Registrations after completion deliver immediately, mirroring
		// delivery outside a transaction.
		c.mu.Unlock()
		fn()
		c.mu.Lock()
		return
	}
	c.hooks[phase] = append(c.hooks[phase], fn)
}

// Complete drives the completion phases in order. Idempotent.
func (c *Coordinator) Complete(success bool) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	hooks := c.hooks
	c.hooks = make(map[meta.TxPhase][]func())
	c.mu.Unlock()

	run := func(phase meta.TxPhase) {
		for _, fn := range hooks[phase] {
			fn()
		}
	}
	run(meta.BeforeCompletion)
	if success {
		run(meta.AfterSuccess)
	} else {
		run(meta.AfterFailure)
	}
	run(meta.AfterCompletion)
}
