package scopes

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/gocdi/gocdi/internal/meta"
)

// DependentContext is the pseudo-scope: every Get invokes the factory and
// the fresh instance belongs to whatever requested it. The context keeps
// only the disposal handles, released LIFO at container shutdown for
// instances whose owner never released them explicitly.
type DependentContext struct {
	mu        sync.Mutex
	pending   []Result
	destroyed int32
	logger    *zap.Logger
}

// NewDependentContext creates an active dependent context.
func NewDependentContext(logger *zap.Logger) *DependentContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DependentContext{logger: logger}
}

func (d *DependentContext) Scope() meta.ScopeID { return meta.Dependent }

func (d *DependentContext) Active(context.Context) bool {
	return atomic.LoadInt32(&d.destroyed) == 0
}

func (d *DependentContext) Get(_ context.Context, _ meta.BeanID, factory Factory) (any, error) {
	if atomic.LoadInt32(&d.destroyed) != 0 {
		return nil, ErrDestroyed
	}
	result, err := factory()
	if err != nil {
		return nil, err
	}
	if result.Destroy != nil {
		d.mu.Lock()
		d.pending = append(d.pending, result)
		d.mu.Unlock()
	}
	return result.Value, nil
}

// GetIfExists never finds anything: dependent instances are not shared.
func (d *DependentContext) GetIfExists(context.Context, meta.BeanID) (any, bool) {
	return nil, false
}

// Release destroys one dependent instance early, detaching it from the
// shutdown list.
func (d *DependentContext) Release(value any) error {
	d.mu.Lock()
	var target *Result
	for i := range d.pending {
		if d.pending[i].Value == value {
			target = &d.pending[i]
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
	if target == nil || target.Destroy == nil {
		return nil
	}
	return target.Destroy(target.Value)
}

func (d *DependentContext) Destroy() error {
	if !atomic.CompareAndSwapInt32(&d.destroyed, 0, 1) {
		return nil
	}
	d.mu.Lock()
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()

	var errs []error
	for i := len(pending) - 1; i >= 0; i-- {
		if err := pending[i].Destroy(pending[i].Value); err != nil {
			d.logger.Warn("dependent disposal failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return meta.DisposalError{Scope: meta.Dependent, Errors: errs}
	}
	return nil
}
