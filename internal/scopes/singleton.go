package scopes

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/gocdi/gocdi/internal/meta"
)

// SingletonContext caches one instance per bean identity for the whole
// container lifetime. It is active from creation until the container shuts
// down.
type SingletonContext struct {
	mu        sync.Mutex
	cache     *cache
	destroyed int32
	logger    *zap.Logger
}

// NewSingletonContext creates an active singleton context.
func NewSingletonContext(logger *zap.Logger) *SingletonContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SingletonContext{cache: newCache(), logger: logger}
}

func (s *SingletonContext) Scope() meta.ScopeID { return meta.Singleton }

func (s *SingletonContext) Active(context.Context) bool {
	return atomic.LoadInt32(&s.destroyed) == 0
}

func (s *SingletonContext) Get(_ context.Context, bean meta.BeanID, factory Factory) (any, error) {
	if atomic.LoadInt32(&s.destroyed) != 0 {
		return nil, ErrDestroyed
	}
	return s.cache.get(&s.mu, bean, factory)
}

func (s *SingletonContext) GetIfExists(_ context.Context, bean meta.BeanID) (any, bool) {
	if atomic.LoadInt32(&s.destroyed) != 0 {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.getIfExists(bean)
}

func (s *SingletonContext) Destroy() error {
	if !atomic.CompareAndSwapInt32(&s.destroyed, 0, 1) {
		return nil
	}
	s.mu.Lock()
	entries := s.cache.drain()
	s.mu.Unlock()

	errs := destroyEntries(entries)
	for _, err := range errs {
		s.logger.Warn("singleton disposal failed", zap.Error(err))
	}
	if len(errs) > 0 {
		return meta.DisposalError{Scope: meta.Singleton, Errors: errs}
	}
	return nil
}
