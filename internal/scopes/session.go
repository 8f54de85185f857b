package scopes

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/gocdi/gocdi/internal/meta"
	"github.com/gocdi/gocdi/passivation"
)

type sessionKey struct{}

// WithSession binds a session identifier to the call context. Resolution of
// session-scoped beans uses this token; callers that cannot thread a
// context may use the convenience Bind/Unbind adapter instead.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionFrom extracts the bound session identifier, if any.
func SessionFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionKey{}).(string)
	return id, ok && id != ""
}

// Reassociator re-associates passivated state with the descriptors of the
// live container. Best effort: a stable key with no current descriptor
// reports ok=false and the entry is dropped.
type Reassociator interface {
	Reassociate(stableKey string) (bean meta.BeanID, instanceType reflect.Type, postActivate func(any) error, destroy func(any) error, ok bool)
}

// SessionContext caches instances per logical session. Partitions are keyed
// by an externally supplied session identifier; each partition has its own
// creation-once cache, its own invalidation and optional passivation.
type SessionContext struct {
	mu         sync.Mutex
	partitions map[string]*partition

	// bound is the convenience current-session binding for callers that
	// cannot thread a context token. Binding hygiene is the caller's
	// responsibility: an unbalanced Bind leaks the identifier into later
	// work on the same container.
	bound string

	destroyed int32
	logger    *zap.Logger
}

type partition struct {
	mu    sync.Mutex
	cache *cache
}

// NewSessionContext creates a session context with no active partitions.
func NewSessionContext(logger *zap.Logger) *SessionContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionContext{partitions: make(map[string]*partition), logger: logger}
}

func (s *SessionContext) Scope() meta.ScopeID { return meta.Session }

// Bind installs the convenience current-session binding.
func (s *SessionContext) Bind(id string) {
	s.mu.Lock()
	s.bound = id
	s.mu.Unlock()
}

// Unbind clears the convenience binding.
func (s *SessionContext) Unbind() {
	s.mu.Lock()
	s.bound = ""
	s.mu.Unlock()
}

func (s *SessionContext) current(ctx context.Context) (string, bool) {
	if id, ok := SessionFrom(ctx); ok {
		return id, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound != "" {
		return s.bound, true
	}
	return "", false
}

func (s *SessionContext) Active(ctx context.Context) bool {
	if atomic.LoadInt32(&s.destroyed) != 0 {
		return false
	}
	_, ok := s.current(ctx)
	return ok
}

func (s *SessionContext) partition(id string) *partition {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partitions[id]
	if !ok {
		p = &partition{cache: newCache()}
		s.partitions[id] = p
	}
	return p
}

func (s *SessionContext) Get(ctx context.Context, bean meta.BeanID, factory Factory) (any, error) {
	if atomic.LoadInt32(&s.destroyed) != 0 {
		return nil, ErrDestroyed
	}
	id, ok := s.current(ctx)
	if !ok {
		return nil, meta.ContextNotActiveError{Scope: meta.Session}
	}
	return s.partition(id).get(bean, factory)
}

func (p *partition) get(bean meta.BeanID, factory Factory) (any, error) {
	return p.cache.get(&p.mu, bean, factory)
}

func (s *SessionContext) GetIfExists(ctx context.Context, bean meta.BeanID) (any, bool) {
	if atomic.LoadInt32(&s.destroyed) != 0 {
		return nil, false
	}
	id, ok := s.current(ctx)
	if !ok {
		return nil, false
	}
	p := s.partition(id)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache.getIfExists(bean)
}

// Invalidate destroys one session's partition only; other sessions keep
// their cached instances.
func (s *SessionContext) Invalidate(id string) error {
	s.mu.Lock()
	p, ok := s.partitions[id]
	delete(s.partitions, id)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	p.mu.Lock()
	entries := p.cache.drain()
	p.mu.Unlock()

	errs := destroyEntries(entries)
	for _, err := range errs {
		s.logger.Warn("session disposal failed", zap.String("session", id), zap.Error(err))
	}
	if len(errs) > 0 {
		return meta.DisposalError{Scope: meta.Session, Errors: errs}
	}
	return nil
}

func (s *SessionContext) Destroy() error {
	if !atomic.CompareAndSwapInt32(&s.destroyed, 0, 1) {
		return nil
	}
	s.mu.Lock()
	partitions := s.partitions
	s.partitions = make(map[string]*partition)
	s.bound = ""
	s.mu.Unlock()

	var errs []error
	for id, p := range partitions {
		p.mu.Lock()
		entries := p.cache.drain()
		p.mu.Unlock()
		for _, err := range destroyEntries(entries) {
			s.logger.Warn("session disposal failed", zap.String("session", id), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return meta.DisposalError{Scope: meta.Session, Errors: errs}
	}
	return nil
}

// passivatedSession is the wire shape of one serialized session partition.
// Entries are keyed by the bean's stable key so restore can re-associate
// them with a freshly deployed container.
type passivatedSession struct {
	Entries []passivatedEntry
}

type passivatedEntry struct {
	StableKey string
	Data      []byte
}

// Passivate serializes one session's instance map to the store and removes
// the partition from memory without destroying the instances. Each
// instance's pre-passivation hook runs before serialization.
func (s *SessionContext) Passivate(ctx context.Context, id string, store passivation.Store) error {
	if atomic.LoadInt32(&s.destroyed) != 0 {
		return ErrDestroyed
	}
	s.mu.Lock()
	p, ok := s.partitions[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s has no state to passivate", id)
	}

	// The partition stays live until the blob is stored: a failing hook,
	// codec or store must not lose the instances.
	p.mu.Lock()
	entries := p.cache.settled()
	p.mu.Unlock()

	snapshot := passivatedSession{}
	for _, e := range entries {
		if e.result.PrePassivate != nil {
			if err := e.result.PrePassivate(e.result.Value); err != nil {
				return fmt.Errorf("pre-passivate failed for %s: %w", e.result.StableKey, err)
			}
		}
		data, err := encodeInstance(e.result.Value)
		if err != nil {
			return fmt.Errorf("cannot passivate %s: %w", e.result.StableKey, err)
		}
		snapshot.Entries = append(snapshot.Entries, passivatedEntry{
			StableKey: e.result.StableKey,
			Data:      data,
		})
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snapshot); err != nil {
		return fmt.Errorf("cannot encode session %s: %w", id, err)
	}
	if err := store.Save(ctx, id, buf.Bytes()); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.partitions, id)
	s.mu.Unlock()
	return nil
}

// Activate restores the session passivated under fromID as the session
// asID; the two identifiers may be equal. Each restored instance's
// post-activation hook runs exactly once. Entries whose bean class is no
// longer present in the container are dropped with a warning; the rest of
// the restore succeeds.
func (s *SessionContext) Activate(ctx context.Context, fromID, asID string, store passivation.Store, re Reassociator) error {
	if atomic.LoadInt32(&s.destroyed) != 0 {
		return ErrDestroyed
	}
	blob, err := store.Load(ctx, fromID)
	if err != nil {
		return err
	}

	var snapshot passivatedSession
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&snapshot); err != nil {
		return fmt.Errorf("cannot decode session %s: %w", fromID, err)
	}

	p := s.partition(asID)
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pe := range snapshot.Entries {
		bean, instanceType, postActivate, destroy, ok := re.Reassociate(pe.StableKey)
		if !ok {
			s.logger.Warn("dropping passivated entry: bean no longer present",
				zap.String("session", asID), zap.String("bean", pe.StableKey))
			continue
		}
		value, err := decodeInstance(instanceType, pe.Data)
		if err != nil {
			return fmt.Errorf("cannot restore %s: %w", pe.StableKey, err)
		}
		if postActivate != nil {
			if err := postActivate(value); err != nil {
				return fmt.Errorf("post-activate failed for %s: %w", pe.StableKey, err)
			}
		}
		e := &entry{
			result: Result{Value: value, StableKey: pe.StableKey, Destroy: destroy},
			ready:  make(chan struct{}),
		}
		close(e.ready)
		p.cache.entries[bean] = e
		p.cache.order = append(p.cache.order, bean)
	}
	return nil
}

// encodeInstance serializes the struct value behind a bean instance
// pointer.
func encodeInstance(value any) ([]byte, error) {
	v := reflect.ValueOf(value)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("only struct beans are passivation capable, got %T", value)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).EncodeValue(v.Elem()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeInstance rebuilds an instance of the descriptor's type from its
// serialized state, so restore needs no global type registration.
func decodeInstance(instanceType reflect.Type, data []byte) (any, error) {
	if instanceType.Kind() != reflect.Pointer || instanceType.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("bean type %s is not passivation capable", instanceType)
	}
	v := reflect.New(instanceType.Elem())
	if err := gob.NewDecoder(bytes.NewReader(data)).DecodeValue(v.Elem()); err != nil {
		return nil, err
	}
	return v.Interface(), nil
}
