package meta

import (
	"reflect"
	"sort"
	"sync"
)

// Store is the container's knowledge base: every bean, interceptor,
// decorator and observer descriptor discovered during validation, plus the
// accumulated definition and injection errors. Inserts happen concurrently
// during the discovery phase; after deployment validation the store is
// sealed and effectively read-only.
type Store struct {
	mu sync.RWMutex

	beans   []*Bean
	byID    map[BeanID]*Bean
	byClass map[reflect.Type][]*Bean

	interceptors []*Interceptor
	decorators   []*Decorator
	observers    []*Observer

	// mixins holds level-annotation defs keyed by class, consulted when
	// other components embed those classes.
	mixins map[reflect.Type]*ComponentDef

	errors   []error
	warnings []string

	sealed bool
}

// NewStore creates an empty knowledge base.
func NewStore() *Store {
	return &Store{
		byID:    make(map[BeanID]*Bean),
		byClass: make(map[reflect.Type][]*Bean),
		mixins:  make(map[reflect.Type]*ComponentDef),
	}
}

// AddBean registers a bean descriptor. Descriptors with validation errors
// are registered too, flagged, so resolution can report matching-but-unusable
// beans instead of silently dropping them.
func (s *Store) AddBean(b *Bean) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return
	}
	s.beans = append(s.beans, b)
	s.byID[b.ID] = b
	s.byClass[b.Class] = append(s.byClass[b.Class], b)
	for _, err := range b.Errors {
		s.errors = append(s.errors, err)
	}
}

// AddInterceptor registers an interceptor descriptor.
func (s *Store) AddInterceptor(i *Interceptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sealed {
		s.interceptors = append(s.interceptors, i)
	}
}

// AddDecorator registers a decorator descriptor.
func (s *Store) AddDecorator(d *Decorator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sealed {
		s.decorators = append(s.decorators, d)
	}
}

// AddObserver registers an observer descriptor.
func (s *Store) AddObserver(o *Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sealed {
		s.observers = append(s.observers, o)
	}
}

// AddMixin records a level-annotation def for an embeddable class.
func (s *Store) AddMixin(def *ComponentDef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sealed {
		s.mixins[def.Class] = def
	}
}

// Mixin returns the level-annotation def for a class, or nil.
func (s *Store) Mixin(class reflect.Type) *ComponentDef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mixins[class]
}

// AddError accumulates a discovery-time problem. Discovery never halts on
// errors; deployment does.
func (s *Store) AddError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errors = append(s.errors, err)
	}
}

// AddWarning accumulates a non-fatal observation.
func (s *Store) AddWarning(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, msg)
}

// Seal freezes the store after deployment validation.
func (s *Store) Seal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
}

// Beans returns every registered bean descriptor.
func (s *Store) Beans() []*Bean {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Bean, len(s.beans))
	copy(out, s.beans)
	return out
}

// Bean returns the descriptor with the given identity, or nil.
func (s *Store) Bean(id BeanID) *Bean {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

// BeansOf returns the descriptors declared by the given class.
func (s *Store) BeansOf(class reflect.Type) []*Bean {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Bean, len(s.byClass[class]))
	copy(out, s.byClass[class])
	return out
}

// Interceptors returns every interceptor, sorted by ascending priority.
func (s *Store) Interceptors() []*Interceptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Interceptor, len(s.interceptors))
	copy(out, s.interceptors)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// Decorators returns every decorator, sorted by ascending priority.
func (s *Store) Decorators() []*Decorator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Decorator, len(s.decorators))
	copy(out, s.decorators)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// Observers returns every observer descriptor.
func (s *Store) Observers() []*Observer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Observer, len(s.observers))
	copy(out, s.observers)
	return out
}

// Errors returns the accumulated definition and injection errors.
func (s *Store) Errors() []error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]error, len(s.errors))
	copy(out, s.errors)
	return out
}

// Warnings returns the accumulated warnings.
func (s *Store) Warnings() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.warnings))
	copy(out, s.warnings)
	return out
}

// Classes returns the distinct registered bean classes, for error
// suggestions.
func (s *Store) Classes() []reflect.Type {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]reflect.Type, 0, len(s.byClass))
	for t := range s.byClass {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
