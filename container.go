package gocdi

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gocdi/gocdi/internal/events"
	"github.com/gocdi/gocdi/internal/graph"
	"github.com/gocdi/gocdi/internal/meta"
	"github.com/gocdi/gocdi/internal/resolver"
	"github.com/gocdi/gocdi/internal/scopes"
	"github.com/gocdi/gocdi/internal/validate"
	"github.com/gocdi/gocdi/passivation"
)

// Container lifecycle states.
const (
	stateCollecting int32 = iota
	stateBuilding
	stateReady
	stateShutDown
)

// Initialized is fired on the container's own bus once deployment has
// succeeded and resolution is open.
type Initialized struct {
	ContainerID string
}

// BeforeShutdown is fired synchronously before the scope contexts are torn
// down.
type BeforeShutdown struct {
	ContainerID string
}

// Container is the facade over discovery, validation, resolution, events
// and scope management. Create one with New, register components, then
// Build it; a built container serves resolutions until Shutdown.
type Container struct {
	id     string
	cfg    Config
	logger *zap.Logger

	mu          sync.Mutex
	defs        []*ComponentDef
	stereotypes map[string]Stereotype
	state       int32

	store    *meta.Store
	registry *scopes.Registry
	resolver *resolver.Resolver
	bus      *events.Bus
	session  *scopes.SessionContext
	blobs    passivation.Store
	executor events.Executor
}

// Option configures a container at creation.
type Option func(*Container)

// WithLogger installs a structured logger. The default discards logs.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) { c.logger = logger }
}

// WithConfig installs a deployment configuration.
func WithConfig(cfg Config) Option {
	return func(c *Container) { c.cfg = cfg }
}

// WithPassivationStore overrides the session passivation store selected by
// the configuration.
func WithPassivationStore(store passivation.Store) Option {
	return func(c *Container) { c.blobs = store }
}

// WithExecutor installs the scheduler for asynchronous event delivery. The
// default spawns one goroutine per fire.
func WithExecutor(executor func(func())) Option {
	return func(c *Container) { c.executor = executor }
}

// New creates an empty container in the collecting state.
func New(opts ...Option) *Container {
	c := &Container{
		id:          uuid.NewString(),
		logger:      zap.NewNop(),
		stereotypes: make(map[string]Stereotype),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the container's unique identifier.
func (c *Container) ID() string { return c.id }

// Stereotype looks up a stereotype registered through AddStereotype.
func (c *Container) Stereotype(name string) (Stereotype, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.stereotypes[name]
	return st, ok
}

// Add registers component definitions. Only legal before Build.
func (c *Container) Add(defs ...*ComponentDef) error {
	if atomic.LoadInt32(&c.state) != stateCollecting {
		return fmt.Errorf("cannot add components after build")
	}
	c.mu.Lock()
	c.defs = append(c.defs, defs...)
	c.mu.Unlock()
	return nil
}

// Apply runs module registrations against the container.
func (c *Container) Apply(modules ...ModuleOption) error {
	for _, m := range modules {
		if m == nil {
			continue
		}
		if err := m(c); err != nil {
			return err
		}
	}
	return nil
}

// Build validates every registered definition and opens the container for
// resolution. Deployment is atomic: any definition problem fails the build
// and the returned DeploymentError enumerates all of them.
func (c *Container) Build(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.state, stateCollecting, stateBuilding) {
		return fmt.Errorf("container has already been built")
	}

	c.store = meta.NewStore()
	validator := validate.New(c.store, c.cfg.validatorConfig())

	// Mixins must be known before the components embedding them.
	c.mu.Lock()
	defs := append([]*ComponentDef(nil), c.defs...)
	c.mu.Unlock()
	var components []*ComponentDef
	for _, def := range defs {
		if def != nil && def.Mixin {
			validator.Validate(def)
			continue
		}
		components = append(components, def)
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, def := range components {
		def := def
		g.Go(func() error {
			validator.Validate(def)
			return nil
		})
	}
	_ = g.Wait()
	c.store.Seal()

	for _, warning := range c.store.Warnings() {
		c.logger.Warn("discovery", zap.String("detail", warning))
	}
	c.registerScopes()
	if errs := c.deploymentErrors(); len(errs) > 0 {
		atomic.StoreInt32(&c.state, stateShutDown)
		return meta.DeploymentError{Errors: errs}
	}

	if err := c.wire(); err != nil {
		atomic.StoreInt32(&c.state, stateShutDown)
		return err
	}

	atomic.StoreInt32(&c.state, stateReady)
	registerContainer(c)
	c.logger.Info("container ready",
		zap.String("container", c.id),
		zap.Int("beans", len(c.store.Beans())))

	if err := c.Fire(ctx, Initialized{ContainerID: c.id}); err != nil {
		c.logger.Warn("initialization observer failed", zap.Error(err))
	}
	return nil
}

// deploymentErrors collects the accumulated definition problems plus the
// graph-level ones: dependency cycles, which would deadlock instance
// creation at runtime, and direct injections of deferred-scope beans into
// beans of another scope, which would pin one activation's instance.
func (c *Container) deploymentErrors() []error {
	errs := append([]error(nil), c.store.Errors()...)
	g := graph.Build(c.store.Beans(), resolver.Provided)
	errs = append(errs, g.Cycles()...)
	return append(errs, g.ScopeLeaks(c.registry.IsDeferred)...)
}

// GraphDOT renders the deployed dependency graph in Graphviz dot format.
func (c *Container) GraphDOT() string {
	if c.store == nil {
		return ""
	}
	return graph.Build(c.store.Beans(), resolver.Provided).DOT()
}

// registerScopes installs the built-in scope contexts. Session is the one
// deferred scope: its instances are only handed out through re-resolving
// references across scope boundaries.
func (c *Container) registerScopes() {
	c.registry = scopes.NewRegistry()
	c.registry.Register(scopes.NewSingletonContext(c.logger), false)
	c.registry.Register(scopes.NewDependentContext(c.logger), false)
	c.session = scopes.NewSessionContext(c.logger)
	c.registry.Register(c.session, true)
}

func (c *Container) wire() error {
	if c.blobs == nil {
		var err error
		c.blobs, err = c.cfg.Session.store()
		if err != nil {
			return err
		}
	}

	c.resolver = resolver.New(c.store, c.registry, c.logger)
	c.bus = events.NewBus(c.store, c.resolver, c.executor, c.logger)
	c.resolver.SetBus(c.bus)
	return nil
}

// store builds the passivation store the configuration names.
func (s SessionConfig) store() (passivation.Store, error) {
	switch s.Store {
	case "", "memory":
		return passivation.NewMemoryStore(), nil
	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    s.Redis.Addrs,
			Username: s.Redis.Username,
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
		})
		var opts []passivation.RedisOption
		if s.Redis.Prefix != "" {
			opts = append(opts, passivation.WithKeyPrefix(s.Redis.Prefix))
		}
		if s.Redis.TTL > 0 {
			opts = append(opts, passivation.WithTTL(s.Redis.TTL))
		}
		return passivation.NewRedisStore(client, opts...), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", s.Store)
	}
}

func (c *Container) ready() error {
	switch atomic.LoadInt32(&c.state) {
	case stateReady:
		return nil
	case stateShutDown:
		return ErrShutDown
	default:
		return fmt.Errorf("container has not been built")
	}
}

// ResolveType resolves one contextual instance for the requested type.
// Most callers use the generic Resolve helper instead.
func (c *Container) ResolveType(ctx context.Context, requested reflect.Type, qualifiers ...Qualifier) (any, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.resolver.ResolveType(ctx, requested, qualifiers)
}

// ResolveAllType resolves one instance of every matching enabled bean.
func (c *Container) ResolveAllType(ctx context.Context, requested reflect.Type, qualifiers ...Qualifier) ([]any, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.resolver.ResolveAll(ctx, requested, qualifiers)
}

// Fire delivers an event synchronously to matching observers.
func (c *Container) Fire(ctx context.Context, payload any, qualifiers ...Qualifier) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.bus.Fire(ctx, payload, qualifiers)
}

// FireAsync delivers an event to asynchronous observers on the executor.
func (c *Container) FireAsync(ctx context.Context, payload any, qualifiers ...Qualifier) <-chan error {
	done := make(chan error, 1)
	if err := c.ready(); err != nil {
		done <- err
		return done
	}
	return c.bus.FireAsync(ctx, payload, qualifiers)
}

// BindSession installs a container-level current session for callers that
// cannot thread a context token. Prefer WithSession.
func (c *Container) BindSession(id string) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.session.Bind(id)
	return nil
}

// UnbindSession clears the container-level current session.
func (c *Container) UnbindSession() error {
	if err := c.ready(); err != nil {
		return err
	}
	c.session.Unbind()
	return nil
}

// InvalidateSession destroys one session's instances. Other sessions are
// untouched.
func (c *Container) InvalidateSession(id string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.session.Invalidate(id)
}

// PassivateSession serializes one session's instance set to the
// passivation store and releases it from memory.
func (c *Container) PassivateSession(ctx context.Context, id string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.session.Passivate(ctx, id, c.blobs)
}

// ActivateSession restores a passivated session under its original
// identifier, re-associating each entry with the currently deployed beans.
// Entries whose bean class is no longer deployed are dropped with a
// warning.
func (c *Container) ActivateSession(ctx context.Context, id string) error {
	return c.ActivateSessionAs(ctx, id, id)
}

// ActivateSessionAs restores the session passivated under fromID as the
// session asID, so state can survive a restart even when the new process
// issues fresh session identifiers.
func (c *Container) ActivateSessionAs(ctx context.Context, fromID, asID string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.session.Activate(ctx, fromID, asID, c.blobs, c.resolver)
}

// Shutdown fires BeforeShutdown, then tears every scope context down.
// Singleton disposal runs last, in reverse creation order within the
// context. Idempotent.
func (c *Container) Shutdown(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.state, stateReady, stateShutDown) {
		return nil
	}
	if err := c.bus.Fire(ctx, BeforeShutdown{ContainerID: c.id}, nil); err != nil {
		c.logger.Warn("shutdown observer failed", zap.Error(err))
	}

	errs := c.registry.DestroyAll()
	unregisterContainer(c.id)
	c.logger.Info("container shut down", zap.String("container", c.id))
	if len(errs) > 0 {
		return meta.DisposalError{Errors: errs}
	}
	return nil
}

// Beans returns the deployed bean descriptors, for diagnostics.
func (c *Container) Beans() []*meta.Bean {
	if c.store == nil {
		return nil
	}
	return c.store.Beans()
}

// containers tracks live built containers so deferred references restored
// from passivated state can re-bind after a restart.
var (
	containersMu sync.RWMutex
	containers   = make(map[string]*Container)
	lastBuilt    atomic.Pointer[Container]
)

func registerContainer(c *Container) {
	containersMu.Lock()
	containers[c.id] = c
	containersMu.Unlock()
	lastBuilt.Store(c)
}

func unregisterContainer(id string) {
	containersMu.Lock()
	delete(containers, id)
	containersMu.Unlock()
}

// currentContainer returns the most recently built live container, used by
// deserialized references that lost their binding.
func currentContainer() *Container {
	if c := lastBuilt.Load(); c != nil && atomic.LoadInt32(&c.state) == stateReady {
		return c
	}
	containersMu.RLock()
	defer containersMu.RUnlock()
	for _, c := range containers {
		if atomic.LoadInt32(&c.state) == stateReady {
			return c
		}
	}
	return nil
}
