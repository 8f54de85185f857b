package events

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocdi/gocdi/internal/meta"
)

type orderPlaced struct {
	ID string
}

type notification interface {
	Subject() string
}

func (o *orderPlaced) Subject() string { return o.ID }

type auditLog struct {
	seen []string
	fail bool
}

func (a *auditLog) OnOrder(e *orderPlaced) error {
	if a.fail {
		return errors.New("audit backend down")
	}
	a.seen = append(a.seen, "audit:"+e.ID)
	return nil
}

func (a *auditLog) OnNotification(n notification) error {
	a.seen = append(a.seen, "any:"+n.Subject())
	return nil
}

type mailer struct {
	seen []string
}

func (m *mailer) OnOrder(e *orderPlaced) error {
	m.seen = append(m.seen, "mail:"+e.ID)
	return nil
}

type formatter struct{ prefix string }

type reporter struct {
	seen []string
}

func (r *reporter) OnOrder(e *orderPlaced, f *formatter) error {
	r.seen = append(r.seen, f.prefix+e.ID)
	return nil
}

type stubSource struct {
	instances    map[meta.BeanID]any
	live         map[meta.BeanID]any
	points       map[reflect.Type]any
	materialized map[meta.BeanID]int
}

func newStubSource() *stubSource {
	return &stubSource{
		instances:    make(map[meta.BeanID]any),
		live:         make(map[meta.BeanID]any),
		points:       make(map[reflect.Type]any),
		materialized: make(map[meta.BeanID]int),
	}
}

func (s *stubSource) InstanceFor(_ context.Context, bean meta.BeanID) (any, error) {
	inst, ok := s.instances[bean]
	if !ok {
		return nil, errors.New("no such bean")
	}
	s.materialized[bean]++
	return inst, nil
}

func (s *stubSource) LiveInstanceFor(_ context.Context, bean meta.BeanID) (any, bool) {
	inst, ok := s.live[bean]
	return inst, ok
}

func (s *stubSource) ResolvePoint(_ context.Context, point meta.InjectionPoint) (any, error) {
	v, ok := s.points[point.Type]
	if !ok {
		return nil, errors.New("unresolvable parameter")
	}
	return v, nil
}

func observerFor(host any, method string, eventType reflect.Type) (*meta.Observer, meta.BeanID) {
	t := reflect.TypeOf(host)
	m, ok := t.MethodByName(method)
	if !ok {
		panic("no method " + method)
	}
	id := meta.NewBeanID(t.Elem(), "")
	return &meta.Observer{
		DeclaringBean:  id,
		DeclaringClass: t.Elem(),
		Method:         m,
		EventType:      eventType,
	}, id
}

func orderType() reflect.Type { return reflect.TypeOf(&orderPlaced{}) }

func TestFireDeliversInPriorityOrder(t *testing.T) {
	store := meta.NewStore()
	source := newStubSource()

	audit := &auditLog{}
	mail := &mailer{}
	auditObs, auditID := observerFor(audit, "OnOrder", orderType())
	auditObs.Priority = 200
	mailObs, mailID := observerFor(mail, "OnOrder", orderType())
	mailObs.Priority = 100
	store.AddObserver(auditObs)
	store.AddObserver(mailObs)
	source.instances[auditID] = audit
	source.instances[mailID] = mail

	bus := NewBus(store, source, nil, nil)
	require.NoError(t, bus.Fire(context.Background(), &orderPlaced{ID: "o-1"}, nil))

	assert.Equal(t, []string{"mail:o-1"}, mail.seen, "lower priority delivers first")
	assert.Equal(t, []string{"audit:o-1"}, audit.seen)
}

func TestFireFiltersByQualifier(t *testing.T) {
	store := meta.NewStore()
	source := newStubSource()

	audit := &auditLog{}
	obs, id := observerFor(audit, "OnOrder", orderType())
	obs.Qualifiers = meta.Qualifiers{meta.Named("priority")}
	store.AddObserver(obs)
	source.instances[id] = audit

	bus := NewBus(store, source, nil, nil)
	require.NoError(t, bus.Fire(context.Background(), &orderPlaced{ID: "plain"}, nil))
	assert.Empty(t, audit.seen)

	require.NoError(t, bus.Fire(context.Background(), &orderPlaced{ID: "urgent"},
		meta.Qualifiers{meta.Named("priority")}))
	assert.Equal(t, []string{"audit:urgent"}, audit.seen)
}

func TestFireMatchesInterfaceEventTypes(t *testing.T) {
	store := meta.NewStore()
	source := newStubSource()

	audit := &auditLog{}
	obs, id := observerFor(audit, "OnNotification", reflect.TypeOf((*notification)(nil)).Elem())
	store.AddObserver(obs)
	source.instances[id] = audit

	bus := NewBus(store, source, nil, nil)
	require.NoError(t, bus.Fire(context.Background(), &orderPlaced{ID: "o-9"}, nil))
	assert.Equal(t, []string{"any:o-9"}, audit.seen)
}

func TestFireIfExistsSkipsWithoutLiveInstance(t *testing.T) {
	store := meta.NewStore()
	source := newStubSource()

	audit := &auditLog{}
	obs, id := observerFor(audit, "OnOrder", orderType())
	obs.Reception = meta.IfExists
	store.AddObserver(obs)
	source.instances[id] = audit

	bus := NewBus(store, source, nil, nil)
	require.NoError(t, bus.Fire(context.Background(), &orderPlaced{ID: "o-1"}, nil))
	assert.Empty(t, audit.seen)
	assert.Zero(t, source.materialized[id], "IfExists must not instantiate the declaring bean")

	source.live[id] = audit
	require.NoError(t, bus.Fire(context.Background(), &orderPlaced{ID: "o-2"}, nil))
	assert.Equal(t, []string{"audit:o-2"}, audit.seen)
}

func TestFireFailsFast(t *testing.T) {
	store := meta.NewStore()
	source := newStubSource()

	failing := &auditLog{fail: true}
	mail := &mailer{}
	failObs, failID := observerFor(failing, "OnOrder", orderType())
	failObs.Priority = 1
	mailObs, mailID := observerFor(mail, "OnOrder", orderType())
	mailObs.Priority = 2
	store.AddObserver(failObs)
	store.AddObserver(mailObs)
	source.instances[failID] = failing
	source.instances[mailID] = mail

	bus := NewBus(store, source, nil, nil)
	err := bus.Fire(context.Background(), &orderPlaced{ID: "o-1"}, nil)
	require.Error(t, err)
	assert.Empty(t, mail.seen, "later observers are not notified after a failure")
}

func TestFireInjectsObserverParameters(t *testing.T) {
	store := meta.NewStore()
	source := newStubSource()

	rep := &reporter{}
	obs, id := observerFor(rep, "OnOrder", orderType())
	obs.Params = []meta.InjectionPoint{{
		Kind:       meta.ParameterPoint,
		Type:       reflect.TypeOf(&formatter{}),
		ParamIndex: 2,
	}}
	store.AddObserver(obs)
	source.instances[id] = rep
	source.points[reflect.TypeOf(&formatter{})] = &formatter{prefix: ">> "}

	bus := NewBus(store, source, nil, nil)
	require.NoError(t, bus.Fire(context.Background(), &orderPlaced{ID: "o-3"}, nil))
	assert.Equal(t, []string{">> o-3"}, rep.seen)
}

func TestFireAsyncUsesExecutor(t *testing.T) {
	store := meta.NewStore()
	source := newStubSource()

	audit := &auditLog{}
	obs, id := observerFor(audit, "OnOrder", orderType())
	obs.Async = true
	store.AddObserver(obs)
	source.instances[id] = audit

	scheduled := 0
	inline := func(fn func()) {
		scheduled++
		fn()
	}
	bus := NewBus(store, source, inline, nil)

	// A synchronous fire never reaches async observers.
	require.NoError(t, bus.Fire(context.Background(), &orderPlaced{ID: "sync"}, nil))
	assert.Empty(t, audit.seen)

	err := <-bus.FireAsync(context.Background(), &orderPlaced{ID: "async"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, scheduled)
	assert.Equal(t, []string{"audit:async"}, audit.seen)
}

func TestFireAsyncReportsFailure(t *testing.T) {
	store := meta.NewStore()
	source := newStubSource()

	failing := &auditLog{fail: true}
	obs, id := observerFor(failing, "OnOrder", orderType())
	obs.Async = true
	store.AddObserver(obs)
	source.instances[id] = failing

	bus := NewBus(store, source, func(fn func()) { fn() }, nil)
	err := <-bus.FireAsync(context.Background(), &orderPlaced{ID: "o-1"}, nil)
	assert.Error(t, err)
}

func TestTransactionalObserversDeferToPhase(t *testing.T) {
	store := meta.NewStore()
	source := newStubSource()

	onSuccess := &auditLog{}
	onFailure := &mailer{}
	successObs, successID := observerFor(onSuccess, "OnOrder", orderType())
	successObs.Phase = meta.AfterSuccess
	failureObs, failureID := observerFor(onFailure, "OnOrder", orderType())
	failureObs.Phase = meta.AfterFailure
	store.AddObserver(successObs)
	store.AddObserver(failureObs)
	source.instances[successID] = onSuccess
	source.instances[failureID] = onFailure

	bus := NewBus(store, source, nil, nil)
	coord := NewCoordinator()
	ctx := WithCoordinator(context.Background(), coord)

	require.NoError(t, bus.Fire(ctx, &orderPlaced{ID: "o-1"}, nil))
	assert.Empty(t, onSuccess.seen, "phase-bound observers wait for completion")
	assert.Empty(t, onFailure.seen)

	coord.Complete(true)
	assert.Equal(t, []string{"audit:o-1"}, onSuccess.seen)
	assert.Empty(t, onFailure.seen, "AfterFailure observers stay silent on success")
}

func TestTransactionalObserverFailureIsContained(t *testing.T) {
	store := meta.NewStore()
	source := newStubSource()

	failing := &auditLog{fail: true}
	obs, id := observerFor(failing, "OnOrder", orderType())
	obs.Phase = meta.BeforeCompletion
	store.AddObserver(obs)
	source.instances[id] = failing

	bus := NewBus(store, source, nil, nil)
	coord := NewCoordinator()
	ctx := WithCoordinator(context.Background(), coord)

	require.NoError(t, bus.Fire(ctx, &orderPlaced{ID: "o-1"}, nil))
	coord.Complete(false)
}

func TestTransactionalWithoutCoordinatorDeliversImmediately(t *testing.T) {
	store := meta.NewStore()
	source := newStubSource()

	audit := &auditLog{}
	obs, id := observerFor(audit, "OnOrder", orderType())
	obs.Phase = meta.AfterSuccess
	store.AddObserver(obs)
	source.instances[id] = audit

	bus := NewBus(store, source, nil, nil)
	require.NoError(t, bus.Fire(context.Background(), &orderPlaced{ID: "o-1"}, nil))
	assert.Equal(t, []string{"audit:o-1"}, audit.seen)
}
