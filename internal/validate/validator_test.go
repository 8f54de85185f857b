package validate

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocdi/gocdi/internal/meta"
)

func typ[T any]() reflect.Type { return reflect.TypeOf((*T)(nil)).Elem() }

func validateOne(cfg Config, defs ...*meta.ComponentDef) *meta.Store {
	store := meta.NewStore()
	v := New(store, cfg)
	for _, def := range defs {
		v.Validate(def)
	}
	store.Seal()
	return store
}

func singleBean(t *testing.T, store *meta.Store, class reflect.Type) *meta.Bean {
	t.Helper()
	beans := store.BeansOf(class)
	require.Len(t, beans, 1)
	return beans[0]
}

type OrderRepository struct{}

type PlainHelper struct{}

type quietJournal struct{}

func newQuietJournal() *quietJournal { return &quietJournal{} }

type PricingEngine struct{}

func (e *PricingEngine) Ping() {}

func TestDiscoveryModes(t *testing.T) {
	t.Run("annotated mode skips unmarked classes", func(t *testing.T) {
		store := validateOne(Config{Mode: Annotated},
			meta.NewComponent(typ[PlainHelper]()))

		assert.Empty(t, store.BeansOf(typ[PlainHelper]()))
		assert.Empty(t, store.Errors())
		assert.NotEmpty(t, store.Warnings())
	})

	t.Run("all mode accepts unmarked classes", func(t *testing.T) {
		store := validateOne(Config{Mode: All},
			meta.NewComponent(typ[PlainHelper]()))

		bean := singleBean(t, store, typ[PlainHelper]())
		assert.Equal(t, meta.Dependent, bean.Scope)
	})

	t.Run("package-private classes are accepted", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[quietJournal]()).WithScope(meta.Singleton))

		bean := singleBean(t, store, typ[quietJournal]())
		assert.Equal(t, meta.Singleton, bean.Scope)
		assert.False(t, bean.HasErrors())
	})

	t.Run("package-private class violations are still reported", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[quietJournal]()).
				WithScope(meta.Singleton).
				WithConstructor(newQuietJournal, nil).
				WithConstructor(newQuietJournal, nil))

		assert.Empty(t, store.BeansOf(typ[quietJournal]()))
		assert.NotEmpty(t, store.Errors())
	})

	t.Run("interfaces are silently skipped", func(t *testing.T) {
		type notifier interface{ Notify() }
		store := validateOne(Config{Mode: All}, meta.NewComponent(typ[notifier]()))

		assert.Empty(t, store.Beans())
		assert.Empty(t, store.Errors())
		assert.Empty(t, store.Warnings())
	})

	t.Run("nil class is a definition error", func(t *testing.T) {
		store := validateOne(Config{}, &meta.ComponentDef{})
		require.NotEmpty(t, store.Errors())
	})
}

func TestAttributeExtraction(t *testing.T) {
	t.Run("default scope is dependent", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[OrderRepository]()).Qualify(meta.NewQualifier("Repo")))

		bean := singleBean(t, store, typ[OrderRepository]())
		assert.Equal(t, meta.Dependent, bean.Scope)
	})

	t.Run("multiple scopes are an error", func(t *testing.T) {
		def := meta.NewComponent(typ[OrderRepository]()).
			WithScope(meta.Singleton).
			WithScope(meta.Session)
		store := validateOne(Config{}, def)

		bean := singleBean(t, store, typ[OrderRepository]())
		assert.True(t, bean.HasErrors())
		assert.False(t, bean.Resolvable())
	})

	t.Run("name marker without value defaults to decapitalized class name", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[OrderRepository]()).WithScope(meta.Singleton).WithName(""))

		bean := singleBean(t, store, typ[OrderRepository]())
		assert.Equal(t, "orderRepository", bean.Name)
		assert.True(t, bean.Qualifiers.Contains(meta.Named("orderRepository")))
	})

	t.Run("unqualified bean carries default and any", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[OrderRepository]()).WithScope(meta.Singleton))

		bean := singleBean(t, store, typ[OrderRepository]())
		assert.True(t, bean.Qualifiers.Contains(meta.Default))
		assert.True(t, bean.Qualifiers.Contains(meta.Any))
	})

	t.Run("explicitly qualified bean loses default", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[OrderRepository]()).
				WithScope(meta.Singleton).
				Qualify(meta.NewQualifier("Repo")))

		bean := singleBean(t, store, typ[OrderRepository]())
		assert.False(t, bean.Qualifiers.Contains(meta.Default))
		assert.True(t, bean.Qualifiers.Contains(meta.Any))
	})

	t.Run("stereotype contributes scope and qualifiers", func(t *testing.T) {
		st := meta.Stereotype{
			Name:       "Model",
			Scope:      meta.Session,
			Qualifiers: meta.Qualifiers{meta.NewQualifier("Model")},
		}
		store := validateOne(Config{},
			meta.NewComponent(typ[OrderRepository]()).WithStereotype(st))

		bean := singleBean(t, store, typ[OrderRepository]())
		assert.Equal(t, meta.Session, bean.Scope)
		assert.True(t, bean.Qualifiers.Contains(meta.NewQualifier("Model")))
		assert.Equal(t, []string{"Model"}, bean.Stereotypes)
	})

	t.Run("explicit scope beats stereotype scope", func(t *testing.T) {
		st := meta.Stereotype{Name: "Model", Scope: meta.Session}
		store := validateOne(Config{},
			meta.NewComponent(typ[OrderRepository]()).WithScope(meta.Singleton).WithStereotype(st))

		bean := singleBean(t, store, typ[OrderRepository]())
		assert.Equal(t, meta.Singleton, bean.Scope)
		assert.False(t, bean.HasErrors())
	})

	t.Run("vetoed bean is registered but not resolvable", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[OrderRepository]()).WithScope(meta.Singleton).Veto())

		bean := singleBean(t, store, typ[OrderRepository]())
		assert.True(t, bean.Vetoed)
		assert.False(t, bean.Resolvable())
	})
}

func TestAlternativeGating(t *testing.T) {
	t.Run("unmarked alternative stays disabled with a warning", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[OrderRepository]()).WithScope(meta.Singleton).AsAlternative())

		bean := singleBean(t, store, typ[OrderRepository]())
		assert.False(t, bean.Enabled)
		assert.NotEmpty(t, store.Warnings())
	})

	t.Run("priority marker enables", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[OrderRepository]()).WithScope(meta.Singleton).AsAlternative().WithPriority(10))

		bean := singleBean(t, store, typ[OrderRepository]())
		assert.True(t, bean.Enabled)
		assert.Equal(t, 10, bean.EffectivePriority())
	})

	t.Run("enable list rank overrides the declared priority", func(t *testing.T) {
		cfg := Config{EnabledAlternatives: map[string]int{"validate.OrderRepository": 900}}
		store := validateOne(cfg,
			meta.NewComponent(typ[OrderRepository]()).WithScope(meta.Singleton).AsAlternative().WithPriority(10))

		bean := singleBean(t, store, typ[OrderRepository]())
		assert.True(t, bean.Enabled)
		assert.Equal(t, 900, bean.EffectivePriority())
	})
}

func newPricingEngine() *PricingEngine { return &PricingEngine{} }
func badPricingEngine() PricingEngine  { return PricingEngine{} }

func TestConstructorSelection(t *testing.T) {
	t.Run("two constructors yield no descriptor", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[PricingEngine]()).
				WithScope(meta.Singleton).
				WithConstructor(newPricingEngine, nil).
				WithConstructor(newPricingEngine, nil))

		assert.Empty(t, store.BeansOf(typ[PricingEngine]()))
		assert.NotEmpty(t, store.Errors())
	})

	t.Run("constructor must return the instance pointer", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[PricingEngine]()).
				WithScope(meta.Singleton).
				WithConstructor(badPricingEngine, nil))

		bean := singleBean(t, store, typ[PricingEngine]())
		assert.True(t, bean.HasErrors())
	})

	t.Run("valid constructor is selected", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[PricingEngine]()).
				WithScope(meta.Singleton).
				WithConstructor(newPricingEngine, nil))

		bean := singleBean(t, store, typ[PricingEngine]())
		require.NotNil(t, bean.Constructor)
		assert.False(t, bean.Constructor.ReturnsError)
	})
}

type MeterReader struct{}

func (m *MeterReader) Open() *OrderRepository    { return &OrderRepository{} }
func (m *MeterReader) Close(r *OrderRepository)  {}
func (m *MeterReader) Reload()                   {}
func (m *MeterReader) Observe(e OrderRepository) {}

func TestMemberRoles(t *testing.T) {
	t.Run("one member with two roles is an error", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[MeterReader]()).
				WithScope(meta.Singleton).
				AddProducer(meta.ProducerDef{Method: "Open"}).
				WithInitializer("Open"))

		var host *meta.Bean
		for _, b := range store.BeansOf(typ[MeterReader]()) {
			if b.Producer == nil {
				host = b
			}
		}
		require.NotNil(t, host)
		assert.True(t, host.HasErrors())
	})

	t.Run("disposer without producer is an error", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[MeterReader]()).
				WithScope(meta.Singleton).
				AddDisposer("Close"))

		bean := singleBean(t, store, typ[MeterReader]())
		assert.True(t, bean.HasErrors())
	})
}

func TestProducers(t *testing.T) {
	t.Run("producer derives its own bean with a linked disposer", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[MeterReader]()).
				WithScope(meta.Singleton).
				AddProducer(meta.ProducerDef{Method: "Open", ScopeDecls: []meta.ScopeID{meta.Singleton}}).
				AddDisposer("Close"))

		require.Empty(t, store.Errors())
		var produced *meta.Bean
		for _, b := range store.Beans() {
			if b.Producer != nil {
				produced = b
			}
		}
		require.NotNil(t, produced)
		assert.Equal(t, typ[*OrderRepository](), produced.InstanceType)
		assert.Equal(t, meta.Singleton, produced.Scope)
		require.NotNil(t, produced.Producer.Disposer)
		assert.Equal(t, "Close", produced.Producer.Disposer.Member)
	})

	t.Run("missing producer method is an error", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[MeterReader]()).
				WithScope(meta.Singleton).
				AddProducer(meta.ProducerDef{Method: "Missing"}))

		bean := singleBean(t, store, typ[MeterReader]())
		assert.True(t, bean.HasErrors())
	})
}

type LatencyInterceptor struct{}

func (i *LatencyInterceptor) Around(inv *meta.Invocation) error { return inv.Proceed() }
func (i *LatencyInterceptor) BadHook()                          {}

func TestInterceptorValidation(t *testing.T) {
	t.Run("bindings are required", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[LatencyInterceptor]()).AsInterceptor(meta.InterceptorDef{
				AroundConstruct: "Around",
			}))

		assert.Empty(t, store.Interceptors())
		assert.NotEmpty(t, store.Errors())
	})

	t.Run("hooks must take an invocation and return error", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[LatencyInterceptor]()).AsInterceptor(meta.InterceptorDef{
				Bindings:        meta.Qualifiers{meta.NewQualifier("Timed")},
				AroundConstruct: "BadHook",
			}))

		assert.Empty(t, store.Interceptors())
		assert.NotEmpty(t, store.Errors())
	})

	t.Run("valid interceptor registers", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[LatencyInterceptor]()).AsInterceptor(meta.InterceptorDef{
				Bindings:        meta.Qualifiers{meta.NewQualifier("Timed")},
				AroundConstruct: "Around",
				Priority:        50,
			}))

		require.Empty(t, store.Errors())
		require.Len(t, store.Interceptors(), 1)
		ic := store.Interceptors()[0]
		assert.NotNil(t, ic.AroundConstruct)
		assert.Equal(t, 50, ic.Priority)
	})
}

type auditCloser interface{ CloseAudit() }

type AuditDecorator struct {
	Next auditCloser `inject:"delegate"`
}

type TwoDelegateDecorator struct {
	A auditCloser `inject:"delegate"`
	B auditCloser `inject:"delegate"`
}

type ConcreteDelegateDecorator struct {
	Next *OrderRepository `inject:"delegate"`
}

func TestDecoratorValidation(t *testing.T) {
	t.Run("exactly one delegate is required", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[TwoDelegateDecorator]()).AsDecorator(meta.DecoratorDef{}))

		assert.Empty(t, store.Decorators())
		assert.NotEmpty(t, store.Errors())
	})

	t.Run("delegate type must be an interface", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[ConcreteDelegateDecorator]()).AsDecorator(meta.DecoratorDef{}))

		assert.Empty(t, store.Decorators())
		assert.NotEmpty(t, store.Errors())
	})

	t.Run("valid decorator registers", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[AuditDecorator]()).AsDecorator(meta.DecoratorDef{DelegateField: "Next", Priority: 5}))

		require.Empty(t, store.Errors())
		require.Len(t, store.Decorators(), 1)
		d := store.Decorators()[0]
		assert.Equal(t, typ[auditCloser](), d.DecoratedType)
		assert.Equal(t, "Next", d.Delegate.FieldName)
	})

	t.Run("delegate outside a decorator is an error", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewComponent(typ[AuditDecorator]()).WithScope(meta.Singleton))

		bean := singleBean(t, store, typ[AuditDecorator]())
		assert.True(t, bean.HasErrors())
	})
}

type BaseEntity struct{}

func (b *BaseEntity) Wake() {}

type TrackedOrder struct {
	BaseEntity
}

func (o *TrackedOrder) Ready() {}

type ShadowingOrder struct {
	BaseEntity
}

// Wake redeclares the embedded callback name without the marker.
func (o *ShadowingOrder) Wake() {}

func TestCallbacks(t *testing.T) {
	t.Run("mixin callbacks run base level first", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewMixin(typ[BaseEntity]()).OnPostConstruct("Wake"),
			meta.NewComponent(typ[TrackedOrder]()).WithScope(meta.Singleton).OnPostConstruct("Ready"))

		bean := singleBean(t, store, typ[TrackedOrder]())
		require.Len(t, bean.PostConstructs, 2)
		assert.Equal(t, "Wake", bean.PostConstructs[0].Name)
		assert.Equal(t, "Ready", bean.PostConstructs[1].Name)
	})

	t.Run("redeclared member suppresses the embedded callback", func(t *testing.T) {
		store := validateOne(Config{},
			meta.NewMixin(typ[BaseEntity]()).OnPostConstruct("Wake"),
			meta.NewComponent(typ[ShadowingOrder]()).WithScope(meta.Singleton).Redeclares("Wake"))

		bean := singleBean(t, store, typ[ShadowingOrder]())
		assert.Empty(t, bean.PostConstructs)
	})
}
