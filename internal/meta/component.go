package meta

import "reflect"

// ComponentDef is one candidate class as fed by the class source: a struct
// type plus the role markers the original platform would carry as
// annotations. Defs are plain data; the validator turns them into bean
// descriptors (or records why it could not).
type ComponentDef struct {
	Class reflect.Type

	// Mixin marks a def that only carries level annotations for a type that
	// other components embed. Mixins are never beans themselves.
	Mixin bool

	// ScopeDecls holds every declared scope marker. More than one entry is
	// a definition error; none means the scope is inherited from a
	// stereotype or defaults to Dependent.
	ScopeDecls []ScopeID

	Qualifiers Qualifiers

	// NameSet distinguishes "no name marker" from "name marker without a
	// value" (which defaults to the decapitalized class name).
	Name    string
	NameSet bool

	Alternative bool
	Priority    int
	HasPriority bool

	Stereotypes []Stereotype

	// Typed restricts the exposed type set to the listed types.
	Typed []reflect.Type

	// Constructors holds every function marked as an injectable
	// constructor. More than one is a definition error.
	Constructors []ConstructorDef

	Initializers []string

	PostConstructs []string
	PreDestroys    []string
	PrePassivates  []string
	PostActivates  []string

	// Declares lists members redeclared at this level without any role
	// marker. A redeclaration shadows an identically named marked callback
	// on an embedded level.
	Declares []string

	Producers []ProducerDef
	Disposers []string

	Observers []ObserverDef

	// Interceptor marks the class as an interceptor; it is routed to
	// interceptor registration and never registered as a regular bean.
	Interceptor *InterceptorDef

	// Decorator marks the class as a decorator with a single delegate
	// injection point.
	Decorator *DecoratorDef

	// InterceptorBindings select interceptors for a regular bean.
	InterceptorBindings Qualifiers

	Vetoed bool
}

// ConstructorDef is a marked injectable constructor with optional per
// parameter qualifiers.
type ConstructorDef struct {
	Fn         any
	ParamQuals map[int]Qualifiers
}

// ProducerDef marks a producer method with its own attribute set, defaulted
// with the same rules as class-level attributes when left empty.
type ProducerDef struct {
	Method      string
	ScopeDecls  []ScopeID
	Qualifiers  Qualifiers
	Name        string
	NameSet     bool
	Alternative bool
	Priority    int
	HasPriority bool
}

// ObserverDef marks an observer method. The first parameter is the observed
// event payload; remaining parameters are injected.
type ObserverDef struct {
	Method     string
	Qualifiers Qualifiers
	Async      bool
	Reception  Reception
	Phase      TxPhase
	Priority   int
}

// InterceptorDef marks an interceptor class: binding markers, priority
// ordering and the hook methods it provides.
type InterceptorDef struct {
	Bindings        Qualifiers
	Priority        int
	AroundConstruct string
	PostConstruct   string
	PreDestroy      string
	AroundInvoke    string
}

// DecoratorDef marks a decorator class. DelegateField names the injection
// point receiving the next implementation in the chain; exactly one is
// required and it must be declared on the class itself.
type DecoratorDef struct {
	DelegateField string
	Priority      int
}

// NewComponent starts a component definition for the given struct type.
func NewComponent(class reflect.Type) *ComponentDef {
	return &ComponentDef{Class: class}
}

// NewMixin starts a level-annotation definition for an embedded type.
func NewMixin(class reflect.Type) *ComponentDef {
	return &ComponentDef{Class: class, Mixin: true}
}

func (d *ComponentDef) WithScope(s ScopeID) *ComponentDef {
	d.ScopeDecls = append(d.ScopeDecls, s)
	return d
}

func (d *ComponentDef) Qualify(qs ...Qualifier) *ComponentDef {
	d.Qualifiers = append(d.Qualifiers, qs...)
	return d
}

// Named declares the name marker. An empty value keeps the marker but
// defaults the name during validation.
func (d *ComponentDef) WithName(name string) *ComponentDef {
	d.Name = name
	d.NameSet = true
	return d
}

func (d *ComponentDef) AsAlternative() *ComponentDef {
	d.Alternative = true
	return d
}

func (d *ComponentDef) WithPriority(p int) *ComponentDef {
	d.Priority = p
	d.HasPriority = true
	return d
}

func (d *ComponentDef) WithStereotype(st Stereotype) *ComponentDef {
	d.Stereotypes = append(d.Stereotypes, st)
	return d
}

func (d *ComponentDef) RestrictTypes(types ...reflect.Type) *ComponentDef {
	d.Typed = append(d.Typed, types...)
	return d
}

func (d *ComponentDef) WithConstructor(fn any, paramQuals map[int]Qualifiers) *ComponentDef {
	d.Constructors = append(d.Constructors, ConstructorDef{Fn: fn, ParamQuals: paramQuals})
	return d
}

func (d *ComponentDef) WithInitializer(method string) *ComponentDef {
	d.Initializers = append(d.Initializers, method)
	return d
}

func (d *ComponentDef) OnPostConstruct(method string) *ComponentDef {
	d.PostConstructs = append(d.PostConstructs, method)
	return d
}

func (d *ComponentDef) OnPreDestroy(method string) *ComponentDef {
	d.PreDestroys = append(d.PreDestroys, method)
	return d
}

func (d *ComponentDef) OnPrePassivate(method string) *ComponentDef {
	d.PrePassivates = append(d.PrePassivates, method)
	return d
}

func (d *ComponentDef) OnPostActivate(method string) *ComponentDef {
	d.PostActivates = append(d.PostActivates, method)
	return d
}

// Redeclares marks a member declared at this level with no role. It exists
// for shadow detection against marked members of embedded levels.
func (d *ComponentDef) Redeclares(member string) *ComponentDef {
	d.Declares = append(d.Declares, member)
	return d
}

func (d *ComponentDef) AddProducer(p ProducerDef) *ComponentDef {
	d.Producers = append(d.Producers, p)
	return d
}

func (d *ComponentDef) AddDisposer(method string) *ComponentDef {
	d.Disposers = append(d.Disposers, method)
	return d
}

func (d *ComponentDef) AddObserver(o ObserverDef) *ComponentDef {
	d.Observers = append(d.Observers, o)
	return d
}

func (d *ComponentDef) AsInterceptor(def InterceptorDef) *ComponentDef {
	d.Interceptor = &def
	return d
}

func (d *ComponentDef) AsDecorator(def DecoratorDef) *ComponentDef {
	d.Decorator = &def
	return d
}

func (d *ComponentDef) BindInterceptors(qs ...Qualifier) *ComponentDef {
	d.InterceptorBindings = append(d.InterceptorBindings, qs...)
	return d
}

func (d *ComponentDef) Veto() *ComponentDef {
	d.Vetoed = true
	return d
}

// HasRoleMarker reports whether the def carries any marker that makes the
// class a bean candidate in annotated discovery mode.
func (d *ComponentDef) HasRoleMarker() bool {
	return len(d.ScopeDecls) > 0 ||
		d.Alternative ||
		len(d.Stereotypes) > 0 ||
		d.Interceptor != nil ||
		d.Decorator != nil ||
		len(d.Qualifiers) > 0 ||
		d.NameSet
}
