// Package validate turns raw component definitions into validated bean
// metadata. Validation never halts discovery: structural problems are
// accumulated on the resulting descriptors (or the knowledge base) and
// surfaced together at deployment time.
package validate

import (
	"fmt"
	"reflect"

	"github.com/gocdi/gocdi/internal/meta"
	"github.com/gocdi/gocdi/internal/typematch"
)

// Mode selects the discovery policy.
type Mode int

const (
	// Annotated accepts only classes carrying a recognized role marker:
	// explicit scope, alternative, stereotype, interceptor, decorator,
	// qualifier or name.
	Annotated Mode = iota

	// All is the permissive mode: any valid struct class with a usable
	// constructor is a candidate.
	All
)

// Config tunes the validator.
type Config struct {
	Mode Mode

	// EnabledAlternatives maps class names to an enablement rank. A listed
	// alternative is enabled even without a priority marker; its rank wins
	// over a declared priority when both are present.
	EnabledAlternatives map[string]int
}

// Validator consumes one candidate class at a time and populates the
// knowledge base with bean, producer, interceptor, decorator and observer
// descriptors. Safe for concurrent use: many candidates may be validated in
// parallel during discovery.
type Validator struct {
	store     *meta.Store
	cfg       Config
	hierarchy *hierarchyCache
}

// New creates a validator over the given knowledge base.
func New(store *meta.Store, cfg Config) *Validator {
	return &Validator{store: store, cfg: cfg, hierarchy: newHierarchyCache()}
}

var (
	errViaMethod    = reflect.TypeOf((*error)(nil)).Elem()
	invocationType  = reflect.TypeOf((*meta.Invocation)(nil))
	errMultipleCtor = fmt.Errorf("more than one constructor is marked injectable")
)

// Validate applies the eligibility and structural rules to one candidate.
// Non-candidates are skipped without error; once a class is accepted as a
// candidate every violation is accumulated so later resolution can report
// an otherwise-matching bean as unusable.
func (v *Validator) Validate(def *meta.ComponentDef) {
	if def == nil || def.Class == nil {
		v.store.AddError(meta.DefinitionError{Cause: meta.ErrClassNil})
		return
	}

	if def.Mixin {
		v.store.AddMixin(def)
		return
	}

	class := def.Class
	if class.Kind() == reflect.Pointer {
		class = class.Elem()
	}

	// Eligibility filter. Interfaces stand in for abstract classes and are
	// skipped silently; other non-class types are never candidates.
	if err := typematch.ValidBeanClass(class); err != nil {
		if err != typematch.ErrInterfaceNotABean {
			v.store.AddWarning(fmt.Sprintf("skipping %s: %v", class, err))
		}
		return
	}
	if v.cfg.Mode == Annotated && !def.HasRoleMarker() && len(def.Constructors) == 0 &&
		len(def.Producers) == 0 && len(def.Observers) == 0 {
		v.store.AddWarning(fmt.Sprintf("skipping %s: no role marker in annotated discovery", class))
		return
	}

	// Interceptors and decorators are routed away from regular bean
	// registration and excluded from normal resolution.
	if def.Interceptor != nil {
		v.validateInterceptor(class, def)
		return
	}
	if def.Decorator != nil {
		v.validateDecorator(class, def)
		return
	}

	// Constructor multiplicity is the one violation that produces no
	// descriptor at all.
	if len(def.Constructors) > 1 {
		v.store.AddError(meta.DefinitionError{Class: class, Cause: errMultipleCtor})
		return
	}

	bean := &meta.Bean{
		ID:                  meta.NewBeanID(class, ""),
		Class:               class,
		InstanceType:        reflect.PointerTo(class),
		Vetoed:              def.Vetoed,
		InterceptorBindings: def.InterceptorBindings,
	}
	record := func(err error) { bean.Errors = append(bean.Errors, err) }

	v.applyAttributes(bean, def, record)
	v.checkMemberRoles(class, def, record)
	v.selectConstructor(bean, def, record)

	levels := v.hierarchy.Levels(class)
	fields, delegates := collectFieldPoints(class, levels, record)
	bean.Fields = fields
	if len(delegates) > 0 {
		record(meta.DefinitionError{
			Class:  class,
			Member: delegates[0].FieldName,
			Cause:  fmt.Errorf("delegate injection points are only legal on decorators"),
		})
	}

	v.collectInitializers(bean, def, record)
	v.collectCallbacks(bean, def, levels, record)

	v.store.AddBean(bean)

	v.registerProducers(bean, def, record)
	v.registerObservers(bean, def, record)
}

// applyAttributes extracts scope, name, qualifiers, type restriction and
// alternative metadata, applying stereotype contributions and defaults.
func (v *Validator) applyAttributes(bean *meta.Bean, def *meta.ComponentDef, record func(error)) {
	class := bean.Class

	// Scope uniqueness: at most one declared marker.
	if len(def.ScopeDecls) > 1 {
		record(meta.DefinitionError{
			Class: class,
			Cause: fmt.Errorf("multiple scopes declared: %v", def.ScopeDecls),
		})
	}
	scope := meta.ScopeID("")
	if len(def.ScopeDecls) > 0 {
		scope = def.ScopeDecls[0]
	}

	alternative := def.Alternative
	quals := append(meta.Qualifiers(nil), def.Qualifiers...)
	for _, st := range def.Stereotypes {
		bean.Stereotypes = append(bean.Stereotypes, st.Name)
		alternative = alternative || st.Alternative
		quals = append(quals, st.Qualifiers...)
		if st.Scope == "" {
			continue
		}
		if scope == "" {
			scope = st.Scope
		} else if len(def.ScopeDecls) == 0 && scope != st.Scope {
			record(meta.DefinitionError{
				Class: class,
				Cause: fmt.Errorf("stereotypes declare conflicting scopes %s and %s", scope, st.Scope),
			})
		}
	}
	if scope == "" {
		scope = meta.Dependent
	}
	if !scope.IsValid() {
		record(meta.DefinitionError{Class: class, Cause: fmt.Errorf("unknown scope %q", scope)})
	}
	bean.Scope = scope

	// Name defaults to the decapitalized simple class name when the marker
	// carries no value.
	if def.NameSet {
		bean.Name = def.Name
		if bean.Name == "" {
			bean.Name = meta.DefaultName(class)
		}
		quals = append(quals, meta.Named(bean.Name))
	}
	bean.Qualifiers = meta.WithImplicit(quals)

	if len(def.Typed) > 0 {
		if err := typematch.ValidRestriction(bean.InstanceType, def.Typed); err != nil {
			record(meta.DefinitionError{Class: class, Cause: err})
		}
		bean.Types = append(bean.Types, def.Typed...)
	}

	bean.Alternative = alternative
	bean.Priority = def.Priority
	bean.HasPriority = def.HasPriority
	v.gateAlternative(bean, class.String())
}

// gateAlternative decides whether an alternative participates in default
// resolution. A priority marker or an entry in the enable-list switches it
// on; the enable-list rank wins when both are present. Unmarked alternatives
// are disabled, not errors.
func (v *Validator) gateAlternative(bean *meta.Bean, key string) {
	if !bean.Alternative {
		bean.Enabled = true
		return
	}
	rank, listed := v.cfg.EnabledAlternatives[key]
	if listed {
		bean.Enabled = true
		bean.Priority = rank
		bean.HasPriority = true
		return
	}
	bean.Enabled = bean.HasPriority
	if !bean.Enabled {
		v.store.AddWarning(fmt.Sprintf("alternative %s is not enabled: no priority and not in the enable-list", key))
	}
}

// checkMemberRoles records a definition error for every member carrying
// conflicting roles: a producer cannot also be an injection target, and an
// injection target cannot also be a disposal target.
func (v *Validator) checkMemberRoles(class reflect.Type, def *meta.ComponentDef, record func(error)) {
	roles := make(map[string][]string)
	add := func(member, role string) {
		roles[member] = append(roles[member], role)
	}
	for _, p := range def.Producers {
		add(p.Method, "producer")
	}
	for _, d := range def.Disposers {
		add(d, "disposer")
	}
	for _, i := range def.Initializers {
		add(i, "initializer")
	}
	for _, o := range def.Observers {
		add(o.Method, "observer")
	}
	for member, rs := range roles {
		if len(rs) > 1 {
			record(meta.DefinitionError{
				Class:  class,
				Member: member,
				Cause:  fmt.Errorf("member carries conflicting roles %v", rs),
			})
		}
	}
}

// selectConstructor applies the constructor selection rule: use the single
// marked constructor when present, falling back to zero-value construction.
func (v *Validator) selectConstructor(bean *meta.Bean, def *meta.ComponentDef, record func(error)) {
	if len(def.Constructors) == 0 {
		return
	}
	cd := def.Constructors[0]
	if cd.Fn == nil {
		record(meta.DefinitionError{Class: bean.Class, Cause: fmt.Errorf("constructor function is nil")})
		return
	}
	fn := reflect.ValueOf(cd.Fn)
	fnType := fn.Type()
	if fnType.Kind() != reflect.Func {
		record(meta.DefinitionError{Class: bean.Class, Cause: fmt.Errorf("constructor must be a function, got %s", fnType.Kind())})
		return
	}
	if fnType.NumOut() < 1 || fnType.NumOut() > 2 {
		record(meta.DefinitionError{Class: bean.Class, Cause: fmt.Errorf("constructor must return the instance and an optional error")})
		return
	}
	if fnType.Out(0) != bean.InstanceType {
		record(meta.DefinitionError{
			Class: bean.Class,
			Cause: fmt.Errorf("constructor returns %s, want %s", fnType.Out(0), bean.InstanceType),
		})
		return
	}
	returnsError := false
	if fnType.NumOut() == 2 {
		if !fnType.Out(1).Implements(errViaMethod) {
			record(meta.DefinitionError{Class: bean.Class, Cause: fmt.Errorf("constructor's second return value must be error")})
			return
		}
		returnsError = true
	}
	params := paramPoints(bean.Class, fnType, 0, "", cd.ParamQuals, record)
	bean.Constructor = &meta.Constructor{Fn: fn, Params: params, ReturnsError: returnsError}
}

// collectInitializers validates injectable initializer methods declared on
// the component or inherited through mixin levels.
func (v *Validator) collectInitializers(bean *meta.Bean, def *meta.ComponentDef, record func(error)) {
	names := append([]string(nil), def.Initializers...)
	for _, level := range v.hierarchy.Levels(bean.Class)[1:] {
		if mixin := v.store.Mixin(level.Type); mixin != nil {
			names = append(mixin.Initializers, names...)
		}
	}
	for _, name := range names {
		m, ok := method(bean.Class, name)
		if !ok {
			record(meta.DefinitionError{Class: bean.Class, Member: name, Cause: fmt.Errorf("initializer method not found")})
			continue
		}
		params := paramPoints(bean.Class, m.Type, 1, name, nil, record)
		bean.Initializers = append(bean.Initializers, meta.Initializer{Method: m, Params: params})
	}
}

// validateInterceptor routes an interceptor class to interceptor
// registration.
func (v *Validator) validateInterceptor(class reflect.Type, def *meta.ComponentDef) {
	idef := def.Interceptor
	if len(idef.Bindings) == 0 {
		v.store.AddError(meta.DefinitionError{Class: class, Cause: fmt.Errorf("interceptor declares no bindings")})
		return
	}
	ic := &meta.Interceptor{
		Class:    class,
		Bindings: idef.Bindings,
		Priority: idef.Priority,
	}
	var errs []error
	record := func(err error) { errs = append(errs, err) }

	hook := func(name string) *reflect.Method {
		if name == "" {
			return nil
		}
		m, ok := method(class, name)
		if !ok {
			record(meta.DefinitionError{Class: class, Member: name, Cause: fmt.Errorf("interceptor hook not found")})
			return nil
		}
		if m.Type.NumIn() != 2 || m.Type.In(1) != invocationType ||
			m.Type.NumOut() != 1 || !m.Type.Out(0).Implements(errViaMethod) {
			record(meta.DefinitionError{
				Class:  class,
				Member: name,
				Cause:  fmt.Errorf("interceptor hooks must take *Invocation and return error"),
			})
			return nil
		}
		return &m
	}
	ic.AroundConstruct = hook(idef.AroundConstruct)
	ic.PostConstruct = hook(idef.PostConstruct)
	ic.PreDestroy = hook(idef.PreDestroy)
	ic.AroundInvoke = hook(idef.AroundInvoke)

	levels := v.hierarchy.Levels(class)
	fields, delegates := collectFieldPoints(class, levels, record)
	ic.Fields = fields
	if len(delegates) > 0 {
		record(meta.DefinitionError{Class: class, Cause: fmt.Errorf("interceptors cannot declare delegate injection points")})
	}

	for _, err := range errs {
		v.store.AddError(err)
	}
	if len(errs) == 0 {
		v.store.AddInterceptor(ic)
	}
}

// validateDecorator routes a decorator class to decorator registration.
// Exactly one delegate injection point is required; its declared type is the
// decorated type and must be an interface.
func (v *Validator) validateDecorator(class reflect.Type, def *meta.ComponentDef) {
	var errs []error
	record := func(err error) { errs = append(errs, err) }

	levels := v.hierarchy.Levels(class)
	fields, delegates := collectFieldPoints(class, levels, record)

	switch len(delegates) {
	case 0:
		record(meta.DefinitionError{Class: class, Cause: fmt.Errorf("decorator declares no delegate injection point")})
	case 1:
		if delegates[0].Type.Kind() != reflect.Interface {
			record(meta.DefinitionError{
				Class:  class,
				Member: delegates[0].FieldName,
				Cause:  fmt.Errorf("delegate type must be an interface, got %s", delegates[0].Type),
			})
		}
	default:
		record(meta.DefinitionError{Class: class, Cause: fmt.Errorf("decorator declares %d delegate injection points, want exactly 1", len(delegates))})
	}

	if ddef := def.Decorator; ddef.DelegateField != "" && len(delegates) == 1 && delegates[0].FieldName != ddef.DelegateField {
		record(meta.DefinitionError{
			Class:  class,
			Member: ddef.DelegateField,
			Cause:  fmt.Errorf("declared delegate field does not carry the delegate tag"),
		})
	}

	for _, err := range errs {
		v.store.AddError(err)
	}
	if len(errs) > 0 {
		return
	}

	v.store.AddDecorator(&meta.Decorator{
		Class:         class,
		Priority:      def.Decorator.Priority,
		Delegate:      delegates[0],
		DecoratedType: delegates[0].Type,
		Fields:        fields,
		Qualifiers:    def.Qualifiers,
	})
}
