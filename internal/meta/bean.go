package meta

import (
	"fmt"
	"reflect"
	"sync/atomic"
	"unicode"
	"unicode/utf8"
)

// Global counter feeding bean identity generation.
var beanSeq uint64

// BeanID uniquely identifies one bean descriptor for the container lifetime.
// Producer-derived beans carry the producing member in their identity.
type BeanID string

// NewBeanID derives an identity from the declaring class and, for
// producer-derived beans, the producing member name.
func NewBeanID(class reflect.Type, member string) BeanID {
	seq := atomic.AddUint64(&beanSeq, 1)
	if member != "" {
		return BeanID(fmt.Sprintf("%s#%s/%d", class.String(), member, seq))
	}
	return BeanID(fmt.Sprintf("%s/%d", class.String(), seq))
}

// InjectionPointKind distinguishes where an injection point occurs.
type InjectionPointKind int

const (
	FieldPoint InjectionPointKind = iota
	ParameterPoint
	DelegatePoint
)

func (k InjectionPointKind) String() string {
	switch k {
	case FieldPoint:
		return "field"
	case ParameterPoint:
		return "parameter"
	case DelegatePoint:
		return "delegate"
	default:
		return "unknown"
	}
}

// InjectionPoint is one place a dependency must be supplied: a tagged field,
// a constructor or initializer parameter, or a decorator delegate.
type InjectionPoint struct {
	Kind       InjectionPointKind
	Type       reflect.Type
	Qualifiers Qualifiers

	// FieldIndex is the reflect index path for field points, including the
	// embedded hops down to the declaring level.
	FieldIndex []int

	// FieldName is the declared field name for field points.
	FieldName string

	// ParamIndex is the parameter position for parameter points.
	ParamIndex int

	// Member is the owning member name: "" for constructor parameters,
	// the method name for initializer or producer parameters.
	Member string

	// Owner is the class declaring the injection point.
	Owner reflect.Type
}

func (ip InjectionPoint) String() string {
	switch ip.Kind {
	case FieldPoint:
		return fmt.Sprintf("field %s of %s", ip.FieldName, FormatType(ip.Owner))
	case DelegatePoint:
		return fmt.Sprintf("delegate %s of %s", ip.FieldName, FormatType(ip.Owner))
	default:
		if ip.Member != "" {
			return fmt.Sprintf("parameter %d of %s.%s", ip.ParamIndex, FormatType(ip.Owner), ip.Member)
		}
		return fmt.Sprintf("constructor parameter %d of %s", ip.ParamIndex, FormatType(ip.Owner))
	}
}

// Constructor is the selected injectable constructor: a function whose
// parameters are resolved by the container and whose first return value is
// the bean instance.
type Constructor struct {
	Fn     reflect.Value
	Params []InjectionPoint

	// ReturnsError is true when the function's last return value is error.
	ReturnsError bool
}

// Initializer is an injectable method invoked after field injection, in
// declaration order, with every parameter resolved by the container.
type Initializer struct {
	Method reflect.Method
	Params []InjectionPoint
}

// Callback is a lifecycle callback method: post-construct, pre-destroy,
// pre-passivate or post-activate. Callbacks take no parameters. One callback
// of each kind may exist per class level; a level redeclaring the same
// method name without the marker suppresses the outer level's callback.
type Callback struct {
	Name string

	// Level is the class level that declared the callback (the bean class
	// itself or one of its embedded levels).
	Level reflect.Type

	// Depth is the embedding distance from the bean class, 0 for the bean
	// class itself.
	Depth int

	Method reflect.Method
}

// Producer describes a value manufactured by a producer method rather than
// constructed directly: the producing member, its injected parameters and
// the optionally linked disposer.
type Producer struct {
	Member       string
	Method       reflect.Method
	Produced     reflect.Type
	Params       []InjectionPoint
	ReturnsError bool

	// Disposer is the linked disposal method, found by exact produced-type
	// match among the sibling methods carrying the disposes role.
	Disposer *Disposer

	// DeclaringBean is the bean hosting the producer member.
	DeclaringBean BeanID
}

// Disposer receives a previously produced value and cleans it up.
type Disposer struct {
	Member       string
	Method       reflect.Method
	ParamType    reflect.Type
	ReturnsError bool
}

// Bean is the validated descriptor of one injectable component. Descriptors
// are metadata, not instances: they are created by the validator during
// discovery, registered into the knowledge base, and live for the container
// lifetime. Immutable after registration except for the veto flag.
type Bean struct {
	ID BeanID

	// Class is the declaring struct type. Instances are pointers to it,
	// except for producer-derived beans whose instances are the produced
	// value directly.
	Class reflect.Type

	// InstanceType is the runtime type of resolved instances: *Class for
	// class beans, the produced type for producer beans.
	InstanceType reflect.Type

	// Name is the bean name, defaulted to the decapitalized simple class
	// name when a name was requested without an explicit value.
	Name string

	Qualifiers Qualifiers
	Scope      ScopeID

	// Types restricts the exposed type set when non-nil. A nil slice means
	// the full assignability closure up to any.
	Types []reflect.Type

	Alternative bool
	Priority    int
	HasPriority bool

	// Enabled reports whether the bean participates in default resolution.
	// Non-alternative beans are always enabled; alternatives only when a
	// priority marker or the container enable-list switches them on.
	Enabled bool

	Vetoed bool

	// Errors accumulates every definition and injection error found after
	// the class was accepted as a candidate. A bean with errors stays
	// registered so resolution can report "matching but unusable" instead
	// of silently dropping it, but it never serves a resolution.
	Errors []error

	Constructor    *Constructor // nil means construct via the zero value
	Fields         []InjectionPoint
	Initializers   []Initializer
	PostConstructs []Callback // ordered outermost level last (invocation order: base first)
	PreDestroys    []Callback
	PrePassivates  []Callback
	PostActivates  []Callback

	// Producer is set for producer-derived beans.
	Producer *Producer

	Stereotypes []string

	// InterceptorBindings are the binding markers that select interceptors
	// for this bean's lifecycle.
	InterceptorBindings Qualifiers
}

// HasErrors reports whether validation recorded any problem on the bean.
func (b *Bean) HasErrors() bool { return len(b.Errors) > 0 }

// Resolvable reports whether the bean may serve a resolution: registered,
// error-free, not vetoed and enabled.
func (b *Bean) Resolvable() bool {
	return !b.Vetoed && !b.HasErrors() && b.Enabled
}

// EffectivePriority returns the tie-break priority for enabled alternatives.
func (b *Bean) EffectivePriority() int {
	if b.HasPriority {
		return b.Priority
	}
	return 0
}

func (b *Bean) String() string {
	if b.Producer != nil {
		return fmt.Sprintf("bean %s (produced by %s.%s)", FormatType(b.InstanceType), FormatType(b.Class), b.Producer.Member)
	}
	return fmt.Sprintf("bean %s (scope %s)", FormatType(b.Class), b.Scope)
}

// DefaultName derives the default bean name from a class: the simple type
// name with its first rune decapitalized.
func DefaultName(class reflect.Type) string {
	name := class.Name()
	if name == "" {
		name = class.String()
	}
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToLower(r)) + name[size:]
}
