package meta

import (
	"fmt"
	"reflect"
)

// Interceptor is the validated descriptor of an interceptor class. An
// interceptor is selected for a bean when the bean's interceptor bindings
// contain every one of the interceptor's bindings; selected interceptors run
// in ascending priority order.
type Interceptor struct {
	Class    reflect.Type
	Bindings Qualifiers
	Priority int

	// Hook methods. Each takes the invocation context as its only
	// parameter and returns error.
	AroundConstruct *reflect.Method
	PostConstruct   *reflect.Method
	PreDestroy      *reflect.Method
	AroundInvoke    *reflect.Method

	// Fields are the interceptor's own injection points.
	Fields []InjectionPoint
}

// AppliesTo reports whether every binding of the interceptor is carried by
// the target bean's binding set.
func (i *Interceptor) AppliesTo(bindings Qualifiers) bool {
	if len(i.Bindings) == 0 {
		return false
	}
	for _, b := range i.Bindings {
		if !bindings.Contains(b) {
			return false
		}
	}
	return true
}

func (i *Interceptor) String() string {
	return fmt.Sprintf("interceptor %s (priority %d)", FormatType(i.Class), i.Priority)
}

// Decorator is the validated descriptor of a decorator class: a bean-like
// component with exactly one delegate injection point whose type determines
// the set of decorated types.
type Decorator struct {
	Class    reflect.Type
	Priority int

	// Delegate is the single delegate injection point.
	Delegate InjectionPoint

	// DecoratedType is the delegate's declared type; beans exposing it are
	// wrapped by this decorator.
	DecoratedType reflect.Type

	// Fields are the decorator's ordinary injection points, delegate
	// excluded.
	Fields []InjectionPoint

	Qualifiers Qualifiers
}

// Decorates reports whether instances of the given type are wrapped by this
// decorator.
func (d *Decorator) Decorates(instanceType reflect.Type, qualifiers Qualifiers) bool {
	if d.DecoratedType == nil || instanceType == nil {
		return false
	}
	if !qualifiers.Satisfies(Normalize(d.Qualifiers)) {
		return false
	}
	if d.DecoratedType.Kind() == reflect.Interface {
		return instanceType.Implements(d.DecoratedType)
	}
	return instanceType == d.DecoratedType
}

func (d *Decorator) String() string {
	return fmt.Sprintf("decorator %s for %s", FormatType(d.Class), FormatType(d.DecoratedType))
}
