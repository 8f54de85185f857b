// Package typematch decides whether a candidate bean type can serve a
// requested type, and whether a type is a legal injection target or
// produced type. It is a leaf utility over the reflect type system.
package typematch

import (
	"errors"
	"fmt"
	"reflect"
)

var anyType = reflect.TypeOf((*any)(nil)).Elem()

var (
	ErrNilType           = errors.New("type cannot be nil")
	ErrBareAny           = errors.New("bare any is not a resolvable type")
	ErrUnnamedType       = errors.New("unnamed types cannot be injected")
	ErrPrimitiveTarget   = errors.New("primitive types cannot be injected; wrap them in a named struct or use a producer")
	ErrChanTarget        = errors.New("channel types are not supported as injection targets")
	ErrFuncTarget        = errors.New("func types are not supported as injection targets")
	ErrUnsafeTarget      = errors.New("unsafe pointers are not supported as injection targets")
	ErrArrayTarget       = errors.New("array types are not supported as injection targets")
	ErrNotABeanClass     = errors.New("bean classes must be named struct types")
	ErrInterfaceNotABean = errors.New("interfaces cannot be beans")
)

// AnyType is the universal root type every bean exposes.
func AnyType() reflect.Type { return anyType }

// Assignable reports whether a value of the candidate instance type can
// serve a request for the requested type. The universal root type matches
// everything; interface requests match by implementation; concrete requests
// match by identity or assignability.
func Assignable(candidate, requested reflect.Type) bool {
	if candidate == nil || requested == nil {
		return false
	}
	if requested == anyType {
		return true
	}
	if candidate == requested {
		return true
	}
	if requested.Kind() == reflect.Interface {
		return candidate.Implements(requested)
	}
	return candidate.AssignableTo(requested)
}

// ExposedMatches reports whether a bean with the given instance type and
// optional type restriction serves the requested type. A restriction limits
// the exposed set to the listed types plus the universal root.
func ExposedMatches(instanceType reflect.Type, restriction []reflect.Type, requested reflect.Type) bool {
	if requested == anyType {
		return true
	}
	if len(restriction) == 0 {
		return Assignable(instanceType, requested)
	}
	for _, t := range restriction {
		if t == requested {
			return true
		}
	}
	return false
}

// ValidRestriction checks that every listed type is genuinely exposed by
// the instance type.
func ValidRestriction(instanceType reflect.Type, restriction []reflect.Type) error {
	for _, t := range restriction {
		if !Assignable(instanceType, t) {
			return fmt.Errorf("restricted type %s is not a supertype of %s", t, instanceType)
		}
	}
	return nil
}

// ValidInjectionTarget rejects types that can never be legally injected:
// bare any (the wildcard analog), channels, funcs, unsafe pointers, arrays,
// primitives and unnamed types. Container types are checked recursively so
// a nested wildcard is caught too.
func ValidInjectionTarget(t reflect.Type) error {
	return validTarget(t, true)
}

// ValidProducedType validates a producer's declared return type. Unlike
// injection points, parameterized produced types may carry nested wildcards:
// only the top-level kind rules apply.
func ValidProducedType(t reflect.Type) error {
	if t == nil {
		return ErrNilType
	}
	if t == anyType {
		return ErrBareAny
	}
	switch t.Kind() {
	case reflect.Chan:
		return ErrChanTarget
	case reflect.UnsafePointer:
		return ErrUnsafeTarget
	}
	return nil
}

func validTarget(t reflect.Type, top bool) error {
	if t == nil {
		return ErrNilType
	}
	if t == anyType {
		return ErrBareAny
	}
	switch t.Kind() {
	case reflect.Chan:
		return ErrChanTarget
	case reflect.Func:
		return ErrFuncTarget
	case reflect.UnsafePointer:
		return ErrUnsafeTarget
	case reflect.Array:
		return ErrArrayTarget
	case reflect.Pointer:
		return validTarget(t.Elem(), false)
	case reflect.Slice:
		return validTarget(t.Elem(), false)
	case reflect.Map:
		if err := validTarget(t.Key(), false); err != nil {
			return err
		}
		return validTarget(t.Elem(), false)
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return ErrBareAny
		}
		return nil
	case reflect.Struct:
		if t.Name() == "" {
			return ErrUnnamedType
		}
		return nil
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		if top {
			return ErrPrimitiveTarget
		}
		return nil
	default:
		return fmt.Errorf("unsupported injection target kind %s", t.Kind())
	}
}

// ValidBeanClass rejects types that can never be beans: anything but a
// named struct type. Package-private struct types are fine; only local and
// anonymous types are out. Interfaces are reported distinctly so the
// validator can skip them silently.
func ValidBeanClass(t reflect.Type) error {
	if t == nil {
		return ErrNilType
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Interface {
		return ErrInterfaceNotABean
	}
	if t.Kind() != reflect.Struct {
		return ErrNotABeanClass
	}
	if t.Name() == "" {
		return ErrUnnamedType
	}
	return nil
}
