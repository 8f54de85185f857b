package gocdi

import (
	"reflect"

	"github.com/gocdi/gocdi/internal/meta"
)

// ComponentDef is one candidate class plus its role markers, built with the
// fluent methods and handed to the container before Build.
type ComponentDef = meta.ComponentDef

// ProducerDef marks a producer method on a component.
type ProducerDef = meta.ProducerDef

// ObserverDef marks an observer method on a component.
type ObserverDef = meta.ObserverDef

// InterceptorDef marks a class as an interceptor.
type InterceptorDef = meta.InterceptorDef

// DecoratorDef marks a class as a decorator.
type DecoratorDef = meta.DecoratorDef

// InjectionPoint describes where a dependency is being injected. Dependent
// beans may declare an InjectionPoint field tagged `inject:""` to receive
// the metadata of their own injection site.
type InjectionPoint = meta.InjectionPoint

// Invocation is the context threaded through interceptor hook chains.
type Invocation = meta.Invocation

// Reception controls observer notification when the declaring bean has no
// live instance.
type Reception = meta.Reception

const (
	// Always instantiates the declaring bean to deliver.
	Always = meta.Always

	// IfExists delivers only to already-live instances.
	IfExists = meta.IfExists
)

// TxPhase binds an observer to a transaction completion phase.
type TxPhase = meta.TxPhase

const (
	InProgress       = meta.InProgress
	BeforeCompletion = meta.BeforeCompletion
	AfterSuccess     = meta.AfterSuccess
	AfterFailure     = meta.AfterFailure
	AfterCompletion  = meta.AfterCompletion
)

// Component starts a definition for the struct type T.
//
//	gocdi.Component[StripeGateway]().
//	    WithScope(gocdi.Singleton).
//	    Qualify(gocdi.NewQualifier("Fast"))
func Component[T any]() *ComponentDef {
	return meta.NewComponent(typeFor[T]())
}

// Mixin starts a level-annotation definition for a type that other
// components embed. Mixins contribute lifecycle markers to every component
// embedding the type; they are never beans themselves.
func Mixin[T any]() *ComponentDef {
	return meta.NewMixin(typeFor[T]())
}

// TypeOf returns the reflect.Type of T, a convenience for RestrictTypes
// and programmatic resolution.
func TypeOf[T any]() reflect.Type { return typeFor[T]() }

func typeFor[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
