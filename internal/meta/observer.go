package meta

import (
	"fmt"
	"reflect"
)

// Reception controls whether an observer is notified when its declaring
// bean has no live instance yet.
type Reception int

const (
	// Always instantiates the declaring bean if needed to deliver.
	Always Reception = iota

	// IfExists delivers only when an instance already lives in the
	// declaring bean's scope context.
	IfExists
)

func (r Reception) String() string {
	if r == IfExists {
		return "IfExists"
	}
	return "Always"
}

// TxPhase binds an observer to a transaction completion phase. Phase-bound
// observers are deferred until the coordinator reaches that phase; their
// individual failures are logged without affecting siblings or the
// transaction outcome.
type TxPhase int

const (
	InProgress TxPhase = iota
	BeforeCompletion
	AfterSuccess
	AfterFailure
	AfterCompletion
)

func (p TxPhase) String() string {
	switch p {
	case BeforeCompletion:
		return "BeforeCompletion"
	case AfterSuccess:
		return "AfterSuccess"
	case AfterFailure:
		return "AfterFailure"
	case AfterCompletion:
		return "AfterCompletion"
	default:
		return "InProgress"
	}
}

// Observer is the validated descriptor of one observer method.
type Observer struct {
	// DeclaringBean hosts the observer method.
	DeclaringBean BeanID

	// DeclaringClass is kept alongside the bean identity for diagnostics.
	DeclaringClass reflect.Type

	Method reflect.Method

	// EventType is the observed payload type (the method's first
	// parameter).
	EventType reflect.Type

	Qualifiers Qualifiers
	Async      bool
	Reception  Reception
	Phase      TxPhase
	Priority   int

	// Params are the injected parameters after the event parameter.
	Params []InjectionPoint
}

// Matches reports whether a fired payload type and qualifier set select
// this observer: the payload must be assignable to the observed type and
// the fired qualifiers must satisfy the observer's requested set.
func (o *Observer) Matches(payload reflect.Type, fired Qualifiers) bool {
	if payload == nil {
		return false
	}
	if o.EventType.Kind() == reflect.Interface {
		if !payload.Implements(o.EventType) {
			return false
		}
	} else if payload != o.EventType {
		return false
	}
	return fired.Satisfies(o.Qualifiers)
}

func (o *Observer) String() string {
	return fmt.Sprintf("observer %s.%s for %s", FormatType(o.DeclaringClass), o.Method.Name, FormatType(o.EventType))
}
