package meta

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ========================================
// Core Error Values (Sentinel Errors)
// ========================================
// Base errors wrapped in the typed errors below. Never returned bare.

var (
	ErrNoCandidate       = errors.New("no matching bean")
	ErrScopeMissing      = errors.New("bean declares no scope")
	ErrClassNil          = errors.New("component class cannot be nil")
	ErrContainerShutDown = errors.New("container has been shut down")
	ErrDeploymentFailed  = errors.New("deployment failed")
)

var (
	_ error = DefinitionError{}
	_ error = InjectionError{}
	_ error = UnsatisfiedError{}
	_ error = AmbiguousError{}
	_ error = ContextNotActiveError{}
	_ error = CreationError{}
	_ error = DisposalError{}
	_ error = DeploymentError{}
)

// DefinitionError records a structural violation of the component model:
// duplicate scopes, illegal role combinations, invalid constructor shape,
// invalid producer signatures. Definition errors are accumulated during
// discovery and surfaced together as a deployment failure; they are never
// thrown at the point of discovery.
type DefinitionError struct {
	Class  reflect.Type
	Member string // field or method name, empty for class-level problems
	Cause  error
}

func (e DefinitionError) Error() string {
	if e.Member != "" {
		return fmt.Sprintf("definition error on %s.%s: %v", FormatType(e.Class), e.Member, e.Cause)
	}
	return fmt.Sprintf("definition error on %s: %v", FormatType(e.Class), e.Cause)
}

func (e DefinitionError) Unwrap() error { return e.Cause }

// InjectionError records an unusable injection point: a forbidden target
// type, a malformed parameter, a missing field. Aggregated like definition
// errors.
type InjectionError struct {
	Class reflect.Type
	Point string // "field X", "constructor parameter 2", ...
	Cause error
}

func (e InjectionError) Error() string {
	return fmt.Sprintf("injection error on %s (%s): %v", FormatType(e.Class), e.Point, e.Cause)
}

func (e InjectionError) Unwrap() error { return e.Cause }

// UnsatisfiedError is returned from resolution when zero enabled candidates
// match the requested type and qualifiers.
type UnsatisfiedError struct {
	Requested  reflect.Type
	Qualifiers Qualifiers
	Available  []reflect.Type // registered bean classes, for suggestions
}

func (e UnsatisfiedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "unsatisfied dependency: no bean matches %s", FormatType(e.Requested))
	if len(e.Qualifiers) > 0 {
		fmt.Fprintf(&b, " with qualifiers %s", e.Qualifiers)
	}
	if len(e.Available) > 0 {
		b.WriteString("\n\nRegistered bean classes:\n")
		for _, t := range e.Available {
			fmt.Fprintf(&b, "  • %s\n", FormatType(t))
		}
	}
	b.WriteString("\nMake sure an enabled bean exposes the requested type and qualifiers.")
	return b.String()
}

func (e UnsatisfiedError) Unwrap() error { return ErrNoCandidate }

// AmbiguousError is returned from resolution when more than one enabled
// candidate remains after alternative and priority tie-breaking.
type AmbiguousError struct {
	Requested  reflect.Type
	Qualifiers Qualifiers
	Candidates []reflect.Type
}

func (e AmbiguousError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ambiguous dependency: %d beans match %s", len(e.Candidates), FormatType(e.Requested))
	if len(e.Qualifiers) > 0 {
		fmt.Fprintf(&b, " with qualifiers %s", e.Qualifiers)
	}
	b.WriteString("\n")
	for _, t := range e.Candidates {
		fmt.Fprintf(&b, "  • %s\n", FormatType(t))
	}
	b.WriteString("\nTo resolve this:\n")
	b.WriteString("  • Add a distinguishing qualifier to one of the beans\n")
	b.WriteString("  • Mark one bean as an alternative with a higher priority\n")
	return b.String()
}

// ContextNotActiveError is returned when resolution hits a scope that has no
// current activation, e.g. a session-scoped bean resolved with no bound
// session. Distinct from UnsatisfiedError.
type ContextNotActiveError struct {
	Scope ScopeID
}

func (e ContextNotActiveError) Error() string {
	return fmt.Sprintf("scope %s is not active", e.Scope)
}

// CreationError wraps a failure inside a bean's own constructor, producer or
// lifecycle callback, with enough context to identify the failing bean.
type CreationError struct {
	Bean  BeanID
	Class reflect.Type
	Stage string // "constructor", "producer", "post-construct", "initializer"
	Cause error
}

func (e CreationError) Error() string {
	return fmt.Sprintf("failed to create %s (%s stage): %v", FormatType(e.Class), e.Stage, e.Cause)
}

func (e CreationError) Unwrap() error { return e.Cause }

// DisposalError aggregates failures from disposal hooks during scope
// teardown. Disposal failures never abort teardown of sibling instances.
type DisposalError struct {
	Scope  ScopeID
	Errors []error
}

func (e DisposalError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("scope %s disposal failed: %v", e.Scope, e.Errors[0])
	}
	var b strings.Builder
	fmt.Fprintf(&b, "scope %s disposal failed with %d errors:", e.Scope, len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "\n  %d. %v", i+1, err)
	}
	return b.String()
}

func (e DisposalError) Unwrap() error { return errors.Join(e.Errors...) }

// DeploymentError is the aggregate of every definition and injection error
// accumulated during discovery. Deployment fails loudly with the full list,
// not just the first problem, and no container operation succeeds afterward.
type DeploymentError struct {
	Errors []error
}

func (e DeploymentError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "deployment failed with %d error(s):", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "\n  %d. %v", i+1, err)
	}
	return b.String()
}

func (e DeploymentError) Unwrap() error { return ErrDeploymentFailed }

// FormatType formats a reflect.Type for error messages.
func FormatType(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind() {
	case reflect.Pointer:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "*" + elem.Name()
		}
		return t.String()
	case reflect.Slice:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "[]" + elem.Name()
		}
		return t.String()
	case reflect.Interface, reflect.Struct:
		if t.Name() != "" {
			return t.Name()
		}
		return t.String()
	default:
		if t.Name() != "" {
			return t.Name()
		}
		return t.String()
	}
}
