package gocdi

import (
	"github.com/gocdi/gocdi/internal/meta"
)

// ========================================
// Core Error Values (Sentinel Errors)
// ========================================
// These are base errors that typed errors wrap. Match them with errors.Is.

var (
	// Resolution errors.
	ErrUnsatisfied = meta.ErrNoCandidate
	ErrNoScope     = meta.ErrScopeMissing

	// Lifecycle errors.
	ErrShutDown         = meta.ErrContainerShutDown
	ErrDeploymentFailed = meta.ErrDeploymentFailed

	// Definition errors.
	ErrClassNil = meta.ErrClassNil
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
	_ error = ModuleError{}
)

// ========================================
// Typed Errors for Rich Context
// ========================================
// Validation and resolution return these instead of bare strings so callers
// can branch with errors.As.

// DefinitionError reports an invalid component definition found during
// discovery.
type DefinitionError = meta.DefinitionError

// InjectionError reports an unusable injection point or a failed injection.
type InjectionError = meta.InjectionError

// UnsatisfiedError reports a resolution with zero matching enabled beans.
type UnsatisfiedError = meta.UnsatisfiedError

// AmbiguousError reports a resolution that alternative and priority
// tie-breaking could not narrow to one bean.
type AmbiguousError = meta.AmbiguousError

// ContextNotActiveError reports a resolution against a scope with no
// current activation.
type ContextNotActiveError = meta.ContextNotActiveError

// CreationError reports a failure inside a bean's constructor, producer or
// lifecycle callback.
type CreationError = meta.CreationError

// DisposalError aggregates per-instance failures from a scope teardown.
type DisposalError = meta.DisposalError

// DeploymentError aggregates every definition problem found at build time.
// Deployment is atomic: one invalid definition fails the whole build, and
// the error enumerates all of them rather than the first.
type DeploymentError = meta.DeploymentError

// ModuleError wraps a failure raised while applying a module's
// registrations.
type ModuleError struct {
	Module string
	Cause  error
}

func (e ModuleError) Error() string {
	return "module " + e.Module + ": " + e.Cause.Error()
}

func (e ModuleError) Unwrap() error { return e.Cause }
