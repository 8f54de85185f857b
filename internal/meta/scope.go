package meta

import "fmt"

// ScopeID identifies a lifecycle scope. Each ID maps to exactly one scope
// context implementation at runtime.
type ScopeID string

const (
	// Dependent is the pseudo-scope: a fresh instance per injection point,
	// owned by whatever bean it was injected into.
	Dependent ScopeID = "dependent"

	// Singleton holds one instance per container for the container lifetime.
	Singleton ScopeID = "singleton"

	// Session holds one instance per logical session. Session is a deferred
	// scope: beans of other scopes may only reach it through a re-resolving
	// reference, never a directly injected instance, because the session may
	// be shorter-lived than the injecting bean.
	Session ScopeID = "session"
)

// IsValid reports whether the scope ID is one of the built-in scopes.
func (s ScopeID) IsValid() bool {
	switch s {
	case Dependent, Singleton, Session:
		return true
	}
	return false
}

func (s ScopeID) String() string {
	if s == "" {
		return "<unset>"
	}
	return string(s)
}

// Stereotype is a named bundle of scope and qualifiers that a component
// definition can apply in one step.
type Stereotype struct {
	Name        string
	Scope       ScopeID
	Qualifiers  Qualifiers
	Alternative bool
}

func (st Stereotype) String() string {
	return fmt.Sprintf("stereotype %q (scope %s)", st.Name, st.Scope)
}
