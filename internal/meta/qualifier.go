package meta

import (
	"sort"
	"strings"
)

// Member is a single attribute carried by a qualifier marker. Members
// participate in qualifier equivalence unless flagged NonBinding.
type Member struct {
	Name       string
	Value      string
	NonBinding bool
}

// Qualifier is an additional discriminator beyond type used to pick among
// multiple implementations of the same type. Two qualifiers are equivalent
// iff their marker is identical and all binding members compare equal.
type Qualifier struct {
	Marker  string
	Members []Member
}

// Built-in marker names.
const (
	markerDefault = "Default"
	markerAny     = "Any"
	markerNamed   = "Named"
)

// Default is the implicit qualifier carried by every bean that declares no
// explicit qualifier.
var Default = Qualifier{Marker: markerDefault}

// Any is the implicit qualifier carried by every bean. It matches every
// request regardless of what was asked for.
var Any = Qualifier{Marker: markerAny}

// Named builds the name qualifier. Name requests match by exact value, never
// by mere marker presence.
func Named(value string) Qualifier {
	return Qualifier{
		Marker:  markerNamed,
		Members: []Member{{Name: "value", Value: value}},
	}
}

// NewQualifier builds a user-defined qualifier marker.
func NewQualifier(marker string, members ...Member) Qualifier {
	return Qualifier{Marker: marker, Members: members}
}

// IsDefault reports whether q is the implicit default qualifier.
func (q Qualifier) IsDefault() bool { return q.Marker == markerDefault }

// IsAny reports whether q is the always-matching any qualifier.
func (q Qualifier) IsAny() bool { return q.Marker == markerAny }

// IsNamed reports whether q is the name qualifier.
func (q Qualifier) IsNamed() bool { return q.Marker == markerNamed }

// NamedValue returns the value member of a name qualifier, or "".
func (q Qualifier) NamedValue() string {
	if !q.IsNamed() {
		return ""
	}
	for _, m := range q.Members {
		if m.Name == "value" {
			return m.Value
		}
	}
	return ""
}

// Equals implements qualifier equivalence: identical marker and equal
// binding members. Non-binding members are excluded from the comparison.
func (q Qualifier) Equals(other Qualifier) bool {
	if q.Marker != other.Marker {
		return false
	}
	return bindingKey(q.Members) == bindingKey(other.Members)
}

func bindingKey(members []Member) string {
	bound := make([]string, 0, len(members))
	for _, m := range members {
		if m.NonBinding {
			continue
		}
		bound = append(bound, m.Name+"="+m.Value)
	}
	sort.Strings(bound)
	return strings.Join(bound, ";")
}

func (q Qualifier) String() string {
	if len(q.Members) == 0 {
		return "@" + q.Marker
	}
	parts := make([]string, 0, len(q.Members))
	for _, m := range q.Members {
		parts = append(parts, m.Name+"="+m.Value)
	}
	return "@" + q.Marker + "(" + strings.Join(parts, ",") + ")"
}

// Qualifiers is an ordered qualifier set.
type Qualifiers []Qualifier

// Contains reports whether the set holds a qualifier equivalent to q.
func (qs Qualifiers) Contains(q Qualifier) bool {
	for _, held := range qs {
		if held.Equals(q) {
			return true
		}
	}
	return false
}

// Normalize applies the request-side defaulting rule: an empty request is a
// request for the default qualifier.
func Normalize(requested Qualifiers) Qualifiers {
	if len(requested) == 0 {
		return Qualifiers{Default}
	}
	return requested
}

// Satisfies reports whether a bean carrying qs matches a request for every
// qualifier in requested. Any on the request side always matches; name
// qualifiers must be present with the exact requested value.
func (qs Qualifiers) Satisfies(requested Qualifiers) bool {
	for _, want := range requested {
		if want.IsAny() {
			continue
		}
		if !qs.Contains(want) {
			return false
		}
	}
	return true
}

// WithImplicit returns the bean-side qualifier set derived from the declared
// qualifiers: Any is always added, and Default is added when no explicit
// qualifier beyond Any/Named is declared.
func WithImplicit(declared Qualifiers) Qualifiers {
	out := make(Qualifiers, 0, len(declared)+2)
	explicit := false
	for _, q := range declared {
		if q.IsAny() {
			continue
		}
		if !q.IsNamed() && !q.IsDefault() {
			explicit = true
		}
		if !out.Contains(q) {
			out = append(out, q)
		}
	}
	if !explicit && !out.Contains(Default) {
		out = append(out, Default)
	}
	out = append(out, Any)
	return out
}

func (qs Qualifiers) String() string {
	parts := make([]string, len(qs))
	for i, q := range qs {
		parts[i] = q.String()
	}
	return strings.Join(parts, " ")
}
