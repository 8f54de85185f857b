package gocdi

import "github.com/gocdi/gocdi/internal/meta"

// Qualifier is a resolution marker. A bean carrying qualifiers serves only
// injection points requesting a subset of them; membership values
// participate in matching unless declared non-binding.
type Qualifier = meta.Qualifier

// Qualifiers is an ordered qualifier set.
type Qualifiers = meta.Qualifiers

// Member is one qualifier membership value.
type Member = meta.Member

var (
	// Default is carried implicitly by beans that declare no qualifier
	// besides Named, and requested implicitly by unqualified injection
	// points.
	Default = meta.Default

	// Any is carried by every bean and matches every candidate.
	Any = meta.Any
)

// Named builds the name qualifier with the given value.
func Named(value string) Qualifier { return meta.Named(value) }

// NewQualifier builds a custom qualifier from a marker name and optional
// membership values.
func NewQualifier(marker string, members ...Member) Qualifier {
	return meta.NewQualifier(marker, members...)
}

// NonBinding marks a membership value that is recorded on the qualifier but
// ignored during matching.
func NonBinding(name, value string) Member {
	return Member{Name: name, Value: value, NonBinding: true}
}

// Binding builds a membership value that participates in matching.
func Binding(name, value string) Member {
	return Member{Name: name, Value: value}
}
