// Package graph builds the deployment-time dependency graph over validated
// bean descriptors. Resolution creates instances eagerly, so a dependency
// cycle would deadlock the scope caches at runtime; the graph rejects it at
// deployment instead.
package graph

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/gocdi/gocdi/internal/meta"
	"github.com/gocdi/gocdi/internal/typematch"
)

// CycleError reports one dependency cycle. Chain lists the bean classes in
// dependency order; the last entry depends on the first.
type CycleError struct {
	Chain []reflect.Type
}

func (e CycleError) Error() string {
	var b strings.Builder
	b.WriteString("dependency cycle: ")
	for i, t := range e.Chain {
		if i > 0 {
			b.WriteString(" -> ")
		}
		b.WriteString(meta.FormatType(t))
	}
	if len(e.Chain) > 0 {
		b.WriteString(" -> ")
		b.WriteString(meta.FormatType(e.Chain[0]))
	}
	return b.String()
}

// ScopeLeakError reports an injection point that would capture a concrete
// instance of a deferred-scope bean inside a bean of another scope, pinning
// whichever activation happened to be current at creation time.
type ScopeLeakError struct {
	Owner      reflect.Type
	OwnerScope meta.ScopeID
	Target     reflect.Type
	Scope      meta.ScopeID
	Point      string
}

func (e ScopeLeakError) Error() string {
	return fmt.Sprintf("%s-scoped %s cannot be injected directly into %s-scoped %s (%s): use a deferred reference",
		e.Scope, meta.FormatType(e.Target), e.OwnerScope, meta.FormatType(e.Owner), e.Point)
}

// Graph holds the bean nodes and their resolved dependency edges.
type Graph struct {
	beans []*meta.Bean
	edges map[meta.BeanID][]meta.BeanID
	byID  map[meta.BeanID]*meta.Bean

	// points holds each resolvable bean's injection points minus the
	// container-provided ones.
	points map[meta.BeanID][]meta.InjectionPoint
}

// Build derives the dependency edges from every resolvable bean's injection
// points. Points whose type the container provides itself (event sinks,
// deferred references, injection point metadata) resolve lazily and carry no
// edge; a deferred reference is the supported way to close a cycle.
func Build(beans []*meta.Bean, provided func(reflect.Type) bool) *Graph {
	g := &Graph{
		beans:  beans,
		edges:  make(map[meta.BeanID][]meta.BeanID, len(beans)),
		byID:   make(map[meta.BeanID]*meta.Bean, len(beans)),
		points: make(map[meta.BeanID][]meta.InjectionPoint, len(beans)),
	}
	for _, b := range beans {
		g.byID[b.ID] = b
	}
	for _, b := range beans {
		if !b.Resolvable() {
			continue
		}
		for _, point := range points(b) {
			if provided != nil && provided(point.Type) {
				continue
			}
			g.points[b.ID] = append(g.points[b.ID], point)
			for _, target := range g.targets(point) {
				g.edges[b.ID] = append(g.edges[b.ID], target.ID)
			}
		}
		if b.Producer != nil {
			// A produced bean needs its declaring host first.
			g.edges[b.ID] = append(g.edges[b.ID], b.Producer.DeclaringBean)
		}
	}
	return g
}

func points(b *meta.Bean) []meta.InjectionPoint {
	var out []meta.InjectionPoint
	if b.Producer != nil {
		return append(out, b.Producer.Params...)
	}
	out = append(out, b.Fields...)
	if b.Constructor != nil {
		out = append(out, b.Constructor.Params...)
	}
	for _, init := range b.Initializers {
		out = append(out, init.Params...)
	}
	return out
}

// targets mirrors resolution's candidate selection closely enough for cycle
// purposes: resolvable beans matching the point's type and qualifiers, with
// enabled alternatives displacing regular candidates.
func (g *Graph) targets(point meta.InjectionPoint) []*meta.Bean {
	requested := meta.Normalize(point.Qualifiers)
	var regular, alternatives []*meta.Bean
	for _, b := range g.beans {
		if !b.Resolvable() {
			continue
		}
		if !typematch.ExposedMatches(b.InstanceType, b.Types, point.Type) {
			continue
		}
		if !b.Qualifiers.Satisfies(requested) {
			continue
		}
		if b.Alternative {
			alternatives = append(alternatives, b)
		} else {
			regular = append(regular, b)
		}
	}
	if len(alternatives) > 0 {
		return alternatives
	}
	return regular
}

// ScopeLeaks returns one ScopeLeakError for every injection point whose
// candidate lives in a deferred scope while the owning bean does not: the
// owner would pin the activation current at its own creation. Container-
// provided points (deferred references among them) resolve on every access
// and are exempt, which makes them the sanctioned way to cross the
// boundary.
func (g *Graph) ScopeLeaks(isDeferred func(meta.ScopeID) bool) []error {
	if isDeferred == nil {
		return nil
	}
	var errs []error
	for _, b := range g.beans {
		if !b.Resolvable() {
			continue
		}
		for _, point := range g.points[b.ID] {
			for _, target := range g.targets(point) {
				if !isDeferred(target.Scope) || target.Scope == b.Scope {
					continue
				}
				errs = append(errs, ScopeLeakError{
					Owner:      b.Class,
					OwnerScope: b.Scope,
					Target:     target.Class,
					Scope:      target.Scope,
					Point:      point.String(),
				})
			}
		}
	}
	return errs
}

// Cycles returns one CycleError per distinct dependency cycle.
func (g *Graph) Cycles() []error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[meta.BeanID]int, len(g.beans))
	var stack []meta.BeanID
	var errs []error

	var visit func(id meta.BeanID)
	visit = func(id meta.BeanID) {
		color[id] = grey
		stack = append(stack, id)
		for _, next := range g.edges[id] {
			switch color[next] {
			case white:
				visit(next)
			case grey:
				errs = append(errs, g.cycleFrom(stack, next))
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}

	// Deterministic traversal order keeps error output stable.
	ordered := append([]*meta.Bean(nil), g.beans...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Class.String() < ordered[j].Class.String()
	})
	for _, b := range ordered {
		if color[b.ID] == white {
			visit(b.ID)
		}
	}
	return errs
}

func (g *Graph) cycleFrom(stack []meta.BeanID, entry meta.BeanID) error {
	start := 0
	for i, id := range stack {
		if id == entry {
			start = i
			break
		}
	}
	chain := make([]reflect.Type, 0, len(stack)-start)
	for _, id := range stack[start:] {
		chain = append(chain, g.byID[id].Class)
	}
	return CycleError{Chain: chain}
}

// DOT renders the graph in Graphviz dot format for diagnostics.
func (g *Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph beans {\n")

	ordered := append([]*meta.Bean(nil), g.beans...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Class.String() < ordered[j].Class.String()
	})
	for _, bean := range ordered {
		label := meta.FormatType(bean.Class)
		if bean.Producer != nil {
			label += "#" + bean.Producer.Member
		}
		fmt.Fprintf(&b, "  %q [label=%q];\n", bean.ID, label)
		for _, dep := range g.edges[bean.ID] {
			fmt.Fprintf(&b, "  %q -> %q;\n", bean.ID, dep)
		}
	}
	b.WriteString("}\n")
	return b.String()
}
