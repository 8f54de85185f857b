package validate

import (
	"fmt"
	"sort"

	"github.com/gocdi/gocdi/internal/meta"
)

type callbackKind int

const (
	postConstruct callbackKind = iota
	preDestroy
	prePassivate
	postActivate
)

func (k callbackKind) String() string {
	switch k {
	case postConstruct:
		return "post-construct"
	case preDestroy:
		return "pre-destroy"
	case prePassivate:
		return "pre-passivate"
	default:
		return "post-activate"
	}
}

// levelMarks are the callback markers declared at one class level, taken
// from the component def for the class itself and from mixin defs for
// embedded levels.
type levelMarks struct {
	byKind   map[callbackKind][]string
	declared []string
}

func marksFor(def *meta.ComponentDef) levelMarks {
	return levelMarks{
		byKind: map[callbackKind][]string{
			postConstruct: def.PostConstructs,
			preDestroy:    def.PreDestroys,
			prePassivate:  def.PrePassivates,
			postActivate:  def.PostActivates,
		},
		declared: def.Declares,
	}
}

// collectCallbacks walks the class levels from the component toward the
// deepest embedded level, collecting one callback of each kind per level.
// A shallower level redeclaring an identically named member without the
// marker suppresses the deeper level's callback entirely. Post-construct
// and post-activate run deepest level first; pre-destroy and pre-passivate
// run shallowest level first.
func (v *Validator) collectCallbacks(bean *meta.Bean, def *meta.ComponentDef, levels []Level, record func(error)) {
	sorted := append([]Level(nil), levels...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Depth < sorted[j].Depth })

	seen := make(map[string]bool)
	collected := make(map[callbackKind][]meta.Callback)

	for _, level := range sorted {
		var marks levelMarks
		if level.Depth == 0 {
			marks = marksFor(def)
		} else if mixin := v.store.Mixin(level.Type); mixin != nil {
			marks = marksFor(mixin)
		} else {
			continue
		}

		declaredHere := append([]string(nil), marks.declared...)
		for kind, names := range marks.byKind {
			if len(names) > 1 {
				record(meta.DefinitionError{
					Class: bean.Class,
					Cause: fmt.Errorf("%s declares %d %s callbacks, at most one per class level", level.Type, len(names), kind),
				})
			}
			for _, name := range names {
				declaredHere = append(declaredHere, name)
				if seen[name] {
					// Shadowed by a shallower level's redeclaration.
					continue
				}
				m, ok := method(level.Type, name)
				if !ok {
					record(meta.DefinitionError{
						Class:  bean.Class,
						Member: name,
						Cause:  fmt.Errorf("%s callback not found on %s", kind, level.Type),
					})
					continue
				}
				if m.Type.NumIn() != 1 {
					record(meta.DefinitionError{
						Class:  bean.Class,
						Member: name,
						Cause:  fmt.Errorf("%s callbacks must take no parameters", kind),
					})
					continue
				}
				if m.Type.NumOut() > 1 || (m.Type.NumOut() == 1 && !m.Type.Out(0).Implements(errViaMethod)) {
					record(meta.DefinitionError{
						Class:  bean.Class,
						Member: name,
						Cause:  fmt.Errorf("%s callbacks must return nothing or error", kind),
					})
					continue
				}
				collected[kind] = append(collected[kind], meta.Callback{
					Name:   name,
					Level:  level.Type,
					Depth:  level.Depth,
					Method: m,
				})
			}
		}
		for _, name := range declaredHere {
			seen[name] = true
		}
	}

	deepestFirst := func(cbs []meta.Callback) []meta.Callback {
		out := append([]meta.Callback(nil), cbs...)
		sort.SliceStable(out, func(i, j int) bool { return out[i].Depth > out[j].Depth })
		return out
	}

	bean.PostConstructs = deepestFirst(collected[postConstruct])
	bean.PostActivates = deepestFirst(collected[postActivate])
	bean.PreDestroys = collected[preDestroy]
	bean.PrePassivates = collected[prePassivate]
}
