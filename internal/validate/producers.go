package validate

import (
	"fmt"
	"reflect"

	"github.com/gocdi/gocdi/internal/meta"
	"github.com/gocdi/gocdi/internal/typematch"
)

// registerProducers synthesizes one producer-derived bean per producer
// method, with its own qualifier, scope and name extraction, and links
// disposers by exact produced-type match.
func (v *Validator) registerProducers(declaring *meta.Bean, def *meta.ComponentDef, record func(error)) {
	disposers := v.collectDisposers(declaring.Class, def, record)

	for _, pd := range def.Producers {
		m, ok := method(declaring.Class, pd.Method)
		if !ok {
			record(meta.DefinitionError{Class: declaring.Class, Member: pd.Method, Cause: fmt.Errorf("producer method not found")})
			continue
		}
		if m.Type.NumOut() < 1 || m.Type.NumOut() > 2 {
			record(meta.DefinitionError{
				Class:  declaring.Class,
				Member: pd.Method,
				Cause:  fmt.Errorf("producer must return the produced value and an optional error"),
			})
			continue
		}
		produced := m.Type.Out(0)
		// Unlike injection points, produced types may carry nested
		// wildcards inside parameterized types.
		if err := typematch.ValidProducedType(produced); err != nil {
			record(meta.DefinitionError{Class: declaring.Class, Member: pd.Method, Cause: err})
			continue
		}
		returnsError := false
		if m.Type.NumOut() == 2 {
			if !m.Type.Out(1).Implements(errViaMethod) {
				record(meta.DefinitionError{
					Class:  declaring.Class,
					Member: pd.Method,
					Cause:  fmt.Errorf("producer's second return value must be error"),
				})
				continue
			}
			returnsError = true
		}

		producerBean := &meta.Bean{
			ID:           meta.NewBeanID(declaring.Class, pd.Method),
			Class:        declaring.Class,
			InstanceType: produced,
			Vetoed:       declaring.Vetoed,
		}
		precord := func(err error) { producerBean.Errors = append(producerBean.Errors, err) }

		// Member-level attribute extraction follows the class-level rules.
		if len(pd.ScopeDecls) > 1 {
			precord(meta.DefinitionError{
				Class:  declaring.Class,
				Member: pd.Method,
				Cause:  fmt.Errorf("multiple scopes declared on producer: %v", pd.ScopeDecls),
			})
		}
		scope := meta.Dependent
		if len(pd.ScopeDecls) > 0 {
			scope = pd.ScopeDecls[0]
		}
		if !scope.IsValid() {
			precord(meta.DefinitionError{Class: declaring.Class, Member: pd.Method, Cause: fmt.Errorf("unknown scope %q", scope)})
		}
		producerBean.Scope = scope

		quals := append(meta.Qualifiers(nil), pd.Qualifiers...)
		if pd.NameSet {
			producerBean.Name = pd.Name
			if producerBean.Name == "" {
				producerBean.Name = defaultMemberName(pd.Method)
			}
			quals = append(quals, meta.Named(producerBean.Name))
		}
		producerBean.Qualifiers = meta.WithImplicit(quals)

		producerBean.Alternative = pd.Alternative || declaring.Alternative
		producerBean.Priority = pd.Priority
		producerBean.HasPriority = pd.HasPriority
		v.gateAlternative(producerBean, declaring.Class.String()+"#"+pd.Method)

		params := paramPoints(declaring.Class, m.Type, 1, pd.Method, nil, precord)
		producerBean.Producer = &meta.Producer{
			Member:        pd.Method,
			Method:        m,
			Produced:      produced,
			Params:        params,
			ReturnsError:  returnsError,
			Disposer:      matchDisposer(disposers, produced),
			DeclaringBean: declaring.ID,
		}

		v.store.AddBean(producerBean)
	}

	if len(def.Producers) == 0 && len(def.Disposers) > 0 {
		record(meta.DefinitionError{
			Class:  declaring.Class,
			Member: def.Disposers[0],
			Cause:  fmt.Errorf("disposer declared without any producer"),
		})
	}
}

// collectDisposers validates disposal methods: the first parameter is the
// disposal parameter, the remainder are injected.
func (v *Validator) collectDisposers(class reflect.Type, def *meta.ComponentDef, record func(error)) []meta.Disposer {
	byType := make(map[reflect.Type]int)
	out := make([]meta.Disposer, 0, len(def.Disposers))
	for _, name := range def.Disposers {
		m, ok := method(class, name)
		if !ok {
			record(meta.DefinitionError{Class: class, Member: name, Cause: fmt.Errorf("disposer method not found")})
			continue
		}
		if m.Type.NumIn() < 2 {
			record(meta.DefinitionError{Class: class, Member: name, Cause: fmt.Errorf("disposer must take the disposed value as its first parameter")})
			continue
		}
		if m.Type.NumOut() > 1 || (m.Type.NumOut() == 1 && !m.Type.Out(0).Implements(errViaMethod)) {
			record(meta.DefinitionError{Class: class, Member: name, Cause: fmt.Errorf("disposer must return nothing or error")})
			continue
		}
		paramType := m.Type.In(1)
		byType[paramType]++
		if byType[paramType] > 1 {
			record(meta.DefinitionError{
				Class:  class,
				Member: name,
				Cause:  fmt.Errorf("more than one disposer for produced type %s", paramType),
			})
			continue
		}
		out = append(out, meta.Disposer{
			Member:       name,
			Method:       m,
			ParamType:    paramType,
			ReturnsError: m.Type.NumOut() == 1,
		})
	}
	return out
}

// matchDisposer links a disposer whose disposal parameter type equals the
// produced type exactly.
func matchDisposer(disposers []meta.Disposer, produced reflect.Type) *meta.Disposer {
	for i := range disposers {
		if disposers[i].ParamType == produced {
			return &disposers[i]
		}
	}
	return nil
}

// registerObservers validates observer methods and registers their
// descriptors: first parameter is the event payload, subsequent parameters
// are ordinary injection points.
func (v *Validator) registerObservers(declaring *meta.Bean, def *meta.ComponentDef, record func(error)) {
	for _, od := range def.Observers {
		m, ok := method(declaring.Class, od.Method)
		if !ok {
			record(meta.DefinitionError{Class: declaring.Class, Member: od.Method, Cause: fmt.Errorf("observer method not found")})
			continue
		}
		if m.Type.NumIn() < 2 {
			record(meta.DefinitionError{
				Class:  declaring.Class,
				Member: od.Method,
				Cause:  fmt.Errorf("observer must take the event payload as its first parameter"),
			})
			continue
		}
		if m.Type.NumOut() > 1 || (m.Type.NumOut() == 1 && !m.Type.Out(0).Implements(errViaMethod)) {
			record(meta.DefinitionError{
				Class:  declaring.Class,
				Member: od.Method,
				Cause:  fmt.Errorf("observer must return nothing or error"),
			})
			continue
		}

		var params []meta.InjectionPoint
		for i := 2; i < m.Type.NumIn(); i++ {
			if err := typematch.ValidInjectionTarget(m.Type.In(i)); err != nil {
				record(meta.InjectionError{
					Class: declaring.Class,
					Point: fmt.Sprintf("%s parameter %d", od.Method, i-1),
					Cause: err,
				})
			}
			params = append(params, meta.InjectionPoint{
				Kind:       meta.ParameterPoint,
				Type:       m.Type.In(i),
				ParamIndex: i - 1,
				Member:     od.Method,
				Owner:      declaring.Class,
			})
		}

		v.store.AddObserver(&meta.Observer{
			DeclaringBean:  declaring.ID,
			DeclaringClass: declaring.Class,
			Method:         m,
			EventType:      m.Type.In(1),
			Qualifiers:     od.Qualifiers,
			Async:          od.Async,
			Reception:      od.Reception,
			Phase:          od.Phase,
			Priority:       od.Priority,
			Params:         params,
		})
	}
}

func defaultMemberName(member string) string {
	if member == "" {
		return member
	}
	return string(member[0]|0x20) + member[1:]
}
