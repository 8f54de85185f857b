package validate

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gocdi/gocdi/internal/meta"
	"github.com/gocdi/gocdi/internal/typematch"
)

// injectTag is the struct tag marking a field as an injection point.
//
//	DB    Database         `inject:""`
//	Fast  PaymentProcessor `inject:"qualifier=Fast"`
//	Prim  Connection       `inject:"name=primary"`
//	Next  PaymentProcessor `inject:"delegate"`
const injectTag = "inject"

type tagInfo struct {
	qualifiers meta.Qualifiers
	delegate   bool
}

func parseInjectTag(tag string) (tagInfo, error) {
	info := tagInfo{}
	if tag == "" {
		return info, nil
	}
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part == "delegate" {
			info.delegate = true
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return info, fmt.Errorf("malformed inject tag entry %q", part)
		}
		switch key {
		case "name":
			info.qualifiers = append(info.qualifiers, meta.Named(value))
		case "qualifier":
			info.qualifiers = append(info.qualifiers, meta.NewQualifier(value))
		default:
			return info, fmt.Errorf("unknown inject tag key %q", key)
		}
	}
	return info, nil
}

// collectFieldPoints walks every class level of the embedding chain and
// returns the tagged injection points, deepest level first so inherited
// fields are injected before the component's own. Invalid targets are
// reported through the record callback and excluded.
func collectFieldPoints(class reflect.Type, levels []Level, record func(error)) ([]meta.InjectionPoint, []meta.InjectionPoint) {
	var points []meta.InjectionPoint
	var delegates []meta.InjectionPoint

	for i := len(levels) - 1; i >= 0; i-- {
		level := levels[i]
		for fi := 0; fi < level.Type.NumField(); fi++ {
			f := level.Type.Field(fi)
			tag, ok := f.Tag.Lookup(injectTag)
			if !ok {
				continue
			}
			info, err := parseInjectTag(tag)
			if err != nil {
				record(meta.InjectionError{Class: class, Point: "field " + f.Name, Cause: err})
				continue
			}
			if !f.IsExported() {
				record(meta.InjectionError{
					Class: class,
					Point: "field " + f.Name,
					Cause: fmt.Errorf("unexported fields cannot be injected"),
				})
				continue
			}
			if err := typematch.ValidInjectionTarget(f.Type); err != nil {
				record(meta.InjectionError{Class: class, Point: "field " + f.Name, Cause: err})
				continue
			}
			point := meta.InjectionPoint{
				Kind:       meta.FieldPoint,
				Type:       f.Type,
				Qualifiers: info.qualifiers,
				FieldIndex: append(append([]int(nil), level.Index...), fi),
				FieldName:  f.Name,
				Owner:      level.Type,
			}
			if info.delegate {
				point.Kind = meta.DelegatePoint
				delegates = append(delegates, point)
				continue
			}
			points = append(points, point)
		}
	}
	return points, delegates
}

// paramPoints builds injection points for the parameters of a function or
// method, starting at the given offset (1 for methods, to skip the
// receiver). Invalid parameter types are reported and the point is still
// emitted so arity stays aligned for diagnostics.
func paramPoints(class reflect.Type, fn reflect.Type, offset int, member string, quals map[int]meta.Qualifiers, record func(error)) []meta.InjectionPoint {
	points := make([]meta.InjectionPoint, 0, fn.NumIn()-offset)
	for i := offset; i < fn.NumIn(); i++ {
		paramType := fn.In(i)
		logical := i - offset
		if err := typematch.ValidInjectionTarget(paramType); err != nil {
			point := member
			if point == "" {
				point = "constructor"
			}
			record(meta.InjectionError{
				Class: class,
				Point: fmt.Sprintf("%s parameter %d", point, logical),
				Cause: err,
			})
		}
		points = append(points, meta.InjectionPoint{
			Kind:       meta.ParameterPoint,
			Type:       paramType,
			Qualifiers: quals[logical],
			ParamIndex: logical,
			Member:     member,
			Owner:      class,
		})
	}
	return points
}
