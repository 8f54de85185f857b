package validate

import (
	"reflect"
	"sync"
)

// Level is one class level in a component's embedding chain: the component
// struct itself at depth 0, then every anonymous struct field transitively,
// deeper levels standing in for superclasses.
type Level struct {
	Type  reflect.Type
	Depth int

	// Index is the reflect field index path from the component struct down
	// to this level. Empty for the component itself.
	Index []int
}

// hierarchyCache assembles the {class level, ordered members} arena once per
// class and caches it by class identity.
type hierarchyCache struct {
	mu     sync.RWMutex
	levels map[reflect.Type][]Level
}

func newHierarchyCache() *hierarchyCache {
	return &hierarchyCache{levels: make(map[reflect.Type][]Level)}
}

// Levels returns the embedding chain of a struct type, shallowest first.
// Pointer embeds are skipped: a nil embedded pointer has no injectable
// storage, so levels behind them cannot participate in field injection.
func (h *hierarchyCache) Levels(class reflect.Type) []Level {
	h.mu.RLock()
	cached, ok := h.levels[class]
	h.mu.RUnlock()
	if ok {
		return cached
	}

	levels := collectLevels(class, 0, nil)

	h.mu.Lock()
	h.levels[class] = levels
	h.mu.Unlock()
	return levels
}

func collectLevels(t reflect.Type, depth int, index []int) []Level {
	if t.Kind() != reflect.Struct {
		return nil
	}
	own := Level{Type: t, Depth: depth, Index: append([]int(nil), index...)}
	levels := []Level{own}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.Anonymous || f.Type.Kind() != reflect.Struct {
			continue
		}
		childIndex := append(append([]int(nil), index...), i)
		levels = append(levels, collectLevels(f.Type, depth+1, childIndex)...)
	}
	return levels
}

// method looks up a method by name on the pointer type of a level.
func method(level reflect.Type, name string) (reflect.Method, bool) {
	return reflect.PointerTo(level).MethodByName(name)
}
