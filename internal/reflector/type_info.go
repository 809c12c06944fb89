// Package reflector caches type metadata so repeated name lookups for
// event and aggregate types stay cheap.
package reflector

import (
	"reflect"
	"sync"
)

// Info holds metadata about a reflected type.
type Info struct {
	Name string       // qualified as "pkg/path.TypeName"
	Type reflect.Type // pointer-unwrapped type
}

// infoCache memoizes Info per type. A program declares a small fixed set of
// event and aggregate types, so the cap exists only to contain pathological
// reflect.Type churn; hitting it drops the whole map.
type infoCache struct {
	mu  sync.RWMutex
	cap int
	m   map[reflect.Type]Info
}

var types = &infoCache{cap: 1024, m: map[reflect.Type]Info{}}

func (c *infoCache) get(t reflect.Type) (Info, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.m[t]
	return info, ok
}

// put stores info unless another goroutine won the race, in which case the
// first entry wins and is returned.
func (c *infoCache) put(t reflect.Type, info Info) Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.m[t]; ok {
		return prev
	}
	if len(c.m) >= c.cap {
		c.m = map[reflect.Type]Info{}
	}
	c.m[t] = info
	return info
}

// InfoOf returns Info for the dynamic type of x.
func InfoOf(x any) Info {
	return InfoForType(reflect.TypeOf(x))
}

// InfoFor returns Info for type parameter T.
func InfoFor[T any]() Info {
	return InfoForType(reflect.TypeFor[T]())
}

// InfoForType returns Info for the given reflect.Type. Pointer types resolve
// to their element type so *T and T share one entry. Safe for concurrent use.
func InfoForType(t reflect.Type) Info {
	if t == nil {
		return Info{}
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if info, ok := types.get(t); ok {
		return info
	}
	return types.put(t, Info{Name: t.PkgPath() + "." + t.Name(), Type: t})
}
