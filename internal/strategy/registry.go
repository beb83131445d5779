// Package strategy holds the call-strategy registry and the built-in
// strategies that turn a resolved request into a Call.
package strategy

import (
	"fmt"
	"slices"

	"github.com/pitabwire/callwire/model"
)

// Registry maps tag kinds to Call constructors. Kinds keep registration
// order, which is the order the resolver probes a method's tags in. A
// frozen registry is read-only and safe for concurrent use without locking.
type Registry struct {
	kinds  []model.TagKind
	ctors  map[model.TagKind]model.Constructor
	frozen bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[model.TagKind]model.Constructor)}
}

// Register adds a constructor for kind. Registering a kind twice, a nil
// constructor, or registering after Freeze panics, since each indicates a
// wiring mistake at startup.
func (r *Registry) Register(kind model.TagKind, ctor model.Constructor) {
	if r.frozen {
		panic(fmt.Sprintf("strategy: registry is frozen, cannot register %q", kind))
	}
	if ctor == nil {
		panic(fmt.Sprintf("strategy: nil constructor for %q", kind))
	}
	if _, exists := r.ctors[kind]; exists {
		panic(fmt.Sprintf("strategy: kind %q already registered", kind))
	}
	r.ctors[kind] = ctor
	r.kinds = append(r.kinds, kind)
}

// Lookup returns the constructor registered for kind.
func (r *Registry) Lookup(kind model.TagKind) (model.Constructor, bool) {
	ctor, ok := r.ctors[kind]
	return ctor, ok
}

// Kinds returns the registered kinds in registration order.
func (r *Registry) Kinds() []model.TagKind {
	return slices.Clone(r.kinds)
}

// Len returns the number of registered kinds.
func (r *Registry) Len() int {
	return len(r.kinds)
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	return r.frozen
}

// Clone returns an unfrozen copy.
func (r *Registry) Clone() *Registry {
	c := NewRegistry()
	for _, k := range r.kinds {
		c.Register(k, r.ctors[k])
	}
	return c
}

// Builtin returns an unfrozen registry holding the built-in strategies in
// their canonical order: query verbs, form verbs, then the body strategy.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register(model.KindGET, Query)
	r.Register(model.KindHEAD, Query)
	r.Register(model.KindDELETE, Query)
	r.Register(model.KindPOST, Form)
	r.Register(model.KindPUT, Form)
	r.Register(model.KindPATCH, Form)
	r.Register(model.KindBody, Body)
	return r
}
