// Package describe extracts interface descriptors from Go struct types whose
// exported function fields carry metadata in their struct tags:
//
//	type UserAPI struct {
//		List   func(name string) (model.Call, error) `POST:"/users/list" args:"name"`
//		Create func(u User) model.Call               `POST:"/users/create" body:"json"`
//	}
//
// Every tag key other than "args" becomes a model.Tag in declaration order.
// Descriptors are built once per type and cached.
package describe

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pitabwire/callwire/model"
)

// DefaultCacheSize bounds the number of struct types whose descriptors are
// kept in memory.
var DefaultCacheSize = 256

// SkipKey is the struct tag that excludes a function field: `callwire:"-"`.
const SkipKey = "callwire"

var (
	callType  = reflect.TypeFor[model.Call]()
	errorType = reflect.TypeFor[error]()
)

// Field binds one function field of a struct to its method descriptor.
type Field struct {
	Index        []int
	Type         reflect.Type
	ReturnsError bool
	Method       model.MethodDescriptor
}

// Interface is the described form of a struct type.
type Interface struct {
	Type       reflect.Type
	Descriptor model.InterfaceDescriptor
	Fields     []Field
}

// Cache memoizes Interface values by struct type. It is safe for
// concurrent use.
type Cache struct {
	entries *lru.Cache[reflect.Type, *Interface]
}

// NewCache creates a cache holding at most size types. A size below 1
// selects DefaultCacheSize.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[reflect.Type, *Interface](size)
	if err != nil {
		return nil, fmt.Errorf("describe: creating LRU: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Describe returns the cached descriptor for t, building it on a miss.
func (c *Cache) Describe(t reflect.Type) (*Interface, error) {
	if iface, ok := c.entries.Get(t); ok {
		return iface, nil
	}
	iface, err := Type(t)
	if err != nil {
		return nil, err
	}
	c.entries.Add(t, iface)
	return iface, nil
}

// Len returns the number of cached types.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Type builds the Interface of a struct type (or pointer to struct type).
func Type(t reflect.Type) (*Interface, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, model.Errorf(model.ErrInvalidDescriptor, t.String(),
			"expected a struct of function fields, got %s", t.Kind())
	}

	iface := &Interface{
		Type:       t,
		Descriptor: model.InterfaceDescriptor{Name: t.Name()},
	}

	for _, sf := range reflect.VisibleFields(t) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		if v, ok := sf.Tag.Lookup(SkipKey); ok && v == "-" {
			continue
		}

		name := t.Name() + "." + sf.Name
		tags, args, err := ParseTag(sf.Tag)
		if err != nil {
			return nil, model.Errorf(model.ErrInvalidDescriptor, name, "malformed struct tag: %v", err)
		}

		if sf.Type.Kind() != reflect.Func {
			if len(tags) > 0 {
				return nil, model.Errorf(model.ErrInvalidDescriptor, name,
					"tagged field must be a function, got %s", sf.Type)
			}
			continue
		}

		returnsError, err := checkSignature(sf.Type)
		if err != nil {
			if len(tags) == 0 && args == nil {
				continue
			}
			return nil, model.Errorf(model.ErrInvalidDescriptor, name, "%v", err)
		}

		m := model.MethodDescriptor{
			Interface: t.Name(),
			Name:      sf.Name,
			Tags:      tags,
			Args:      args,
			Arity:     sf.Type.NumIn(),
		}
		iface.Descriptor.Methods = append(iface.Descriptor.Methods, m)
		iface.Fields = append(iface.Fields, Field{
			Index:        sf.Index,
			Type:         sf.Type,
			ReturnsError: returnsError,
			Method:       m,
		})
	}

	return iface, nil
}

// checkSignature accepts func(...) model.Call and func(...) (model.Call, error).
func checkSignature(ft reflect.Type) (returnsError bool, err error) {
	if ft.IsVariadic() {
		return false, fmt.Errorf("variadic functions cannot be bound")
	}
	switch ft.NumOut() {
	case 1:
		if ft.Out(0) != callType {
			return false, fmt.Errorf("result must be model.Call, got %s", ft.Out(0))
		}
		return false, nil
	case 2:
		if ft.Out(0) != callType || ft.Out(1) != errorType {
			return false, fmt.Errorf("results must be (model.Call, error), got (%s, %s)", ft.Out(0), ft.Out(1))
		}
		return true, nil
	default:
		return false, fmt.Errorf("function must return model.Call or (model.Call, error)")
	}
}

// ParseTag splits a struct tag into ordered metadata tags and binding names.
// The "args" key yields the binding names, split on commas; the skip key is
// dropped.
func ParseTag(tag reflect.StructTag) ([]model.Tag, []string, error) {
	var (
		tags []model.Tag
		args []string
	)
	s := string(tag)
	for s != "" {
		i := 0
		for i < len(s) && s[i] == ' ' {
			i++
		}
		s = s[i:]
		if s == "" {
			break
		}

		i = 0
		for i < len(s) && s[i] > ' ' && s[i] != ':' && s[i] != '"' && s[i] != 0x7f {
			i++
		}
		if i == 0 || i+1 >= len(s) || s[i] != ':' || s[i+1] != '"' {
			return nil, nil, fmt.Errorf("bad syntax near %q", s)
		}
		key := s[:i]
		s = s[i+1:]

		i = 1
		for i < len(s) && s[i] != '"' {
			if s[i] == '\\' {
				i++
			}
			i++
		}
		if i >= len(s) {
			return nil, nil, fmt.Errorf("unterminated value for key %q", key)
		}
		value, err := strconv.Unquote(s[:i+1])
		if err != nil {
			return nil, nil, fmt.Errorf("key %q: %w", key, err)
		}
		s = s[i+1:]

		switch key {
		case model.ArgsKey:
			args = SplitArgs(value)
		case SkipKey:
		default:
			tags = append(tags, model.Tag{Kind: model.TagKind(key), Value: value})
		}
	}
	return tags, args, nil
}

// SplitArgs splits a comma separated list of binding names. Empty slots are
// kept so that a missing binding can be reported for its position.
func SplitArgs(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
