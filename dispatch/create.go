package dispatch

import (
	"reflect"

	"github.com/pitabwire/callwire/internal/describe"
	"github.com/pitabwire/callwire/model"
)

var (
	callType  = reflect.TypeFor[model.Call]()
	errorType = reflect.TypeFor[error]()
)

// Create fills every described function field of target, a pointer to a
// struct, with an implementation bound to this dispatcher. Calls created by
// those functions carry tag.
//
// Functions returning (model.Call, error) report resolution failures through
// the error. Functions returning only model.Call panic with the *model.Error.
func (d *Dispatcher) Create(target any, tag any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return model.Errorf(model.ErrInvalidDescriptor, "", "target must be a non-nil pointer to a struct, got %T", target)
	}

	iface, err := d.cache.Describe(rv.Type().Elem())
	if err != nil {
		return err
	}
	if d.eager {
		if err := d.validateAll(iface.Descriptor); err != nil {
			return err
		}
	}

	elem := rv.Elem()
	for _, f := range iface.Fields {
		elem.FieldByIndex(f.Index).Set(d.trampoline(f, tag))
	}
	return nil
}

// Bind allocates a T and fills it with Create.
func Bind[T any](d *Dispatcher, tag any) (*T, error) {
	v := new(T)
	if err := d.Create(v, tag); err != nil {
		return nil, err
	}
	return v, nil
}

// Describe returns the descriptor of target's struct type.
func (d *Dispatcher) Describe(target any) (model.InterfaceDescriptor, error) {
	t := reflect.TypeOf(target)
	if t == nil {
		return model.InterfaceDescriptor{}, model.NewError(model.ErrInvalidDescriptor, "", "target is nil")
	}
	iface, err := d.cache.Describe(t)
	if err != nil {
		return model.InterfaceDescriptor{}, err
	}
	return iface.Descriptor, nil
}

func (d *Dispatcher) trampoline(f describe.Field, tag any) reflect.Value {
	desc := f.Method
	return reflect.MakeFunc(f.Type, func(in []reflect.Value) []reflect.Value {
		args := make([]any, len(in))
		for i, v := range in {
			args[i] = v.Interface()
		}

		call, err := d.Call(desc, tag, args)
		if !f.ReturnsError {
			if err != nil {
				panic(err)
			}
			return []reflect.Value{callValue(call)}
		}
		return []reflect.Value{callValue(call), errorValue(err)}
	})
}

func callValue(c model.Call) reflect.Value {
	if c == nil {
		return reflect.Zero(callType)
	}
	return reflect.ValueOf(&c).Elem()
}

func errorValue(err error) reflect.Value {
	if err == nil {
		return reflect.Zero(errorType)
	}
	return reflect.ValueOf(&err).Elem()
}
