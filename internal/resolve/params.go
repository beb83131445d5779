package resolve

import "github.com/pitabwire/callwire/model"

// BuildParams binds invocation arguments into a parameter bag.
func BuildParams(desc model.MethodDescriptor, res Resolution, args []any) (*model.Params, error) {
	if len(args) == 0 {
		return model.NewParams(0), nil
	}

	if res.Body() {
		p := model.NewParams(1)
		p.Add(model.BodyKey, args[0])
		return p, nil
	}

	if len(desc.Args) != len(args) {
		return nil, model.Errorf(model.ErrArityMismatch, desc.FullName(),
			"method declares %d parameter binding(s), got %d argument(s)", len(desc.Args), len(args))
	}
	p := model.NewParams(len(args))
	for i, key := range desc.Args {
		if key == "" {
			return nil, model.Errorf(model.ErrMissingParameterTag, desc.FullName(),
				"parameter %d has no binding name", i)
		}
		p.Add(key, args[i])
	}
	return p, nil
}

// CheckBindings validates a method's binding names against its declared
// arity without invoking it.
func CheckBindings(desc model.MethodDescriptor, res Resolution) error {
	arity := desc.DeclaredArity()
	if res.Body() || arity == 0 {
		return nil
	}
	if len(desc.Args) != arity {
		return model.Errorf(model.ErrArityMismatch, desc.FullName(),
			"method declares %d parameter(s) but %d binding name(s)", arity, len(desc.Args))
	}
	for i, key := range desc.Args {
		if key == "" {
			return model.Errorf(model.ErrMissingParameterTag, desc.FullName(),
				"parameter %d has no binding name", i)
		}
	}
	return nil
}
