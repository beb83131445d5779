package dispatch

import (
	"slices"

	"github.com/pitabwire/callwire/model"
)

// Register adds descriptor tables that can be invoked by name. A table
// replaces any earlier table with the same interface name.
func (d *Dispatcher) Register(descs ...model.InterfaceDescriptor) error {
	prepared := make([]model.InterfaceDescriptor, 0, len(descs))
	for _, desc := range descs {
		if desc.Name == "" {
			return model.NewError(model.ErrInvalidDescriptor, "", "interface name is required")
		}
		seen := make(map[string]bool, len(desc.Methods))
		methods := make([]model.MethodDescriptor, len(desc.Methods))
		for i, m := range desc.Methods {
			if m.Name == "" {
				return model.Errorf(model.ErrInvalidDescriptor, desc.Name, "method %d has no name", i)
			}
			if seen[m.Name] {
				return model.Errorf(model.ErrInvalidDescriptor, desc.Name+"."+m.Name, "duplicate method")
			}
			seen[m.Name] = true
			m.Interface = desc.Name
			methods[i] = m
		}
		desc.Methods = methods

		if d.eager {
			if err := d.validateAll(desc); err != nil {
				return err
			}
		}
		prepared = append(prepared, desc)
	}

	d.mu.Lock()
	for _, desc := range prepared {
		d.tables[desc.Name] = desc
	}
	count := len(d.tables)
	d.mu.Unlock()

	d.metrics.SetDescriptorsLoaded("registered", count)
	return nil
}

// Lookup returns the registered descriptor table of iface.
func (d *Dispatcher) Lookup(iface string) (model.InterfaceDescriptor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	desc, ok := d.tables[iface]
	return desc, ok
}

// Interfaces returns the registered interface names, sorted.
func (d *Dispatcher) Interfaces() []string {
	d.mu.RLock()
	names := make([]string, 0, len(d.tables))
	for name := range d.tables {
		names = append(names, name)
	}
	d.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Invoke resolves a call on a registered descriptor table.
func (d *Dispatcher) Invoke(iface, method string, tag any, args ...any) (model.Call, error) {
	desc, ok := d.Lookup(iface)
	if !ok {
		return nil, model.Errorf(model.ErrUnknownMethod, iface+"."+method, "interface %q is not registered", iface)
	}
	m, ok := desc.Method(method)
	if !ok {
		return nil, model.Errorf(model.ErrUnknownMethod, iface+"."+method, "interface %q has no method %q", iface, method)
	}
	return d.Call(m, tag, args)
}
