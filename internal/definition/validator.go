package definition

import (
	"fmt"
	"regexp"

	"github.com/pitabwire/callwire/model"
)

var placeholderRe = regexp.MustCompile(`\{([^{}/]+)\}`)

// VError describes a single validation error in a descriptor table.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator checks descriptor tables structurally before they reach the
// dispatcher. Resolution rules themselves are enforced by the dispatcher.
type Validator struct {
	kinds map[model.TagKind]bool
}

// NewValidator creates a Validator accepting the given tag kinds. A nil
// slice accepts the built-in kinds.
func NewValidator(kinds []model.TagKind) *Validator {
	if kinds == nil {
		kinds = []model.TagKind{
			model.KindGET, model.KindHEAD, model.KindDELETE,
			model.KindPOST, model.KindPUT, model.KindPATCH, model.KindBody,
		}
	}
	v := &Validator{kinds: make(map[model.TagKind]bool, len(kinds))}
	for _, k := range kinds {
		v.kinds[k] = true
	}
	return v
}

// Validate checks all descriptors and returns every problem found.
func (v *Validator) Validate(descs []model.InterfaceDescriptor) []VError {
	var errs []VError
	seen := make(map[string]bool)
	for i, d := range descs {
		prefix := fmt.Sprintf("interfaces[%d]", i)
		if d.SourceFile != "" {
			prefix = d.SourceFile + ":" + prefix
		}
		if d.Name == "" {
			errs = append(errs, VError{Path: prefix + ".interface", Code: "REQUIRED", Message: "interface name is required"})
		} else if seen[d.Name] {
			errs = append(errs, VError{Path: prefix + ".interface", Code: "DUPLICATE", Message: fmt.Sprintf("interface %q is declared more than once", d.Name)})
		}
		seen[d.Name] = true
		errs = append(errs, v.validateInterface(prefix, d)...)
	}
	return errs
}

func (v *Validator) validateInterface(prefix string, d model.InterfaceDescriptor) []VError {
	var errs []VError
	if len(d.Methods) == 0 {
		errs = append(errs, VError{Path: prefix + ".methods", Code: "REQUIRED", Message: "at least one method is required"})
	}
	names := make(map[string]bool, len(d.Methods))
	for i, m := range d.Methods {
		mp := fmt.Sprintf("%s.methods[%d]", prefix, i)
		if m.Name == "" {
			errs = append(errs, VError{Path: mp + ".name", Code: "REQUIRED", Message: "method name is required"})
		} else if names[m.Name] {
			errs = append(errs, VError{Path: mp + ".name", Code: "DUPLICATE", Message: fmt.Sprintf("method %q is declared more than once", m.Name)})
		}
		names[m.Name] = true
		errs = append(errs, v.validateMethod(mp, m)...)
	}
	return errs
}

func (v *Validator) validateMethod(prefix string, m model.MethodDescriptor) []VError {
	var errs []VError
	if len(m.Tags) == 0 {
		errs = append(errs, VError{Path: prefix + ".tags", Code: "REQUIRED", Message: "at least one tag is required"})
	}

	var path string
	for i, t := range m.Tags {
		tp := fmt.Sprintf("%s.tags[%d]", prefix, i)
		if !v.kinds[t.Kind] {
			errs = append(errs, VError{Path: tp, Code: "UNKNOWN_KIND", Message: fmt.Sprintf("tag kind %q has no registered strategy", t.Kind)})
			continue
		}
		if t.Kind != model.KindBody && path == "" {
			path = t.Value
		}
	}

	if m.Arity > 0 && len(m.Args) > 0 && m.Arity != len(m.Args) {
		errs = append(errs, VError{
			Path:    prefix + ".args",
			Code:    "ARITY",
			Message: fmt.Sprintf("%d binding names for arity %d", len(m.Args), m.Arity),
		})
	}

	if m.HasBody() {
		return errs
	}
	bound := make(map[string]bool, len(m.Args))
	for i, a := range m.Args {
		if a == "" {
			errs = append(errs, VError{Path: fmt.Sprintf("%s.args[%d]", prefix, i), Code: "REQUIRED", Message: "binding name is empty"})
		}
		bound[a] = true
	}
	for _, match := range placeholderRe.FindAllStringSubmatch(path, -1) {
		if !bound[match[1]] {
			errs = append(errs, VError{
				Path:    prefix + ".path",
				Code:    "UNBOUND_PLACEHOLDER",
				Message: fmt.Sprintf("placeholder {%s} has no matching argument", match[1]),
			})
		}
	}
	return errs
}
