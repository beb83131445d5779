// Package openapi loads OpenAPI documents and derives interface descriptors
// from their operations, one method per operationId.
package openapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/pitabwire/callwire/model"
)

// SpecSource maps an interface name to an OpenAPI document on disk.
type SpecSource struct {
	Interface string
	SpecPath  string
}

// Operation holds an OpenAPI operation with its interface context.
type Operation struct {
	Interface    string
	OperationID  string
	Verb         string
	PathTemplate string
	// PathParams and QueryParams list parameter names in declaration order,
	// path-level parameters first.
	PathParams  []string
	QueryParams []string
	RequestBody *openapi3.RequestBody
	BaseURL     string
}

// ValidationError describes a schema validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Index is an in-memory index of OpenAPI operations keyed by
// (interface, operationId).
type Index struct {
	operations  map[string]Operation
	byInterface map[string][]string
}

// NewIndex creates an empty OpenAPI index.
func NewIndex() *Index {
	return &Index{
		operations:  make(map[string]Operation),
		byInterface: make(map[string][]string),
	}
}

func operationKey(iface, operationID string) string {
	return iface + ":" + operationID
}

// Load parses and validates OpenAPI documents and indexes every operation
// that has an operationId and a supported verb.
func (idx *Index) Load(ctx context.Context, specs []SpecSource) error {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	for _, src := range specs {
		doc, err := loader.LoadFromFile(src.SpecPath)
		if err != nil {
			return fmt.Errorf("openapi: loading %s (%s): %w", src.Interface, src.SpecPath, err)
		}
		if err := doc.Validate(ctx); err != nil {
			return fmt.Errorf("openapi: validating %s: %w", src.Interface, err)
		}
		idx.add(src.Interface, doc)
	}
	return nil
}

func (idx *Index) add(iface string, doc *openapi3.T) {
	var baseURL string
	if len(doc.Servers) > 0 {
		baseURL = doc.Servers[0].URL
	}

	for path, pathItem := range doc.Paths.Map() {
		for method, op := range pathItem.Operations() {
			if op.OperationID == "" || !model.TagKind(method).IsVerb() {
				continue
			}

			indexed := Operation{
				Interface:    iface,
				OperationID:  op.OperationID,
				Verb:         method,
				PathTemplate: path,
				BaseURL:      baseURL,
			}
			for _, params := range []openapi3.Parameters{pathItem.Parameters, op.Parameters} {
				for _, ref := range params {
					if ref == nil || ref.Value == nil {
						continue
					}
					switch ref.Value.In {
					case openapi3.ParameterInPath:
						indexed.PathParams = append(indexed.PathParams, ref.Value.Name)
					case openapi3.ParameterInQuery:
						indexed.QueryParams = append(indexed.QueryParams, ref.Value.Name)
					}
				}
			}
			if op.RequestBody != nil && op.RequestBody.Value != nil {
				indexed.RequestBody = op.RequestBody.Value
			}

			key := operationKey(iface, op.OperationID)
			if _, exists := idx.operations[key]; !exists {
				idx.byInterface[iface] = append(idx.byInterface[iface], op.OperationID)
			}
			idx.operations[key] = indexed
		}
	}
}

// GetOperation returns the indexed operation for the given interface and
// operation ID.
func (idx *Index) GetOperation(iface, operationID string) (Operation, bool) {
	op, ok := idx.operations[operationKey(iface, operationID)]
	return op, ok
}

// OperationForMethod returns the operation whose derived method name is
// method.
func (idx *Index) OperationForMethod(iface, method string) (Operation, bool) {
	for _, id := range idx.byInterface[iface] {
		if MethodName(id) == method {
			return idx.operations[operationKey(iface, id)], true
		}
	}
	return Operation{}, false
}

// AllOperationIDs returns all operation IDs of the given interface, sorted.
func (idx *Index) AllOperationIDs(iface string) []string {
	ids := make([]string, len(idx.byInterface[iface]))
	copy(ids, idx.byInterface[iface])
	sort.Strings(ids)
	return ids
}

// Interfaces returns the indexed interface names, sorted.
func (idx *Index) Interfaces() []string {
	names := make([]string, 0, len(idx.byInterface))
	for name := range idx.byInterface {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors converts every indexed interface into a descriptor table.
// Methods are named after their operationId and sorted by name.
func (idx *Index) Descriptors() []model.InterfaceDescriptor {
	var descs []model.InterfaceDescriptor
	for _, iface := range idx.Interfaces() {
		desc := model.InterfaceDescriptor{Name: iface, SourceFile: "openapi"}
		for _, id := range idx.AllOperationIDs(iface) {
			op := idx.operations[operationKey(iface, id)]
			desc.Methods = append(desc.Methods, op.Descriptor())
		}
		sort.SliceStable(desc.Methods, func(i, j int) bool { return desc.Methods[i].Name < desc.Methods[j].Name })
		descs = append(descs, desc)
	}
	return descs
}

// Descriptor converts the operation into a method descriptor. Operations
// with a request body become body methods whose path placeholders are filled
// from the payload. Other operations bind path then query parameters.
func (op Operation) Descriptor() model.MethodDescriptor {
	m := model.MethodDescriptor{
		Interface: op.Interface,
		Name:      MethodName(op.OperationID),
		Tags:      []model.Tag{{Kind: model.TagKind(op.Verb), Value: op.PathTemplate}},
	}
	if op.RequestBody != nil {
		m.Tags = append(m.Tags, model.Tag{Kind: model.KindBody, Value: bodyCodec(op.RequestBody)})
		m.Arity = 1
		return m
	}
	m.Args = append(append(m.Args, op.PathParams...), op.QueryParams...)
	return m
}

// MethodName turns an operationId such as "list-orders" or "listOrders" into
// an exported Go method name.
func MethodName(operationID string) string {
	parts := strings.FieldsFunc(operationID, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for _, p := range parts {
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

func bodyCodec(body *openapi3.RequestBody) string {
	switch {
	case body.Content.Get("application/json") != nil:
		return "json"
	case body.Content.Get("application/x-www-form-urlencoded") != nil:
		return "form"
	case body.Content.Get("application/yaml") != nil:
		return "yaml"
	}
	return "json"
}

// ValidateRequest validates a request body against the operation's JSON
// request schema. Returns an empty slice if valid.
func (idx *Index) ValidateRequest(iface, operationID string, body map[string]any) []ValidationError {
	op, ok := idx.operations[operationKey(iface, operationID)]
	if !ok {
		return []ValidationError{{Message: fmt.Sprintf("operation %s/%s not found", iface, operationID)}}
	}

	if op.RequestBody == nil {
		return nil
	}

	ct := op.RequestBody.Content.Get("application/json")
	if ct == nil || ct.Schema == nil || ct.Schema.Value == nil {
		return nil
	}

	err := ct.Schema.Value.VisitJSON(body, openapi3.MultiErrors())
	if err == nil {
		return nil
	}

	var errs []ValidationError
	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		for _, e := range multi {
			errs = append(errs, toValidationError(e))
		}
		return errs
	}
	return []ValidationError{toValidationError(err)}
}

func toValidationError(err error) ValidationError {
	var se *openapi3.SchemaError
	if errors.As(err, &se) {
		field := strings.Join(se.JSONPointer(), ".")
		if se.SchemaField == "required" && field == "" {
			field = requiredField(se.Reason)
		}
		return ValidationError{Field: field, Message: se.Reason}
	}
	return ValidationError{Message: err.Error()}
}

// requiredField extracts the property name from a kin-openapi
// `property "x" is missing` reason.
func requiredField(reason string) string {
	start := strings.IndexByte(reason, '"')
	end := strings.LastIndexByte(reason, '"')
	if start < 0 || end <= start {
		return ""
	}
	return reason[start+1 : end]
}

// ToModelError converts validation errors into a VALIDATION_ERROR.
func ToModelError(method string, verrs []ValidationError) error {
	if len(verrs) == 0 {
		return nil
	}
	details := make([]model.FieldError, len(verrs))
	for i, v := range verrs {
		details[i] = model.FieldError{Field: v.Field, Code: "schema", Message: v.Message}
	}
	return model.NewValidationError(method, details)
}
