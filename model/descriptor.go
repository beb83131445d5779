package model

// TagKind identifies a family of metadata tags. Verb kinds carry a path
// template as their value; KindBody carries a codec name.
type TagKind string

// Built-in tag kinds.
const (
	KindGET    TagKind = "GET"
	KindHEAD   TagKind = "HEAD"
	KindDELETE TagKind = "DELETE"
	KindPOST   TagKind = "POST"
	KindPUT    TagKind = "PUT"
	KindPATCH  TagKind = "PATCH"

	// KindBody collapses all arguments of a method into a single payload.
	// It requires a co-present verb tag.
	KindBody TagKind = "body"
)

// ArgsKey is the struct tag key listing per-parameter binding names.
const ArgsKey = "args"

// verbKinds is the set of kinds that carry an HTTP verb and a path.
var verbKinds = map[TagKind]bool{
	KindGET:    true,
	KindHEAD:   true,
	KindDELETE: true,
	KindPOST:   true,
	KindPUT:    true,
	KindPATCH:  true,
}

// IsVerb reports whether k is one of the built-in verb+path kinds.
func (k TagKind) IsVerb() bool {
	return verbKinds[k]
}

// Tag is a single (kind, value) metadata pair attached to a method.
type Tag struct {
	Kind  TagKind `yaml:"kind" json:"kind"`
	Value string  `yaml:"value" json:"value"`
}

// MethodDescriptor is the immutable metadata of one interface method.
type MethodDescriptor struct {
	Interface string `yaml:"-" json:"interface,omitempty"`
	Name      string `yaml:"name" json:"name"`
	Tags      []Tag  `yaml:"tags" json:"tags"`
	// Args holds one binding name per declared parameter. An empty entry
	// marks a parameter without a binding tag.
	Args []string `yaml:"args,omitempty" json:"args,omitempty"`
	// Arity is the declared parameter count. For descriptors without a Go
	// signature it defaults to len(Args).
	Arity int `yaml:"arity,omitempty" json:"arity,omitempty"`
}

// Tag returns the first tag of the given kind.
func (m MethodDescriptor) Tag(kind TagKind) (Tag, bool) {
	for _, t := range m.Tags {
		if t.Kind == kind {
			return t, true
		}
	}
	return Tag{}, false
}

// Has reports whether a tag of the given kind is attached.
func (m MethodDescriptor) Has(kind TagKind) bool {
	_, ok := m.Tag(kind)
	return ok
}

// HasBody reports whether the method carries the body tag.
func (m MethodDescriptor) HasBody() bool {
	return m.Has(KindBody)
}

// DeclaredArity returns Arity, falling back to the number of binding slots.
func (m MethodDescriptor) DeclaredArity() int {
	if m.Arity > 0 {
		return m.Arity
	}
	return len(m.Args)
}

// FullName returns "Interface.Method".
func (m MethodDescriptor) FullName() string {
	if m.Interface == "" {
		return m.Name
	}
	return m.Interface + "." + m.Name
}

// InterfaceDescriptor is the method table of one declared interface.
type InterfaceDescriptor struct {
	Name    string             `yaml:"interface" json:"interface"`
	Methods []MethodDescriptor `yaml:"methods" json:"methods"`

	// Checksum and SourceFile are set by file loaders.
	Checksum   string `yaml:"-" json:"checksum,omitempty"`
	SourceFile string `yaml:"-" json:"source_file,omitempty"`
}

// Method returns the descriptor of the named method.
func (d InterfaceDescriptor) Method(name string) (MethodDescriptor, bool) {
	for _, m := range d.Methods {
		if m.Name == name {
			if m.Interface == "" {
				m.Interface = d.Name
			}
			return m, true
		}
	}
	return MethodDescriptor{}, false
}

// MethodNames returns method names in declaration order.
func (d InterfaceDescriptor) MethodNames() []string {
	names := make([]string, len(d.Methods))
	for i, m := range d.Methods {
		names[i] = m.Name
	}
	return names
}
