package model

// BodyKey is the sentinel key under which a body-tagged method stores its
// single payload argument.
const BodyKey = "__body__"

// Param is one bound argument.
type Param struct {
	Key   string
	Value any
}

// Params is an ordered multimap of bound arguments. Keys may repeat and
// insertion order is preserved. A Params value is built per invocation and
// is not safe for concurrent mutation.
type Params struct {
	entries []Param
}

// NewParams creates an empty bag with room for n entries.
func NewParams(n int) *Params {
	return &Params{entries: make([]Param, 0, n)}
}

// Add appends an entry.
func (p *Params) Add(key string, value any) {
	p.entries = append(p.entries, Param{Key: key, Value: value})
}

// Len returns the number of entries.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// Entries returns a copy of the entries in insertion order.
func (p *Params) Entries() []Param {
	if p == nil {
		return nil
	}
	out := make([]Param, len(p.entries))
	copy(out, p.entries)
	return out
}

// Get returns the value of the first entry with the given key.
func (p *Params) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	for _, e := range p.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// GetAll returns the values of every entry with the given key.
func (p *Params) GetAll(key string) []any {
	if p == nil {
		return nil
	}
	var out []any
	for _, e := range p.entries {
		if e.Key == key {
			out = append(out, e.Value)
		}
	}
	return out
}

// Keys returns the entry keys in insertion order, duplicates included.
func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, len(p.entries))
	for i, e := range p.entries {
		keys[i] = e.Key
	}
	return keys
}

// Body returns the payload stored under BodyKey.
func (p *Params) Body() (any, bool) {
	return p.Get(BodyKey)
}
