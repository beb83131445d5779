package describe

import (
	"errors"
	"reflect"
	"testing"

	"github.com/pitabwire/callwire/model"
)

type user struct {
	Name string `json:"name"`
}

type userAPI struct {
	List    func(name string) (model.Call, error)       `POST:"/users/list" args:"name"`
	Create  func(u user) model.Call                     `body:"json" POST:"/users/create"`
	Search  func(q string, page int) (model.Call, error) `GET:"/users" args:"q, page"`
	Ping    func() model.Call
	Skipped func() model.Call `callwire:"-" GET:"/skip"`
	Helper  func(string) string
	Version string
}

func TestType_extractsTaggedFunctions(t *testing.T) {
	iface, err := Type(reflect.TypeFor[userAPI]())
	if err != nil {
		t.Fatalf("Type() error = %v", err)
	}

	if iface.Descriptor.Name != "userAPI" {
		t.Errorf("Name = %q, want userAPI", iface.Descriptor.Name)
	}
	wantNames := []string{"List", "Create", "Search", "Ping"}
	if got := iface.Descriptor.MethodNames(); !reflect.DeepEqual(got, wantNames) {
		t.Errorf("MethodNames() = %v, want %v", got, wantNames)
	}

	list, ok := iface.Descriptor.Method("List")
	if !ok {
		t.Fatal("List not described")
	}
	if want := []model.Tag{{Kind: model.KindPOST, Value: "/users/list"}}; !reflect.DeepEqual(list.Tags, want) {
		t.Errorf("List.Tags = %v, want %v", list.Tags, want)
	}
	if !reflect.DeepEqual(list.Args, []string{"name"}) || list.Arity != 1 {
		t.Errorf("List args, arity = %v, %d", list.Args, list.Arity)
	}
	if list.Interface != "userAPI" {
		t.Errorf("List.Interface = %q", list.Interface)
	}

	// Tags keep declaration order.
	create, _ := iface.Descriptor.Method("Create")
	wantTags := []model.Tag{
		{Kind: model.KindBody, Value: "json"},
		{Kind: model.KindPOST, Value: "/users/create"},
	}
	if !reflect.DeepEqual(create.Tags, wantTags) {
		t.Errorf("Create.Tags = %v, want %v", create.Tags, wantTags)
	}
	if create.Args != nil {
		t.Errorf("Create.Args = %v, want nil", create.Args)
	}

	search, _ := iface.Descriptor.Method("Search")
	if !reflect.DeepEqual(search.Args, []string{"q", "page"}) || search.Arity != 2 {
		t.Errorf("Search args, arity = %v, %d", search.Args, search.Arity)
	}

	if len(iface.Fields) != 4 {
		t.Fatalf("Fields = %d, want 4", len(iface.Fields))
	}
	if !iface.Fields[0].ReturnsError || iface.Fields[1].ReturnsError {
		t.Errorf("ReturnsError = %v, %v, want true, false", iface.Fields[0].ReturnsError, iface.Fields[1].ReturnsError)
	}
}

func TestType_acceptsPointer(t *testing.T) {
	iface, err := Type(reflect.TypeFor[*userAPI]())
	if err != nil {
		t.Fatalf("Type() error = %v", err)
	}
	if got := iface.Type.Name(); got != "userAPI" {
		t.Errorf("Type.Name() = %q, want userAPI", got)
	}
}

func TestType_rejectsInvalidDeclarations(t *testing.T) {
	type notFunc struct {
		Path string `GET:"/x"`
	}
	type badResult struct {
		Get func() error `GET:"/x"`
	}
	type variadic struct {
		Get func(ids ...int) model.Call `GET:"/x" args:"ids"`
	}

	tests := []struct {
		name string
		typ  reflect.Type
	}{
		{"non struct", reflect.TypeFor[int]()},
		{"tagged non function", reflect.TypeFor[notFunc]()},
		{"bad result", reflect.TypeFor[badResult]()},
		{"variadic", reflect.TypeFor[variadic]()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Type(tt.typ); !errors.Is(err, model.InvalidDescriptor) {
				t.Errorf("Type() error = %v, want INVALID_DESCRIPTOR", err)
			}
		})
	}
}

func TestParseTag(t *testing.T) {
	tags, args, err := ParseTag(`GET:"/a" POST:"/b" args:"x,,y" json:"-"`)
	if err != nil {
		t.Fatalf("ParseTag() error = %v", err)
	}
	wantTags := []model.Tag{
		{Kind: "GET", Value: "/a"},
		{Kind: "POST", Value: "/b"},
		{Kind: "json", Value: "-"},
	}
	if !reflect.DeepEqual(tags, wantTags) {
		t.Errorf("tags = %v, want %v", tags, wantTags)
	}
	if want := []string{"x", "", "y"}; !reflect.DeepEqual(args, want) {
		t.Errorf("args = %q, want %q", args, want)
	}

	tags, args, err = ParseTag(``)
	if err != nil || tags != nil || args != nil {
		t.Errorf("ParseTag(empty) = %v, %v, %v", tags, args, err)
	}
}

func TestParseTag_malformed(t *testing.T) {
	for _, tag := range []reflect.StructTag{
		reflect.StructTag("GET:/x"),
		reflect.StructTag(`GET:"/a`),
		reflect.StructTag(`:"/a"`),
	} {
		if _, _, err := ParseTag(tag); err == nil {
			t.Errorf("ParseTag(%q) should fail", tag)
		}
	}
}

func TestCache_Describe(t *testing.T) {
	c, err := NewCache(2)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}

	first, err := c.Describe(reflect.TypeFor[userAPI]())
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	second, err := c.Describe(reflect.TypeFor[userAPI]())
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if first != second {
		t.Error("second Describe() should return the cached interface")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}

	// Failures are not cached.
	if _, err := c.Describe(reflect.TypeFor[int]()); err == nil {
		t.Error("Describe(int) should fail")
	}
	if c.Len() != 1 {
		t.Errorf("Len() after failure = %d, want 1", c.Len())
	}
}
