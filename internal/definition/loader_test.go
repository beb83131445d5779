package definition

import (
	"testing"

	"github.com/pitabwire/callwire/model"
)

func TestLoader_LoadFile(t *testing.T) {
	l := NewLoader()
	descs, err := l.LoadFile("testdata/users/users.yaml")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(descs) != 1 {
		t.Fatalf("LoadFile() returned %d interfaces, want 1", len(descs))
	}

	d := descs[0]
	if d.Name != "Users" {
		t.Errorf("Name = %q, want Users", d.Name)
	}
	if got := d.MethodNames(); len(got) != 3 || got[0] != "List" || got[2] != "Get" {
		t.Errorf("MethodNames() = %v", got)
	}
	if d.Checksum == "" {
		t.Error("Checksum should not be empty")
	}
	if d.SourceFile != "testdata/users/users.yaml" {
		t.Errorf("SourceFile = %q", d.SourceFile)
	}

	list, ok := d.Method("List")
	if !ok {
		t.Fatal("Method(List) not found")
	}
	if list.Interface != "Users" {
		t.Errorf("Interface = %q, want Users", list.Interface)
	}
	tag, ok := list.Tag(model.KindPOST)
	if !ok || tag.Value != "/users/list" {
		t.Errorf("POST tag = %+v, %v", tag, ok)
	}
	if len(list.Args) != 1 || list.Args[0] != "name" {
		t.Errorf("Args = %v, want [name]", list.Args)
	}

	create, _ := d.Method("Create")
	if !create.HasBody() || create.DeclaredArity() != 1 {
		t.Errorf("Create = %+v", create)
	}
	if create.Tags[0].Kind != model.KindPOST || create.Tags[1].Kind != model.KindBody {
		t.Errorf("tag order = %+v, want POST then body", create.Tags)
	}

	get, _ := d.Method("Get")
	if len(get.Args) != 2 || get.Args[0] != "id" || get.Args[1] != "verbose" {
		t.Errorf("comma separated Args = %v", get.Args)
	}
}

func TestLoader_LoadFile_multiple_documents(t *testing.T) {
	l := NewLoader()
	descs, err := l.LoadFile("testdata/users/billing.yml")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(descs) != 2 {
		t.Fatalf("LoadFile() returned %d interfaces, want 2", len(descs))
	}
	if descs[0].Checksum != descs[1].Checksum {
		t.Error("documents of one file should share the file checksum")
	}

	refund, ok := descs[1].Method("Refund")
	if !ok {
		t.Fatal("Method(Refund) not found")
	}
	tag, ok := refund.Tag(model.KindPUT)
	if !ok || tag.Value != "/payments/{id}/refund" {
		t.Errorf("PUT tag = %+v, %v", tag, ok)
	}
}

func TestLoader_LoadFile_not_found(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadFile("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("LoadFile() with missing file should return error")
	}
}

func TestLoader_LoadFile_invalid_yaml(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadFile("testdata/invalid/bad.yaml")
	if err == nil {
		t.Fatal("LoadFile() with invalid YAML should return error")
	}
}

func TestLoader_LoadAll(t *testing.T) {
	l := NewLoader()
	descs, err := l.LoadAll([]string{"testdata/users"})
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(descs) != 3 {
		t.Fatalf("LoadAll() returned %d interfaces, want 3", len(descs))
	}
}

func TestLoader_LoadAll_file_path(t *testing.T) {
	l := NewLoader()
	descs, err := l.LoadAll([]string{"testdata/users/users.yaml"})
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(descs) != 1 || descs[0].Name != "Users" {
		t.Errorf("LoadAll() = %+v", descs)
	}
}

func TestLoader_LoadAll_invalid_dir(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadAll([]string{"testdata/nonexistent"})
	if err == nil {
		t.Fatal("LoadAll() with missing directory should return error")
	}
}

func TestParse_errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"method not a mapping", "interface: X\nmethods:\n  - just-a-string\n"},
		{"tag value not scalar", "interface: X\nmethods:\n  - name: A\n    GET: [a, b]\n"},
		{"args mapping", "interface: X\nmethods:\n  - name: A\n    GET: /a\n    args: {a: b}\n"},
		{"bad arity", "interface: X\nmethods:\n  - name: A\n    GET: /a\n    arity: many\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("Parse() should return error")
			}
		})
	}
}

func TestParse_empty(t *testing.T) {
	descs, err := Parse([]byte("# nothing here\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(descs) != 0 {
		t.Errorf("Parse() = %+v, want none", descs)
	}
}
