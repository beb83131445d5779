package codec

import (
	"encoding/json"
	"net/url"
	"reflect"
	"strings"
	"testing"
)

type user struct {
	Name  string   `json:"name" yaml:"name" form:"name"`
	Age   int      `json:"age" yaml:"age" form:"age"`
	Roles []string `json:"roles,omitempty" yaml:"roles,omitempty" form:"roles"`
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name     string
		wantOK   bool
		wantName string
	}{
		{"", true, "json"},
		{"YAML", true, "yaml"},
		{"form", true, "form"},
		{"protobuf", false, ""},
	}
	for _, tt := range tests {
		c, ok := Lookup(tt.name)
		if ok != tt.wantOK {
			t.Errorf("Lookup(%q) ok = %v, want %v", tt.name, ok, tt.wantOK)
			continue
		}
		if ok && c.Name() != tt.wantName {
			t.Errorf("Lookup(%q) = %s, want %s", tt.name, c.Name(), tt.wantName)
		}
	}
}

func TestJSON_decodeUsesNumber(t *testing.T) {
	var v any
	if err := JSON.Decode([]byte(`{"id":12345678901234567}`), &v); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	id, ok := v.(map[string]any)["id"].(json.Number)
	if !ok || id.String() != "12345678901234567" {
		t.Errorf("id = %#v, want json.Number 12345678901234567", v.(map[string]any)["id"])
	}
}

func TestYAML_encodeDecode(t *testing.T) {
	data, err := YAML.Encode(user{Name: "qibin", Age: 3})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !strings.Contains(string(data), "name: qibin") {
		t.Errorf("Encode() = %q", data)
	}

	var got user
	if err := YAML.Decode(data, &got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Name != "qibin" || got.Age != 3 {
		t.Errorf("Decode() = %+v", got)
	}
}

func TestForm_encodeStruct(t *testing.T) {
	data, err := Form.Encode(user{Name: "qibin", Age: 3, Roles: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	values, err := url.ParseQuery(string(data))
	if err != nil {
		t.Fatalf("ParseQuery(%q) error = %v", data, err)
	}
	if values.Get("name") != "qibin" || values.Get("age") != "3" {
		t.Errorf("Encode() = %q", data)
	}
	if got := values["roles"]; !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("roles = %v, want [a b]", got)
	}
}

func TestForm_decodeIntoStructAndAny(t *testing.T) {
	var u user
	if err := Form.Decode([]byte("name=qibin&age=7&extra=1"), &u); err != nil {
		t.Fatalf("Decode(struct) error = %v", err)
	}
	if want := (user{Name: "qibin", Age: 7}); !reflect.DeepEqual(u, want) {
		t.Errorf("Decode(struct) = %+v, want %+v", u, want)
	}

	var v any
	if err := Form.Decode([]byte("a=1&b=2&b=3"), &v); err != nil {
		t.Fatalf("Decode(any) error = %v", err)
	}
	m := v.(map[string]any)
	if m["a"] != "1" {
		t.Errorf("a = %v, want 1", m["a"])
	}
	if !reflect.DeepEqual(m["b"], []string{"2", "3"}) {
		t.Errorf("b = %v, want [2 3]", m["b"])
	}
}

func TestAppendValues(t *testing.T) {
	values := url.Values{}
	for _, p := range []struct {
		key string
		v   any
	}{
		{"id", 42},
		{"tag", []string{"x", "y"}},
		{"filter", map[string]any{"status": "open"}},
		{"owner", &user{Name: "n", Age: 1}},
		{"none", nil},
	} {
		if err := AppendValues(values, p.key, p.v); err != nil {
			t.Fatalf("AppendValues(%q) error = %v", p.key, err)
		}
	}

	want := map[string]string{"id": "42", "filter.status": "open", "owner.name": "n"}
	for k, v := range want {
		if got := values.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if got := values["tag"]; !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Errorf("tag = %v, want [x y]", got)
	}
	if values.Has("none") {
		t.Error("nil values should be skipped")
	}

	if err := AppendValues(url.Values{}, "", 5); err == nil {
		t.Error("a bare scalar without a key should fail")
	}
}

func TestNegotiatingFactory(t *testing.T) {
	f := NegotiatingFactory(nil)
	tests := []struct {
		contentType string
		want        Codec
	}{
		{"application/json; charset=utf-8", JSON},
		{"application/problem+json", JSON},
		{"application/yaml", YAML},
		{"text/yaml", YAML},
		{"application/x-www-form-urlencoded", Form},
		{"text/plain", JSON},
		{"", JSON},
	}
	for _, tt := range tests {
		if got := f.NewDecoder(tt.contentType); got != tt.want {
			t.Errorf("NewDecoder(%q) = %T, want %s", tt.contentType, got, tt.want.Name())
		}
	}
}

func TestFactoryByName(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        Codec
		wantErr     bool
	}{
		{"yaml", "application/json", YAML, false},
		{"auto", "application/yaml", YAML, false},
		{"auto", "application/json", JSON, false},
		{"xml", "", nil, true},
	}
	for _, tt := range tests {
		f, err := FactoryByName(tt.name)
		if tt.wantErr {
			if err == nil {
				t.Errorf("FactoryByName(%q) should fail", tt.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("FactoryByName(%q) error = %v", tt.name, err)
		}
		if got := f.NewDecoder(tt.contentType); got != tt.want {
			t.Errorf("FactoryByName(%q).NewDecoder(%q) = %T, want %s", tt.name, tt.contentType, got, tt.want.Name())
		}
	}
}
