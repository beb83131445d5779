package codec

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"

	"github.com/gorilla/schema"
)

var (
	schemaEncoder = schema.NewEncoder()
	schemaDecoder = schema.NewDecoder()
)

func init() {
	schemaEncoder.SetAliasTag("form")
	schemaDecoder.SetAliasTag("form")
	schemaDecoder.IgnoreUnknownKeys(true)
}

type formCodec struct{}

func (formCodec) Name() string        { return "form" }
func (formCodec) ContentType() string { return "application/x-www-form-urlencoded" }

func (formCodec) Encode(v any) ([]byte, error) {
	values := url.Values{}
	if err := AppendValues(values, "", v); err != nil {
		return nil, err
	}
	return []byte(values.Encode()), nil
}

func (formCodec) Decode(data []byte, v any) error {
	values, err := url.ParseQuery(string(data))
	if err != nil {
		return fmt.Errorf("form: parse body: %w", err)
	}
	switch out := v.(type) {
	case *url.Values:
		*out = values
		return nil
	case *map[string][]string:
		*out = values
		return nil
	case *any:
		m := make(map[string]any, len(values))
		for k, vs := range values {
			if len(vs) == 1 {
				m[k] = vs[0]
			} else {
				m[k] = vs
			}
		}
		*out = m
		return nil
	}
	return schemaDecoder.Decode(v, values)
}

// AppendValues flattens v into values. Structs are encoded field by field
// with their `form` tags, maps key by key, slices as repeated keys and
// scalars under key.
func AppendValues(values url.Values, key string, v any) error {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		flat := map[string][]string{}
		if err := schemaEncoder.Encode(rv.Interface(), flat); err != nil {
			return fmt.Errorf("form: encode %s: %w", rv.Type(), err)
		}
		keys := make([]string, 0, len(flat))
		for k := range flat {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			name := k
			if key != "" {
				name = key + "." + k
			}
			for _, s := range flat[k] {
				values.Add(name, s)
			}
		}
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		for _, mk := range keys {
			name := fmt.Sprint(mk.Interface())
			if key != "" {
				name = key + "." + name
			}
			if err := AppendValues(values, name, rv.MapIndex(mk).Interface()); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			values.Add(key, string(rv.Bytes()))
			return nil
		}
		for i := 0; i < rv.Len(); i++ {
			if err := AppendValues(values, key, rv.Index(i).Interface()); err != nil {
				return err
			}
		}
	default:
		if key == "" {
			return fmt.Errorf("form: cannot encode bare %s without a key", rv.Type())
		}
		values.Add(key, fmt.Sprint(rv.Interface()))
	}
	return nil
}
