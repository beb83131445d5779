// Package codec provides body encoders and response decoder factories.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/callwire/model"
)

// Codec encodes request payloads and decodes response payloads.
type Codec interface {
	model.Decoder
	Name() string
	ContentType() string
	Encode(v any) ([]byte, error)
}

// Built-in codecs.
var (
	JSON Codec = jsonCodec{}
	YAML Codec = yamlCodec{}
	Form Codec = formCodec{}
)

var byName = map[string]Codec{
	"json": JSON,
	"yaml": YAML,
	"form": Form,
}

// Lookup returns the codec registered under name. An empty name selects JSON.
func Lookup(name string) (Codec, bool) {
	if name == "" {
		return JSON, true
	}
	c, ok := byName[strings.ToLower(name)]
	return c, ok
}

// Names returns the built-in codec names.
func Names() []string {
	return []string{"json", "yaml", "form"}
}

type jsonCodec struct{}

func (jsonCodec) Name() string        { return "json" }
func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

type yamlCodec struct{}

func (yamlCodec) Name() string        { return "yaml" }
func (yamlCodec) ContentType() string { return "application/yaml" }

func (yamlCodec) Encode(v any) ([]byte, error) {
	return yaml.Marshal(v)
}

func (yamlCodec) Decode(data []byte, v any) error {
	return yaml.Unmarshal(data, v)
}

// fixedFactory always hands out the same codec.
type fixedFactory struct {
	c Codec
}

func (f fixedFactory) NewDecoder(string) model.Decoder { return f.c }

// Factory returns a DecoderFactory that always decodes with c.
func Factory(c Codec) model.DecoderFactory {
	return fixedFactory{c: c}
}

// JSONFactory decodes every response as JSON.
func JSONFactory() model.DecoderFactory {
	return Factory(JSON)
}

// negotiatingFactory picks a codec from the response content type.
type negotiatingFactory struct {
	fallback Codec
}

func (f negotiatingFactory) NewDecoder(contentType string) model.Decoder {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return f.fallback
	}
	switch {
	case mt == "application/json" || strings.HasSuffix(mt, "+json"):
		return JSON
	case mt == "application/yaml" || mt == "application/x-yaml" || mt == "text/yaml":
		return YAML
	case mt == "application/x-www-form-urlencoded":
		return Form
	}
	return f.fallback
}

// NegotiatingFactory selects a decoder by response content type, using
// fallback for unknown or missing types.
func NegotiatingFactory(fallback Codec) model.DecoderFactory {
	if fallback == nil {
		fallback = JSON
	}
	return negotiatingFactory{fallback: fallback}
}

// FactoryByName maps a configuration name to a DecoderFactory. "auto"
// negotiates by content type.
func FactoryByName(name string) (model.DecoderFactory, error) {
	if strings.EqualFold(name, "auto") {
		return NegotiatingFactory(JSON), nil
	}
	c, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("codec: unknown decoder %q (supported: auto, %s)", name, strings.Join(Names(), ", "))
	}
	return Factory(c), nil
}
