package strategy

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/pitabwire/callwire/codec"
	"github.com/pitabwire/callwire/model"
)

var placeholderRe = regexp.MustCompile(`\{([^{}/]+)\}`)

// Query encodes the parameter bag into the URL query string.
func Query(client model.Transport, req model.Request) model.Call {
	return NewCall(client, req, encodeQuery)
}

// Form encodes the parameter bag as an application/x-www-form-urlencoded
// body.
func Form(client model.Transport, req model.Request) model.Call {
	return NewCall(client, req, encodeForm)
}

// Body encodes the single body payload with the codec named by the body tag.
// Struct payloads are validated before encoding.
func Body(client model.Transport, req model.Request) model.Call {
	return NewCall(client, req, encodeBody)
}

func encodeQuery(req model.Request) (*model.Exchange, error) {
	target, rest, err := expandPath(req, nil)
	if err != nil {
		return nil, err
	}
	query, err := encodeEntries(req, rest)
	if err != nil {
		return nil, err
	}
	if query != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + query
	}
	return newExchange(req, target, nil, ""), nil
}

func encodeForm(req model.Request) (*model.Exchange, error) {
	target, rest, err := expandPath(req, nil)
	if err != nil {
		return nil, err
	}
	body, err := encodeEntries(req, rest)
	if err != nil {
		return nil, err
	}
	return newExchange(req, target, []byte(body), codec.Form.ContentType()), nil
}

func encodeBody(req model.Request) (*model.Exchange, error) {
	payload, _ := req.Params.Body()

	// Placeholders of a body method are filled from the payload's fields.
	var fields url.Values
	if payload != nil && strings.Contains(req.URL, "{") {
		fields = url.Values{}
		if err := codec.AppendValues(fields, "", payload); err != nil {
			fields = nil
		}
	}
	target, _, err := expandPath(req, fields)
	if err != nil {
		return nil, err
	}
	c, ok := codec.Lookup(req.Codec)
	if !ok {
		return nil, model.Errorf(model.ErrEncodeFailed, req.FullName(), "unknown body codec %q", req.Codec)
	}

	if payload == nil {
		return newExchange(req, target, nil, c.ContentType()), nil
	}
	if err := Validate(req.FullName(), payload); err != nil {
		return nil, err
	}
	data, err := c.Encode(payload)
	if err != nil {
		return nil, &model.Error{Code: model.ErrEncodeFailed, Method: req.FullName(), Message: err.Error(), Cause: err}
	}
	return newExchange(req, target, data, c.ContentType()), nil
}

func newExchange(req model.Request, target string, body []byte, contentType string) *model.Exchange {
	h := make(http.Header)
	if contentType != "" && body != nil {
		h.Set("Content-Type", contentType)
	}
	return &model.Exchange{
		Request:     req,
		Verb:        req.Verb,
		URL:         target,
		Header:      h,
		Body:        body,
		ContentType: contentType,
	}
}

// expandPath substitutes {name} placeholders with the first unused entry of
// the same key, then with fallback values, and returns the entries left for
// query or form encoding.
func expandPath(req model.Request, fallback url.Values) (string, []model.Param, error) {
	entries := req.Params.Entries()
	used := make([]bool, len(entries))

	var missing []string
	target := placeholderRe.ReplaceAllStringFunc(req.URL, func(m string) string {
		name := m[1 : len(m)-1]
		for i, e := range entries {
			if !used[i] && e.Key == name {
				used[i] = true
				return url.PathEscape(fmt.Sprint(e.Value))
			}
		}
		if fallback.Has(name) {
			return url.PathEscape(fallback.Get(name))
		}
		missing = append(missing, name)
		return m
	})
	if len(missing) > 0 {
		return "", nil, model.Errorf(model.ErrEncodeFailed, req.FullName(),
			"no argument bound to path placeholder(s) %s", strings.Join(missing, ", "))
	}

	rest := make([]model.Param, 0, len(entries))
	for i, e := range entries {
		if !used[i] {
			rest = append(rest, e)
		}
	}
	return target, rest, nil
}

// encodeEntries url-encodes the entries in bag order. Keys may repeat and
// are never sorted across entries; the fields of a single struct entry are.
func encodeEntries(req model.Request, entries []model.Param) (string, error) {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		values := url.Values{}
		if err := codec.AppendValues(values, e.Key, e.Value); err != nil {
			return "", &model.Error{Code: model.ErrEncodeFailed, Method: req.FullName(), Message: err.Error(), Cause: err}
		}
		if len(values) > 0 {
			parts = append(parts, values.Encode())
		}
	}
	return strings.Join(parts, "&"), nil
}
