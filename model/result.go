package model

import (
	"fmt"
	"net/http"
	"strings"
)

// Result is the outcome of one executed exchange. The body is decoded
// lazily with the decoder chosen for the response content type.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	decoder Decoder
}

// NewResult creates a Result whose body is decoded with dec.
func NewResult(status int, header http.Header, body []byte, dec Decoder) *Result {
	return &Result{
		StatusCode: status,
		Header:     header,
		Body:       body,
		decoder:    dec,
	}
}

// OK reports whether the exchange completed with a 2xx status.
func (r *Result) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode decodes the body into v.
func (r *Result) Decode(v any) error {
	if r.decoder == nil {
		return fmt.Errorf("result: no decoder for status %d", r.StatusCode)
	}
	if len(r.Body) == 0 {
		return nil
	}
	if err := r.decoder.Decode(r.Body, v); err != nil {
		return &Error{Code: ErrDecodeFailed, Message: err.Error(), Cause: err}
	}
	return nil
}

// Value decodes the body into a generic value.
func (r *Result) Value() (any, error) {
	var v any
	if err := r.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Message returns a human readable outcome. For bodies carrying a
// "message", "msg" or "error" field that value wins; otherwise the HTTP
// status text is used.
func (r *Result) Message() string {
	var envelope map[string]any
	if r.decoder != nil && len(r.Body) > 0 && r.decoder.Decode(r.Body, &envelope) == nil {
		for _, key := range []string{"message", "msg", "error"} {
			if s, ok := envelope[key].(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return http.StatusText(r.StatusCode)
}

// ValueAs decodes the body of r into a value of type T.
func ValueAs[T any](r *Result) (T, error) {
	var v T
	err := r.Decode(&v)
	return v, err
}
