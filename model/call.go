package model

import (
	"context"
	"net/http"
)

// Request is the fully resolved request descriptor owned by a Call.
type Request struct {
	Interface string
	Method    string // interface method name
	Kind      TagKind
	Verb      string // HTTP verb
	URL       string // base URL + path template, placeholders unexpanded
	Params    *Params
	Codec     string // body codec name, body kind only
	Tag       any    // caller supplied, opaque to the core
}

// FullName returns "Interface.Method".
func (r Request) FullName() string {
	if r.Interface == "" {
		return r.Method
	}
	return r.Interface + "." + r.Method
}

// Exchange is one encoded network round trip handed to a Transport.
type Exchange struct {
	Request     Request
	Verb        string
	URL         string // expanded URL including query string
	Header      http.Header
	Body        []byte
	ContentType string
}

// Transport performs network exchanges on behalf of Calls.
type Transport interface {
	Do(ctx context.Context, ex *Exchange) (*Result, error)
}

// TransportOptions is the configuration a dispatcher hands to its transport
// once, at construction.
type TransportOptions struct {
	Decoder DecoderFactory
	Debug   bool
}

// ConfigurableTransport is a Transport that accepts dispatcher configuration.
type ConfigurableTransport interface {
	Transport
	Configure(opts TransportOptions)
}

// Canceler is implemented by transports that track in-flight exchanges by
// call tag. Cancel returns the number of exchanges canceled.
type Canceler interface {
	Cancel(tag any) int
}

// Decoder turns a raw response payload into a typed value.
type Decoder interface {
	Decode(data []byte, v any) error
}

// DecoderFactory produces a Decoder for a response content type.
type DecoderFactory interface {
	NewDecoder(contentType string) Decoder
}

// Call is one pending request. Construction performs no I/O; every Execute
// is an independent exchange.
type Call interface {
	// Request returns the resolved request descriptor.
	Request() Request
	// Execute performs the exchange and blocks until the response is read.
	Execute(ctx context.Context) (*Result, error)
	// Enqueue performs the exchange on a new goroutine. Exactly one of the
	// callbacks is invoked.
	Enqueue(ctx context.Context, onResponse func(*Result), onFailure func(error))
	// Cancel aborts every in-flight execution of this call.
	Cancel()
}

// Constructor builds a Call from a transport and a resolved request.
type Constructor func(client Transport, req Request) Call
