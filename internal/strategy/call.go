package strategy

import (
	"context"
	"errors"
	"sync"

	"github.com/pitabwire/callwire/model"
)

// Encoder turns a resolved request into a network exchange.
type Encoder func(req model.Request) (*model.Exchange, error)

// Call is the Call implementation shared by all built-in strategies. It
// owns its request but borrows the transport.
type Call struct {
	client model.Transport
	req    model.Request
	encode Encoder

	mu       sync.Mutex
	next     int
	inflight map[int]context.CancelFunc
}

var _ model.Call = (*Call)(nil)

// NewCall creates a Call that encodes req with encode and executes it over
// client. It performs no I/O.
func NewCall(client model.Transport, req model.Request, encode Encoder) *Call {
	return &Call{
		client:   client,
		req:      req,
		encode:   encode,
		inflight: make(map[int]context.CancelFunc),
	}
}

// Request returns the resolved request.
func (c *Call) Request() model.Request {
	return c.req
}

// Exchange encodes the request without executing it.
func (c *Call) Exchange() (*model.Exchange, error) {
	return c.encode(c.req)
}

// Execute encodes and performs the exchange.
func (c *Call) Execute(ctx context.Context) (*model.Result, error) {
	if c.client == nil {
		return nil, model.NewError(model.ErrBackendUnavailable, c.req.FullName(), "no transport configured")
	}
	ex, err := c.encode(c.req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	id := c.track(cancel)
	defer c.untrack(id)

	res, err := c.client.Do(ctx, ex)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, &model.Error{Code: model.ErrCanceled, Method: c.req.FullName(), Message: "call canceled", Cause: err}
		}
		return nil, err
	}
	return res, nil
}

// Enqueue executes the call on a new goroutine.
func (c *Call) Enqueue(ctx context.Context, onResponse func(*model.Result), onFailure func(error)) {
	go func() {
		res, err := c.Execute(ctx)
		if err != nil {
			if onFailure != nil {
				onFailure(err)
			}
			return
		}
		if onResponse != nil {
			onResponse(res)
		}
	}()
}

// Cancel aborts every in-flight execution.
func (c *Call) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cancel := range c.inflight {
		cancel()
		delete(c.inflight, id)
	}
}

func (c *Call) track(cancel context.CancelFunc) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.inflight[c.next] = cancel
	return c.next
}

func (c *Call) untrack(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.inflight[id]; ok {
		cancel()
		delete(c.inflight, id)
	}
}
