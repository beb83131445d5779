// Package dispatch synthesizes implementations of declarative HTTP
// interfaces. An interface is a struct of function fields whose struct tags
// name an HTTP verb, a path template, and the binding name of every
// parameter:
//
//	type UserAPI struct {
//		List   func(name string) model.Call            `POST:"/users/list" args:"name"`
//		Create func(u User) (model.Call, error)        `POST:"/users/create" body:"json"`
//	}
//
// Invoking a synthesized function performs no I/O. It resolves the method
// metadata into a request and returns a model.Call that the caller executes.
package dispatch

import (
	"errors"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/pitabwire/callwire/codec"
	"github.com/pitabwire/callwire/internal/describe"
	"github.com/pitabwire/callwire/internal/httpclient"
	"github.com/pitabwire/callwire/internal/observability"
	"github.com/pitabwire/callwire/internal/resolve"
	"github.com/pitabwire/callwire/internal/strategy"
	"github.com/pitabwire/callwire/model"
)

// Dispatcher holds the configuration shared by every synthesized
// implementation. It is safe for concurrent use.
type Dispatcher struct {
	transport model.Transport
	baseURL   string
	decoder   model.DecoderFactory
	debug     bool

	registry *strategy.Registry
	resolver *resolve.Resolver
	cache    *describe.Cache
	logger   *zap.Logger
	metrics  *observability.Metrics
	eager    bool

	mu     sync.RWMutex
	tables map[string]model.InterfaceDescriptor
}

// New creates a Dispatcher from a complete configuration.
func New(cfg Config, opts ...Option) (*Dispatcher, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	if cfg.BaseURL != "" {
		if _, err := url.Parse(cfg.BaseURL); err != nil {
			return nil, fmt.Errorf("dispatch: invalid base URL: %w", err)
		}
	}

	metrics := o.metrics
	if metrics == nil && o.registerer != nil {
		metrics = observability.InitMetrics(o.registerer)
	}

	registry := strategy.Builtin()
	for _, s := range o.strategies {
		if _, exists := registry.Lookup(s.kind); exists {
			return nil, fmt.Errorf("dispatch: strategy %q already registered", s.kind)
		}
		if s.ctor == nil {
			return nil, fmt.Errorf("dispatch: nil constructor for strategy %q", s.kind)
		}
		registry.Register(s.kind, s.ctor)
	}
	registry.Freeze()

	cache, err := describe.NewCache(o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	decoder := cfg.DecoderFactory
	if decoder == nil {
		decoder = codec.JSONFactory()
	}

	transport := cfg.Transport
	if transport == nil {
		transport = httpclient.New(httpclient.Options{
			Timeout: cfg.Timeout,
			Logger:  o.logger,
			Metrics: metrics,
		})
	}
	if ct, ok := transport.(model.ConfigurableTransport); ok {
		ct.Configure(model.TransportOptions{Decoder: decoder, Debug: cfg.Debug})
	}

	var resolverOpts []resolve.Option
	resolverOpts = append(resolverOpts, resolve.WithTieBreak(o.tieBreak))
	if o.allowExtraBodyArgs {
		resolverOpts = append(resolverOpts, resolve.WithExtraBodyArgs())
	}

	return &Dispatcher{
		transport: transport,
		baseURL:   cfg.BaseURL,
		decoder:   decoder,
		debug:     cfg.Debug,
		registry:  registry,
		resolver:  resolve.New(registry.Kinds(), resolverOpts...),
		cache:     cache,
		logger:    o.logger.Named("dispatch"),
		metrics:   metrics,
		eager:     o.eager,
		tables:    make(map[string]model.InterfaceDescriptor),
	}, nil
}

// BaseURL returns the configured base URL.
func (d *Dispatcher) BaseURL() string { return d.baseURL }

// Transport returns the transport calls are executed over.
func (d *Dispatcher) Transport() model.Transport { return d.transport }

// DecoderFactory returns the response decoder factory.
func (d *Dispatcher) DecoderFactory() model.DecoderFactory { return d.decoder }

// Debug reports whether debug logging was requested.
func (d *Dispatcher) Debug() bool { return d.debug }

// Kinds returns the strategy kinds in resolution order.
func (d *Dispatcher) Kinds() []model.TagKind { return d.registry.Kinds() }

// Call resolves one invocation of desc into a Call. It performs no I/O.
func (d *Dispatcher) Call(desc model.MethodDescriptor, tag any, args []any) (model.Call, error) {
	call, err := d.call(desc, tag, args)
	if err != nil {
		d.recordFailure(desc, err)
		return nil, err
	}
	d.metrics.RecordCall(desc.Interface, desc.Name, string(call.Request().Kind))
	return call, nil
}

func (d *Dispatcher) call(desc model.MethodDescriptor, tag any, args []any) (model.Call, error) {
	res, err := d.Resolve(desc)
	if err != nil {
		return nil, err
	}
	params, err := resolve.BuildParams(desc, res, args)
	if err != nil {
		return nil, err
	}
	ctor, _ := d.registry.Lookup(res.Kind)

	req := model.Request{
		Interface: desc.Interface,
		Method:    desc.Name,
		Kind:      res.Kind,
		Verb:      res.Verb,
		URL:       d.baseURL + res.Path,
		Params:    params,
		Codec:     res.Codec,
		Tag:       tag,
	}
	return ctor(d.transport, req), nil
}

// Resolve reports the strategy, verb, path and codec desc resolves to under
// this dispatcher's registry and policies. It does not check bindings.
func (d *Dispatcher) Resolve(desc model.MethodDescriptor) (resolve.Resolution, error) {
	res, err := d.resolver.Resolve(desc)
	if err != nil {
		return resolve.Resolution{}, err
	}
	if _, ok := d.registry.Lookup(res.Kind); !ok {
		return resolve.Resolution{}, model.Errorf(model.ErrUnknownStrategy, desc.FullName(), "no strategy registered for %q", res.Kind)
	}
	return res, nil
}

// Validate resolves desc without invoking it, checking its bindings against
// the declared arity.
func (d *Dispatcher) Validate(desc model.MethodDescriptor) error {
	res, err := d.Resolve(desc)
	if err != nil {
		return err
	}
	return resolve.CheckBindings(desc, res)
}

func (d *Dispatcher) validateAll(iface model.InterfaceDescriptor) error {
	var errs []error
	for _, name := range iface.MethodNames() {
		m, _ := iface.Method(name)
		if err := d.Validate(m); err != nil {
			d.recordFailure(m, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) recordFailure(desc model.MethodDescriptor, err error) {
	code := "UNKNOWN"
	var merr *model.Error
	if errors.As(err, &merr) {
		code = merr.Code
	}
	d.metrics.RecordResolutionFailure(desc.Interface, code)
	d.logger.Debug("method resolution failed",
		zap.String("method", desc.FullName()),
		zap.String("code", code),
		zap.Error(err),
	)
}

// Cancel aborts every in-flight exchange of calls created with tag. It
// returns the number of exchanges canceled, or 0 when the transport does not
// track calls by tag.
func (d *Dispatcher) Cancel(tag any) int {
	if c, ok := d.transport.(model.Canceler); ok {
		return c.Cancel(tag)
	}
	return 0
}
