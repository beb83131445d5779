package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/callwire/codec"
	"github.com/pitabwire/callwire/dispatch"
	"github.com/pitabwire/callwire/internal/config"
	"github.com/pitabwire/callwire/internal/definition"
	"github.com/pitabwire/callwire/internal/httpclient"
	"github.com/pitabwire/callwire/internal/observability"
	"github.com/pitabwire/callwire/internal/openapi"
	"github.com/pitabwire/callwire/internal/resolve"
	"github.com/pitabwire/callwire/model"
)

// app is the wired runtime shared by the commands that talk to a backend.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	gatherer   prometheus.Gatherer
	metrics    *observability.Metrics
	client     *httpclient.Client
	dispatcher *dispatch.Dispatcher
	tables     *definition.Registry
	index      *openapi.Index
	shutdown   func(context.Context) error
}

// newApp loads configuration, initializes telemetry, and registers every
// configured descriptor table with a new dispatcher.
func newApp(ctx context.Context, g *Globals) (*app, error) {
	// Step 1: Load configuration and apply flag overrides.
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if g.BaseURL != "" {
		cfg.Client.BaseURL = g.BaseURL
	}
	if g.Debug {
		cfg.Client.Debug = true
		cfg.Observability.LogLevel = "debug"
	}
	cfg.Descriptors.Files = append(cfg.Descriptors.Files, g.Descriptors...)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	// Step 2: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger := observability.NewLogger(cfg.Observability, g.Stderr)

	shutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "callwire", version)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, shutdown: shutdown}
	if cfg.Observability.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		a.gatherer = reg
		a.metrics = observability.InitMetrics(reg)
	}

	// Step 3: Build the transport and the dispatcher.
	a.client, err = httpclient.FromConfig(cfg.Client, logger, a.metrics, os.Getenv)
	if err != nil {
		return nil, err
	}

	decoder, err := codec.FactoryByName(cfg.Client.Decoder)
	if err != nil {
		return nil, err
	}
	tieBreak, ok := resolve.ParseTieBreak(cfg.Client.TieBreak)
	if !ok {
		return nil, fmt.Errorf("client.tie_break %q is not one of reject, first_match", cfg.Client.TieBreak)
	}

	opts := []dispatch.Option{
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(a.metrics),
		dispatch.WithTieBreak(tieBreak),
	}
	if cfg.Client.EagerValidate {
		opts = append(opts, dispatch.WithEagerValidation())
	}
	a.dispatcher, err = dispatch.New(dispatch.Config{
		Transport:      a.client,
		BaseURL:        cfg.Client.BaseURL,
		DecoderFactory: decoder,
		Debug:          cfg.Client.Debug,
	}, opts...)
	if err != nil {
		return nil, err
	}

	// Step 4: Load descriptor tables, validate, and register them.
	if err := a.loadDescriptors(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) loadDescriptors(ctx context.Context) error {
	loader := definition.NewLoader()
	descs, err := loader.LoadAll(a.cfg.Descriptors.Files)
	if err != nil {
		return err
	}
	a.metrics.SetDescriptorsLoaded("yaml", len(descs))

	a.index = openapi.NewIndex()
	sources := make([]openapi.SpecSource, 0, len(a.cfg.Descriptors.OpenAPI))
	for _, s := range a.cfg.Descriptors.OpenAPI {
		sources = append(sources, openapi.SpecSource{Interface: s.Interface, SpecPath: s.SpecFile})
	}
	if err := a.index.Load(ctx, sources); err != nil {
		return err
	}
	fromSpecs := a.index.Descriptors()
	a.metrics.SetDescriptorsLoaded("openapi", len(fromSpecs))
	descs = append(descs, fromSpecs...)

	validator := definition.NewValidator(a.dispatcher.Kinds())
	if verrs := validator.Validate(descs); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, ve := range verrs {
			a.logger.Error("descriptor validation error", zap.String("error", ve.Error()))
			errs[i] = ve
		}
		return fmt.Errorf("descriptor validation failed: %w", errors.Join(errs...))
	}

	a.tables = definition.NewRegistry(descs)
	if err := a.dispatcher.Register(descs...); err != nil {
		return err
	}
	a.logger.Info("descriptors loaded",
		zap.Int("interfaces", a.tables.Len()),
		zap.String("checksum", a.tables.Checksum()),
	)
	return nil
}

// method returns the descriptor of "Interface.Method".
func (a *app) method(iface, name string) (model.MethodDescriptor, error) {
	d, ok := a.tables.Get(iface)
	if !ok {
		return model.MethodDescriptor{}, model.Errorf(model.ErrUnknownMethod, iface+"."+name, "unknown interface %q", iface)
	}
	m, ok := d.Method(name)
	if !ok {
		return model.MethodDescriptor{}, model.Errorf(model.ErrUnknownMethod, iface+"."+name, "interface %s has no method %q", iface, name)
	}
	return m, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn("tracing shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}
