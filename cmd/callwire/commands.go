package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pitabwire/callwire/internal/definition"
	"github.com/pitabwire/callwire/internal/directive"
	"github.com/pitabwire/callwire/internal/observability"
	"github.com/pitabwire/callwire/internal/openapi"
	"github.com/pitabwire/callwire/internal/resolve"
	"github.com/pitabwire/callwire/model"
)

// CallCmd invokes one method and prints the decoded response.
type CallCmd struct {
	Method string   `arg:"" help:"Method to invoke, as Interface.Method."`
	Args   []string `arg:"" optional:"" help:"Arguments. Values that parse as JSON are sent as such, others as strings."`

	Tag           string `help:"Tag attached to the call; used to group cancellation."`
	Token         string `help:"Bearer token for this call; overrides client.auth." env:"CALLWIRE_CALL_TOKEN"`
	Subject       string `help:"Subject ID sent as X-Request-Subject."`
	Tenant        string `help:"Tenant ID sent as X-Tenant-Id."`
	Partition     string `help:"Partition ID sent as X-Partition-Id."`
	CorrelationID string `help:"Correlation ID sent as X-Correlation-Id." name:"correlation-id"`
	Raw           bool   `help:"Print the response body unmodified."`
	DumpMetrics   bool   `help:"Print collected metrics to stderr after the call." name:"dump-metrics"`
}

func (c *CallCmd) Run(g *Globals) error {
	iface, name, ok := strings.Cut(c.Method, ".")
	if !ok || iface == "" || name == "" {
		return fmt.Errorf("method %q must have the form Interface.Method", c.Method)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	desc, err := a.method(iface, name)
	if err != nil {
		return err
	}

	args := make([]any, len(c.Args))
	for i, s := range c.Args {
		args[i] = parseArg(s)
	}
	if desc.HasBody() && len(args) > 0 {
		if err := a.checkBody(iface, name, args[0]); err != nil {
			return err
		}
	}

	var tag any
	if c.Tag != "" {
		tag = c.Tag
	}
	call, err := a.dispatcher.Invoke(iface, name, tag, args...)
	if err != nil {
		return err
	}

	rctx := &model.RequestContext{
		Token:         c.Token,
		SubjectID:     c.Subject,
		TenantID:      c.Tenant,
		PartitionID:   c.Partition,
		CorrelationID: c.CorrelationID,
	}
	if err := rctx.Validate(); err != nil {
		return err
	}
	ctx = model.WithRequestContext(ctx, rctx)
	ctx = observability.WithLogger(ctx, a.logger)

	req := call.Request()
	a.logger.Debug("executing call",
		zap.String("method", req.FullName()),
		zap.String("verb", req.Verb),
		zap.String("url", req.URL),
	)
	res, err := call.Execute(ctx)
	if c.DumpMetrics {
		a.dumpMetrics(g)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(g.Stderr, "%s %s: %d %s\n", req.Verb, req.URL, res.StatusCode, res.Message())
	if err := printResult(g, res, c.Raw); err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("%s returned status %d", req.FullName(), res.StatusCode)
	}
	return nil
}

// checkBody validates a JSON object payload against the request schema of
// the OpenAPI operation the method was derived from.
func (a *app) checkBody(iface, name string, payload any) error {
	body, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	op, ok := a.index.OperationForMethod(iface, name)
	if !ok {
		return nil
	}
	verrs := a.index.ValidateRequest(iface, op.OperationID, body)
	return openapi.ToModelError(iface+"."+name, verrs)
}

func (a *app) dumpMetrics(g *Globals) {
	if a.gatherer == nil {
		return
	}
	families, err := a.gatherer.Gather()
	if err != nil {
		a.logger.Warn("gathering metrics failed", zap.Error(err))
		return
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(g.Stderr, mf); err != nil {
			a.logger.Warn("writing metrics failed", zap.Error(err))
			return
		}
	}
}

// parseArg decodes s as JSON when it is a valid JSON value and falls back
// to the literal string.
func parseArg(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func printResult(g *Globals, res *model.Result, raw bool) error {
	if raw || len(res.Body) == 0 {
		_, err := g.Stdout.Write(res.Body)
		return err
	}
	v, err := res.Value()
	if err != nil {
		// Undecodable bodies are printed as received.
		_, err = g.Stdout.Write(res.Body)
		return err
	}
	enc := json.NewEncoder(g.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// DescribeCmd prints the resolution of every loaded method.
type DescribeCmd struct {
	Interface string `arg:"" optional:"" help:"Only describe this interface."`
	Format    string `help:"Output format." enum:"yaml,json" default:"yaml" short:"o"`
}

type methodReport struct {
	Method string   `yaml:"method" json:"method"`
	Kind   string   `yaml:"kind,omitempty" json:"kind,omitempty"`
	Verb   string   `yaml:"verb,omitempty" json:"verb,omitempty"`
	Path   string   `yaml:"path,omitempty" json:"path,omitempty"`
	Codec  string   `yaml:"codec,omitempty" json:"codec,omitempty"`
	Args   []string `yaml:"args,omitempty" json:"args,omitempty"`
	Source string   `yaml:"source,omitempty" json:"source,omitempty"`
	Error  string   `yaml:"error,omitempty" json:"error,omitempty"`
}

func (c *DescribeCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	var reports []methodReport
	for _, d := range a.tables.All() {
		if c.Interface != "" && d.Name != c.Interface {
			continue
		}
		for _, name := range d.MethodNames() {
			m, _ := d.Method(name)
			reports = append(reports, a.report(d, m))
		}
	}
	if c.Interface != "" && len(reports) == 0 {
		return fmt.Errorf("unknown interface %q", c.Interface)
	}

	if c.Format == "json" {
		enc := json.NewEncoder(g.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	enc := yaml.NewEncoder(g.Stdout)
	defer enc.Close()
	return enc.Encode(reports)
}

func (a *app) report(d model.InterfaceDescriptor, m model.MethodDescriptor) methodReport {
	r := methodReport{Method: m.FullName(), Args: m.Args, Source: d.SourceFile}
	res, err := a.dispatcher.Resolve(m)
	if err == nil {
		err = resolve.CheckBindings(m, res)
	}
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Kind = string(res.Kind)
	r.Verb = res.Verb
	r.Path = res.Path
	if res.Body() {
		r.Codec = res.Codec
	}
	return r
}

// CheckCmd validates every descriptor table and resolves every method.
type CheckCmd struct{}

func (c *CheckCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	var failed, methods int
	for _, d := range a.tables.All() {
		for _, name := range d.MethodNames() {
			m, _ := d.Method(name)
			methods++
			if err := a.dispatcher.Validate(m); err != nil {
				failed++
				fmt.Fprintf(g.Stderr, "%s: %v\n", m.FullName(), err)
			}
		}
	}
	fmt.Fprintf(g.Stdout, "%d interfaces, %d methods, checksum %s\n", a.tables.Len(), methods, a.tables.Checksum())
	if failed > 0 {
		return fmt.Errorf("%d of %d methods failed to resolve", failed, methods)
	}
	return nil
}

// ScanCmd writes descriptor tables for the //callwire: directives found in
// Go packages.
type ScanCmd struct {
	Pattern string `arg:"" optional:"" default:"." help:"Package pattern, as accepted by the go command."`
	Dir     string `help:"Directory to resolve the pattern from." type:"path"`
	Out     string `help:"Write the tables to this file instead of stdout." short:"O" type:"path"`
}

func (c *ScanCmd) Run(g *Globals) error {
	result, err := directive.ScanDir(c.Pattern, c.Dir)
	if err != nil {
		return err
	}

	if verrs := definition.NewValidator(nil).Validate(result.Interfaces); len(verrs) > 0 {
		for _, ve := range verrs {
			fmt.Fprintf(g.Stderr, "warning: %s\n", ve)
		}
	}

	out := g.Stdout
	if c.Out != "" {
		f, err := os.Create(c.Out)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	for _, d := range result.Interfaces {
		d.SourceFile = ""
		if err := enc.Encode(d); err != nil {
			return err
		}
	}
	if err := enc.Close(); err != nil {
		return err
	}

	names := make([]string, len(result.Interfaces))
	for i, d := range result.Interfaces {
		names[i] = d.Name
	}
	fmt.Fprintf(g.Stderr, "scanned %d package(s): %s\n", len(result.Packages), strings.Join(names, ", "))
	return nil
}

// VersionCmd prints build information.
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	fmt.Fprintf(g.Stdout, "callwire %s (%s)\n", version, commit)
	return nil
}
