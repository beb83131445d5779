// Package integration provides a reusable test harness for end-to-end
// testing of callwire. It wires descriptor tables, the dispatcher, and the
// default HTTP transport against a mock backend, the same way the callwire
// command does.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pitabwire/callwire/codec"
	"github.com/pitabwire/callwire/dispatch"
	"github.com/pitabwire/callwire/internal/config"
	"github.com/pitabwire/callwire/internal/definition"
	"github.com/pitabwire/callwire/internal/httpclient"
	"github.com/pitabwire/callwire/internal/observability"
	"github.com/pitabwire/callwire/internal/openapi"
	"github.com/pitabwire/callwire/model"
)

// TestHarness encapsulates a fully wired dispatcher talking to a mock
// backend.
type TestHarness struct {
	t        *testing.T
	backend  *MockBackend
	verifier *tokenVerifier

	// Internal components exposed for advanced test scenarios.
	Config     *config.Config
	Registry   *definition.Registry
	OAIndex    *openapi.Index
	Client     *httpclient.Client
	Dispatcher *dispatch.Dispatcher
	Metrics    *prometheus.Registry
	Logs       *observer.ObservedLogs
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	descriptorDirs []string
	specSources    []config.OpenAPISource
	client         func(*config.ClientConfig)
}

// WithDescriptors sets the descriptor directories to load.
func WithDescriptors(dirs ...string) HarnessOption {
	return func(c *harnessConfig) {
		c.descriptorDirs = dirs
	}
}

// WithSpec adds an OpenAPI document whose operations become an interface.
func WithSpec(iface, specFile string) HarnessOption {
	return func(c *harnessConfig) {
		c.specSources = append(c.specSources, config.OpenAPISource{Interface: iface, SpecFile: specFile})
	}
}

// WithClient adjusts the client configuration before the transport is built.
func WithClient(fn func(*config.ClientConfig)) HarnessOption {
	return func(c *harnessConfig) {
		prev := c.client
		c.client = func(cc *config.ClientConfig) {
			if prev != nil {
				prev(cc)
			}
			fn(cc)
		}
	}
}

// WithCircuitBreaker overrides the circuit breaker configuration.
func WithCircuitBreaker(cb config.CircuitBreakerConfig) HarnessOption {
	cb.Enabled = true
	return WithClient(func(cc *config.ClientConfig) { cc.CircuitBreaker = cb })
}

// WithTimeout overrides the per-exchange timeout.
func WithTimeout(d time.Duration) HarnessOption {
	return WithClient(func(cc *config.ClientConfig) { cc.Timeout = d })
}

// WithJWTAuth makes the client sign a service token for every exchange.
func WithJWTAuth() HarnessOption {
	return WithClient(func(cc *config.ClientConfig) {
		cc.Auth = config.AuthConfig{
			Strategy: "jwt",
			JWT: config.JWTConfig{
				Issuer:    testIssuer,
				Audience:  testAudience,
				Subject:   testSubject,
				SecretEnv: "CALLWIRE_TEST_JWT_SECRET",
				TTL:       5 * time.Minute,
			},
		}
	})
}

// NewTestHarness creates a dispatcher wired to a fresh mock backend. The
// backend is automatically shut down when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{}
	for _, opt := range opts {
		opt(hc)
	}

	dir := testdataDir()

	// Defaults: use testdata fixtures if nothing specified.
	if len(hc.descriptorDirs) == 0 {
		hc.descriptorDirs = []string{filepath.Join(dir, "descriptors")}
	}
	if len(hc.specSources) == 0 {
		hc.specSources = []config.OpenAPISource{
			{Interface: "Inventory", SpecFile: filepath.Join(dir, "specs", "inventory-svc.yaml")},
		}
	}

	h := &TestHarness{
		t:        t,
		verifier: newTokenVerifier(),
	}

	// Step 1: Start the mock backend.
	h.backend = newMockBackend(t, DefaultRoutes())

	// Step 2: Build config pointing at the backend.
	h.Config = config.Defaults()
	h.Config.Client.BaseURL = h.backend.URL()
	h.Config.Client.Timeout = 5 * time.Second
	h.Config.Client.Decoder = "auto"
	h.Config.Client.Debug = true
	h.Config.Client.RedactFields = []string{"password", "card_number"}
	h.Config.Descriptors.Files = hc.descriptorDirs
	h.Config.Descriptors.OpenAPI = hc.specSources
	if hc.client != nil {
		hc.client(&h.Config.Client)
	}
	if err := h.Config.Validate(); err != nil {
		t.Fatalf("invalid harness config: %v", err)
	}

	// Step 3: Observed logger and a private metrics registry.
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	h.Logs = logs
	h.Metrics = prometheus.NewRegistry()
	metrics := observability.InitMetrics(h.Metrics)

	// Step 4: Build the transport and the dispatcher.
	getenv := func(key string) string {
		if key == "CALLWIRE_TEST_JWT_SECRET" {
			return testSecret
		}
		return os.Getenv(key)
	}
	client, err := httpclient.FromConfig(h.Config.Client, logger, metrics, getenv)
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	h.Client = client

	decoder, err := codec.FactoryByName(h.Config.Client.Decoder)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	h.Dispatcher, err = dispatch.New(dispatch.Config{
		Transport:      client,
		BaseURL:        h.Config.Client.BaseURL,
		DecoderFactory: decoder,
		Debug:          h.Config.Client.Debug,
	},
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(metrics),
		dispatch.WithEagerValidation(),
	)
	if err != nil {
		t.Fatalf("build dispatcher: %v", err)
	}

	// Step 5: Load descriptor tables.
	descs, err := definition.NewLoader().LoadAll(h.Config.Descriptors.Files)
	if err != nil {
		t.Fatalf("load descriptors: %v", err)
	}

	// Step 6: Load OpenAPI documents.
	h.OAIndex = openapi.NewIndex()
	sources := make([]openapi.SpecSource, len(h.Config.Descriptors.OpenAPI))
	for i, s := range h.Config.Descriptors.OpenAPI {
		sources[i] = openapi.SpecSource{Interface: s.Interface, SpecPath: s.SpecFile}
	}
	if err := h.OAIndex.Load(context.Background(), sources); err != nil {
		t.Fatalf("load OpenAPI specs: %v", err)
	}
	descs = append(descs, h.OAIndex.Descriptors()...)

	// Step 7: Validate and register.
	if verrs := definition.NewValidator(h.Dispatcher.Kinds()).Validate(descs); len(verrs) > 0 {
		t.Fatalf("descriptor validation: %v", verrs)
	}
	h.Registry = definition.NewRegistry(descs)
	if err := h.Dispatcher.Register(descs...); err != nil {
		t.Fatalf("register descriptors: %v", err)
	}

	return h
}

// Backend returns the mock backend.
func (h *TestHarness) Backend() *MockBackend {
	return h.backend
}

// VerifyToken checks an Authorization header against the signing secret.
func (h *TestHarness) VerifyToken(header string) error {
	_, err := h.verifier.Verify(header)
	return err
}

// Invoke resolves "Interface.Method" with args on the registered tables.
func (h *TestHarness) Invoke(name string, args ...any) (model.Call, error) {
	iface, method, ok := strings.Cut(name, ".")
	if !ok {
		return nil, fmt.Errorf("harness: %q is not Interface.Method", name)
	}
	return h.Dispatcher.Invoke(iface, method, nil, args...)
}

// Execute invokes and executes a call, failing the test on resolution errors.
func (h *TestHarness) Execute(ctx context.Context, name string, args ...any) (*model.Result, error) {
	h.t.Helper()
	call, err := h.Invoke(name, args...)
	if err != nil {
		h.t.Fatalf("invoke %s: %v", name, err)
	}
	return call.Execute(ctx)
}

// MustExecute is Execute that also fails the test on execution errors.
func (h *TestHarness) MustExecute(name string, args ...any) *model.Result {
	h.t.Helper()
	res, err := h.Execute(context.Background(), name, args...)
	if err != nil {
		h.t.Fatalf("execute %s: %v", name, err)
	}
	return res
}

// DecodeJSON decodes the result body into a generic map.
func (h *TestHarness) DecodeJSON(res *model.Result) map[string]any {
	h.t.Helper()
	var out map[string]any
	if err := res.Decode(&out); err != nil {
		h.t.Fatalf("decode result: %v (body: %s)", err, res.Body)
	}
	return out
}

// --- Helpers ---

// testdataDir returns the absolute path to the testdata directory.
func testdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}

// OrderFixture returns a map representing a typical order for mock responses.
func OrderFixture(id, orderNum, status string) map[string]any {
	return map[string]any{
		"id":            id,
		"order_number":  orderNum,
		"customer_name": "Test Customer",
		"total_amount":  99.99,
		"status":        status,
		"created_at":    "2024-01-15T10:30:00Z",
	}
}

// OrderListFixture returns a paginated list response with the given orders.
func OrderListFixture(orders []map[string]any, total int) map[string]any {
	return map[string]any{
		"data":        orders,
		"total_count": total,
		"page":        1,
		"page_size":   25,
	}
}

// ErrorFixture returns an error envelope as backends send it.
func ErrorFixture(code, message string) map[string]any {
	return map[string]any{
		"code":    code,
		"message": message,
	}
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
