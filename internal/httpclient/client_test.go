package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pitabwire/callwire/codec"
	"github.com/pitabwire/callwire/internal/config"
	"github.com/pitabwire/callwire/internal/observability"
	"github.com/pitabwire/callwire/model"
)

func exchange(verb, target string, body []byte, tag any) *model.Exchange {
	return &model.Exchange{
		Request: model.Request{Interface: "UserAPI", Method: "List", Kind: model.KindPOST, Verb: verb, Tag: tag},
		Verb:    verb,
		URL:     target,
		Header:  http.Header{},
		Body:    body,
	}
}

func TestClient_Do_roundTrip(t *testing.T) {
	var gotMethod, gotBody, gotCT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotCT = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":1,"name":"qibin"}`))
	}))
	defer srv.Close()

	c := New(Options{})
	ex := exchange("POST", srv.URL+"/users/list", []byte("name=qibin"), nil)
	ex.ContentType = "application/x-www-form-urlencoded"

	res, err := c.Do(context.Background(), ex)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if gotMethod != "POST" || gotBody != "name=qibin" {
		t.Errorf("server saw %s %q", gotMethod, gotBody)
	}
	if gotCT != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", gotCT)
	}
	if !res.OK() {
		t.Errorf("StatusCode = %d", res.StatusCode)
	}
	var out struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	if err := res.Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if out.Name != "qibin" {
		t.Errorf("Name = %q", out.Name)
	}
}

func TestClient_Configure_decoder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Write([]byte("name: qibin\n"))
	}))
	defer srv.Close()

	c := New(Options{})
	c.Configure(model.TransportOptions{Decoder: codec.NegotiatingFactory(codec.JSON)})

	res, err := c.Do(context.Background(), exchange("GET", srv.URL, nil, nil))
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	var out map[string]any
	if err := res.Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if out["name"] != "qibin" {
		t.Errorf("decoded = %v", out)
	}
}

func TestClient_headers(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	c := New(Options{
		Headers: map[string]string{"X-Client": "callwire"},
		Tokens:  StaticToken("service-token"),
	})
	rctx := &model.RequestContext{
		TenantID:      "tenant-1",
		CorrelationID: "corr\r\nInjected: yes",
		Headers:       map[string]string{"X-Extra": "1"},
	}
	ctx := model.WithRequestContext(context.Background(), rctx)

	if _, err := c.Do(ctx, exchange("GET", srv.URL, nil, nil)); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	checks := map[string]string{
		"Authorization":    "Bearer service-token",
		"X-Client":         "callwire",
		"X-Tenant-Id":      "tenant-1",
		"X-Correlation-Id": "corrInjected: yes",
		"X-Extra":          "1",
	}
	for k, want := range checks {
		if v := got.Get(k); v != want {
			t.Errorf("%s = %q, want %q", k, v, want)
		}
	}
	if got.Get("Injected") != "" {
		t.Error("header injection was not sanitized")
	}
	if got.Get("X-Partition-Id") != "" {
		t.Error("empty RequestContext fields should not be sent")
	}
}

func TestClient_requestTokenWins(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	c := New(Options{Tokens: StaticToken("service-token")})
	ctx := model.WithRequestContext(context.Background(), &model.RequestContext{Token: "user-token", SubjectID: "u1"})
	if _, err := c.Do(ctx, exchange("GET", srv.URL, nil, nil)); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if auth != "Bearer user-token" {
		t.Errorf("Authorization = %q, want user token", auth)
	}
}

func TestClient_nonSuccessStatusIsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"no such user"}`))
	}))
	defer srv.Close()

	res, err := New(Options{}).Do(context.Background(), exchange("GET", srv.URL, nil, nil))
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if res.OK() {
		t.Error("OK() = true for 404")
	}
	if res.Message() != "no such user" {
		t.Errorf("Message() = %q", res.Message())
	}
}

func TestClient_circuitBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	metrics := observability.InitMetrics(reg)
	c := New(Options{
		CircuitBreaker: config.CircuitBreakerConfig{Enabled: true, FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute},
		Metrics:        metrics,
	})

	for range 2 {
		if _, err := c.Do(context.Background(), exchange("GET", srv.URL, nil, nil)); err != nil {
			t.Fatalf("Do() error = %v", err)
		}
	}
	_, err := c.Do(context.Background(), exchange("GET", srv.URL, nil, nil))
	if !errors.Is(err, model.BackendUnavailable) {
		t.Fatalf("error = %v, want BACKEND_UNAVAILABLE", err)
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2", hits.Load())
	}

	host := srv.Listener.Addr().String()
	if c.BreakerState(host) != BreakerOpen {
		t.Errorf("BreakerState = %v, want open", c.BreakerState(host))
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues(host)); got != float64(BreakerOpen) {
		t.Errorf("breaker gauge = %v, want %v", got, float64(BreakerOpen))
	}
	if got := testutil.ToFloat64(metrics.ExchangesTotal.WithLabelValues(host, "GET", "502")); got != 2 {
		t.Errorf("exchanges{502} = %v, want 2", got)
	}
}

func TestClient_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL
	srv.Close()

	_, err := New(Options{}).Do(context.Background(), exchange("GET", target, nil, nil))
	if !errors.Is(err, model.BackendUnavailable) {
		t.Errorf("error = %v, want BACKEND_UNAVAILABLE", err)
	}
}

func TestClient_timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := New(Options{}).Do(ctx, exchange("GET", srv.URL, nil, nil))
	if !errors.Is(err, model.BackendTimeout) {
		t.Errorf("error = %v, want BACKEND_TIMEOUT", err)
	}
}

func TestClient_CancelByTag(t *testing.T) {
	started := make(chan struct{}, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := New(Options{})
	errs := make(chan error, 2)
	for range 2 {
		go func() {
			_, err := c.Do(context.Background(), exchange("GET", srv.URL, nil, "screen-1"))
			errs <- err
		}()
	}
	for range 2 {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("exchanges did not start")
		}
	}

	if n := c.Inflight("screen-1"); n != 2 {
		t.Errorf("Inflight = %d, want 2", n)
	}
	if n := c.Cancel("screen-1"); n != 2 {
		t.Errorf("Cancel() = %d, want 2", n)
	}
	for range 2 {
		select {
		case err := <-errs:
			if !errors.Is(err, model.Canceled) {
				t.Errorf("error = %v, want CANCELED", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("canceled exchange did not return")
		}
	}
	if n := c.Cancel("screen-1"); n != 0 {
		t.Errorf("second Cancel() = %d, want 0", n)
	}
}

func TestClient_Cancel_unhashableTag(t *testing.T) {
	c := New(Options{})
	if n := c.Cancel([]string{"x"}); n != 0 {
		t.Errorf("Cancel() = %d, want 0", n)
	}
	if n := c.Cancel(nil); n != 0 {
		t.Errorf("Cancel(nil) = %d, want 0", n)
	}
}

func TestClient_debugLogging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"abc","name":"qibin"}`))
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	c := New(Options{Logger: zap.New(core)})
	c.Configure(model.TransportOptions{Debug: true})

	if _, err := c.Do(context.Background(), exchange("POST", srv.URL, []byte(`{"password":"x"}`), nil)); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	entries := logs.FilterMessage("exchange completed").All()
	if len(entries) != 1 {
		t.Fatalf("debug entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_body"] != `{"password":"[REDACTED]"}` {
		t.Errorf("request_body = %v", fields["request_body"])
	}
	if fields["response_body"] != `{"name":"qibin","token":"[REDACTED]"}` {
		t.Errorf("response_body = %v", fields["response_body"])
	}
}

func TestClient_invalidURL(t *testing.T) {
	_, err := New(Options{}).Do(context.Background(), exchange("GET", "/relative", nil, nil))
	if !errors.Is(err, &model.Error{Code: model.ErrEncodeFailed}) {
		t.Errorf("error = %v, want ENCODE_FAILED", err)
	}
}

func TestFromConfig_jwt(t *testing.T) {
	cfg := config.Defaults().Client
	cfg.Auth.Strategy = "jwt"
	cfg.Auth.JWT.SecretEnv = "TEST_SECRET"

	getenv := func(k string) string {
		if k == "TEST_SECRET" {
			return "k"
		}
		return ""
	}
	c, err := FromConfig(cfg, nil, nil, getenv)
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	if _, ok := c.opts.Tokens.(*JWTSigner); !ok {
		t.Errorf("Tokens = %T, want *JWTSigner", c.opts.Tokens)
	}

	if _, err := FromConfig(cfg, nil, nil, func(string) string { return "" }); err == nil {
		t.Error("FromConfig() with missing secret should fail")
	}
}
