// Package httpclient is the default transport of a dispatcher. It performs
// encoded exchanges over net/http with per-host circuit breaking, bearer
// authentication, header and trace propagation, metrics, and tag-grouped
// cancellation.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/callwire/codec"
	"github.com/pitabwire/callwire/internal/config"
	"github.com/pitabwire/callwire/internal/observability"
	"github.com/pitabwire/callwire/model"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 10 << 20

// DefaultTimeout is used when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Options configures a Client.
type Options struct {
	Timeout        time.Duration
	Headers        map[string]string
	RedactFields   []string
	CircuitBreaker config.CircuitBreakerConfig
	Tokens         TokenSource
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	HTTPClient     *http.Client
}

// Client is a model.Transport backed by net/http.
type Client struct {
	opts     Options
	http     *http.Client
	logger   *zap.Logger
	redactor *observability.Redactor

	mu       sync.RWMutex
	decoder  model.DecoderFactory
	debug    bool
	breakers map[string]*CircuitBreaker

	inflightMu sync.Mutex
	nextID     uint64
	inflight   map[any]map[uint64]context.CancelFunc
}

var (
	_ model.ConfigurableTransport = (*Client)(nil)
	_ model.Canceler              = (*Client)(nil)
)

// New creates a Client.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		opts:     opts,
		http:     hc,
		logger:   logger.Named("httpclient"),
		redactor: observability.NewRedactor(opts.RedactFields),
		decoder:  codec.JSONFactory(),
		breakers: make(map[string]*CircuitBreaker),
		inflight: make(map[any]map[uint64]context.CancelFunc),
	}
}

// FromConfig creates a Client from the client configuration section.
func FromConfig(cfg config.ClientConfig, logger *zap.Logger, metrics *observability.Metrics, getenv func(string) string) (*Client, error) {
	opts := Options{
		Timeout:        cfg.Timeout,
		Headers:        cfg.Headers,
		RedactFields:   cfg.RedactFields,
		CircuitBreaker: cfg.CircuitBreaker,
		Logger:         logger,
		Metrics:        metrics,
	}
	switch cfg.Auth.Strategy {
	case "bearer":
		opts.Tokens = StaticToken(cfg.Auth.Token)
	case "jwt":
		j := cfg.Auth.JWT
		signer, err := NewJWTSigner(j.Issuer, j.Audience, j.Subject, []byte(getenv(j.SecretEnv)), j.TTL)
		if err != nil {
			return nil, fmt.Errorf("httpclient: %s: %w", j.SecretEnv, err)
		}
		opts.Tokens = signer
	}
	return New(opts), nil
}

// Configure receives the dispatcher's decoder factory and debug flag.
func (c *Client) Configure(opts model.TransportOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if opts.Decoder != nil {
		c.decoder = opts.Decoder
	}
	c.debug = opts.Debug
}

// Do performs one exchange.
func (c *Client) Do(ctx context.Context, ex *model.Exchange) (*model.Result, error) {
	method := ex.Request.FullName()

	target, err := url.Parse(ex.URL)
	if err != nil || target.Host == "" {
		return nil, model.Errorf(model.ErrEncodeFailed, method, "invalid request URL %q", ex.URL)
	}
	host := target.Host

	breaker := c.breaker(host)
	if breaker != nil {
		if err := breaker.Allow(); err != nil {
			return nil, model.NewBackendUnavailableError(method, err)
		}
	}

	ctx, release := c.track(ctx, ex.Request.Tag)
	defer release()

	ctx, span := observability.StartCallSpan(ctx, ex.Request, ex.Verb, ex.URL)

	requestID := uuid.NewString()
	start := time.Now()
	res, err := c.do(ctx, ex, breaker, requestID)
	duration := time.Since(start)

	status := 0
	if res != nil {
		status = res.StatusCode
	}
	observability.EndCallSpan(span, status, err)
	c.opts.Metrics.RecordExchange(host, ex.Verb, status, duration)
	c.logExchange(ctx, ex, requestID, res, err, duration)

	return res, err
}

func (c *Client) do(ctx context.Context, ex *model.Exchange, breaker *CircuitBreaker, requestID string) (*model.Result, error) {
	method := ex.Request.FullName()

	var body io.Reader
	if ex.Body != nil {
		body = bytes.NewReader(ex.Body)
	}
	req, err := http.NewRequestWithContext(ctx, ex.Verb, ex.URL, body)
	if err != nil {
		return nil, &model.Error{Code: model.ErrEncodeFailed, Method: method, Message: err.Error(), Cause: err}
	}
	if err := c.buildHeaders(ctx, req.Header, ex, requestID); err != nil {
		return nil, &model.Error{Code: model.ErrEncodeFailed, Method: method, Message: err.Error(), Cause: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.classify(ctx, method, err, breaker)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.classify(ctx, method, err, breaker)
	}

	if breaker != nil {
		switch {
		case resp.StatusCode >= 500:
			breaker.RecordFailure()
		case resp.StatusCode < 400:
			// 4xx are caller errors, not host failures.
			breaker.RecordSuccess()
		}
	}

	c.mu.RLock()
	dec := c.decoder.NewDecoder(resp.Header.Get("Content-Type"))
	c.mu.RUnlock()

	return model.NewResult(resp.StatusCode, resp.Header, data, dec), nil
}

// classify maps a net/http failure onto an execution error code.
func (c *Client) classify(ctx context.Context, method string, err error, breaker *CircuitBreaker) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return &model.Error{Code: model.ErrCanceled, Method: method, Message: "call canceled", Cause: err}
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		if breaker != nil {
			breaker.RecordFailure()
		}
		return model.NewBackendTimeoutError(method, err)
	}
	if breaker != nil {
		breaker.RecordFailure()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.NewBackendTimeoutError(method, err)
	}
	return model.NewBackendUnavailableError(method, err)
}

func (c *Client) buildHeaders(ctx context.Context, h http.Header, ex *model.Exchange, requestID string) error {
	h.Set("Accept", "application/json, application/yaml;q=0.9, */*;q=0.8")
	h.Set("User-Agent", "callwire/"+observability.Version)
	h.Set("X-Request-Id", requestID)
	for k, vs := range ex.Header {
		for _, v := range vs {
			h.Add(k, sanitizeHeader(v))
		}
	}
	if ex.ContentType != "" && ex.Body != nil {
		h.Set("Content-Type", ex.ContentType)
	}
	for k, v := range c.opts.Headers {
		h.Set(sanitizeHeader(k), sanitizeHeader(v))
	}

	rctx := model.RequestContextFrom(ctx)
	switch {
	case rctx != nil && rctx.Token != "":
		h.Set("Authorization", "Bearer "+sanitizeHeader(rctx.Token))
	case c.opts.Tokens != nil:
		token, err := c.opts.Tokens.Token(ctx)
		if err != nil {
			return err
		}
		if token != "" {
			h.Set("Authorization", "Bearer "+sanitizeHeader(token))
		}
	}
	if rctx != nil {
		setIfPresent(h, "X-Tenant-Id", rctx.TenantID)
		setIfPresent(h, "X-Partition-Id", rctx.PartitionID)
		setIfPresent(h, "X-Correlation-Id", rctx.CorrelationID)
		setIfPresent(h, "X-Request-Subject", rctx.SubjectID)
		// Caller supplied headers override the standard ones.
		for k, v := range rctx.Headers {
			h.Set(sanitizeHeader(k), sanitizeHeader(v))
		}
	}

	observability.InjectTraceHeaders(ctx, h)
	return nil
}

func setIfPresent(h http.Header, key, value string) {
	if value != "" {
		h.Set(key, sanitizeHeader(value))
	}
}

// sanitizeHeader strips newlines and carriage returns to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}

// breaker returns the circuit breaker of host, or nil when disabled.
func (c *Client) breaker(host string) *CircuitBreaker {
	cfg := c.opts.CircuitBreaker
	if !cfg.Enabled {
		return nil
	}

	c.mu.RLock()
	b, ok := c.breakers[host]
	c.mu.RUnlock()
	if ok {
		return b
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.breakers[host]; ok {
		return b
	}
	b = NewCircuitBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.Timeout)
	b.onChange = func(s BreakerState) {
		c.opts.Metrics.SetCircuitBreakerState(host, float64(s))
		c.logger.Warn("circuit breaker state changed",
			zap.String("host", host),
			zap.Stringer("state", s),
		)
	}
	c.breakers[host] = b
	c.opts.Metrics.SetCircuitBreakerState(host, float64(BreakerClosed))
	return b
}

// BreakerState returns the breaker state of host. Hosts never contacted
// report closed.
func (c *Client) BreakerState(host string) BreakerState {
	c.mu.RLock()
	b, ok := c.breakers[host]
	c.mu.RUnlock()
	if !ok {
		return BreakerClosed
	}
	return b.State()
}

// track registers a cancelable context under tag. A nil tag is not tracked.
func (c *Client) track(ctx context.Context, tag any) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	if tag == nil || !hashable(tag) {
		return ctx, cancel
	}

	c.inflightMu.Lock()
	c.nextID++
	id := c.nextID
	group, ok := c.inflight[tag]
	if !ok {
		group = make(map[uint64]context.CancelFunc)
		c.inflight[tag] = group
	}
	group[id] = cancel
	c.inflightMu.Unlock()

	return ctx, func() {
		c.inflightMu.Lock()
		if group, ok := c.inflight[tag]; ok {
			delete(group, id)
			if len(group) == 0 {
				delete(c.inflight, tag)
			}
		}
		c.inflightMu.Unlock()
		cancel()
	}
}

// Cancel aborts every in-flight exchange whose call carries tag.
func (c *Client) Cancel(tag any) int {
	if tag == nil || !hashable(tag) {
		return 0
	}
	c.inflightMu.Lock()
	group := c.inflight[tag]
	delete(c.inflight, tag)
	c.inflightMu.Unlock()

	for _, cancel := range group {
		cancel()
	}
	return len(group)
}

// Inflight returns the number of tracked exchanges for tag.
func (c *Client) Inflight(tag any) int {
	if tag == nil || !hashable(tag) {
		return 0
	}
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()
	return len(c.inflight[tag])
}

func (c *Client) logExchange(ctx context.Context, ex *model.Exchange, requestID string, res *model.Result, err error, d time.Duration) {
	c.mu.RLock()
	debug := c.debug
	c.mu.RUnlock()

	logger := observability.RequestLogger(ctx, c.logger)
	fields := append(observability.CallFields(ex.Request),
		zap.String("verb", ex.Verb),
		zap.String("url", ex.URL),
		zap.String("request_id", requestID),
		zap.Duration("duration", d),
	)
	if res != nil {
		fields = append(fields, zap.Int("status", res.StatusCode))
	}

	switch {
	case err != nil:
		logger.Warn("exchange failed", append(fields, zap.Error(err))...)
	case res.StatusCode >= 500:
		logger.Warn("exchange returned server error", fields...)
	case debug:
		fields = append(fields,
			zap.String("request_body", c.redactor.Payload(ex.Body, ex.ContentType)),
			zap.String("response_body", c.redactor.Payload(res.Body, res.Header.Get("Content-Type"))),
		)
		logger.Debug("exchange completed", fields...)
	}
}

// hashable reports whether tag can key a map without panicking.
func hashable(tag any) bool {
	return reflect.ValueOf(tag).Comparable()
}
