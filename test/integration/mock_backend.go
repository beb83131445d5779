package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

// MockBackend is a configurable HTTP test server that plays the remote side
// of dispatched calls. Responses are configured per route and every received
// request is recorded for later assertion.
type MockBackend struct {
	t      *testing.T
	server *httptest.Server

	mu          sync.RWMutex
	routes      map[string]*routeConfig
	received    map[string][]*RecordedRequest
	inFlight    int
	maxInFlight int
}

// RecordedRequest captures the details of a request received by the mock backend.
type RecordedRequest struct {
	Method     string
	Path       string
	RawPath    string
	Query      url.Values
	Form       url.Values
	Headers    http.Header
	Body       map[string]any
	RawBody    []byte
	ReceivedAt time.Time
}

// routeConfig holds the configured responses for a single route.
type routeConfig struct {
	mu        sync.Mutex
	responses []*mockResponse
	current   int
}

type mockResponse struct {
	status      int
	body        any
	contentType string
	delay       time.Duration
	connError   bool
	headerFunc  func(http.Header)
}

// RouteMock is a builder for configuring mock responses for a specific route.
type RouteMock struct {
	backend *MockBackend
	name    string
}

// route maps a route name to its HTTP method and path pattern.
type route struct {
	method      string
	pathPattern string
}

// newMockBackend creates a new mock backend and starts the HTTP test server.
func newMockBackend(t *testing.T, routes map[string]route) *MockBackend {
	t.Helper()

	mb := &MockBackend{
		t:        t,
		routes:   make(map[string]*routeConfig),
		received: make(map[string][]*RecordedRequest),
	}

	mux := http.NewServeMux()
	for name, r := range routes {
		mux.HandleFunc(r.method+" "+r.pathPattern, mb.handle(name))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"message": fmt.Sprintf("mock: no route registered for %s %s", r.Method, r.URL.Path),
		})
	})

	mb.server = httptest.NewServer(mux)
	t.Cleanup(mb.server.Close)

	return mb
}

// URL returns the base URL of the mock backend server.
func (mb *MockBackend) URL() string {
	return mb.server.URL
}

// On returns a builder for configuring responses for the named route.
func (mb *MockBackend) On(name string) *RouteMock {
	return &RouteMock{backend: mb, name: name}
}

// RespondWith configures the route to respond with the given status and JSON body.
func (rm *RouteMock) RespondWith(status int, body any) *RouteMock {
	rm.backend.addResponse(rm.name, &mockResponse{status: status, body: body})
	return rm
}

// RespondWithYAML configures a YAML encoded response.
func (rm *RouteMock) RespondWithYAML(status int, body string) *RouteMock {
	rm.backend.addResponse(rm.name, &mockResponse{status: status, body: body, contentType: "application/yaml"})
	return rm
}

// RespondWithDelay configures a delayed response to simulate slow backends.
func (rm *RouteMock) RespondWithDelay(delay time.Duration, status int, body any) *RouteMock {
	rm.backend.addResponse(rm.name, &mockResponse{status: status, body: body, delay: delay})
	return rm
}

// RespondWithConnectionError configures the route to close the connection
// to simulate a backend failure.
func (rm *RouteMock) RespondWithConnectionError() *RouteMock {
	rm.backend.addResponse(rm.name, &mockResponse{connError: true})
	return rm
}

// RespondWithHeaders configures additional response headers.
func (rm *RouteMock) RespondWithHeaders(status int, body any, headerFunc func(http.Header)) *RouteMock {
	rm.backend.addResponse(rm.name, &mockResponse{status: status, body: body, headerFunc: headerFunc})
	return rm
}

func (mb *MockBackend) addResponse(name string, resp *mockResponse) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	cfg, ok := mb.routes[name]
	if !ok {
		cfg = &routeConfig{}
		mb.routes[name] = cfg
	}
	cfg.responses = append(cfg.responses, resp)
}

func (mb *MockBackend) handle(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &RecordedRequest{
			Method:     r.Method,
			Path:       r.URL.Path,
			RawPath:    r.URL.EscapedPath(),
			Query:      r.URL.Query(),
			Headers:    r.Header.Clone(),
			ReceivedAt: time.Now(),
		}
		if r.Body != nil {
			body, _ := io.ReadAll(r.Body)
			rec.RawBody = body
			switch {
			case strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded"):
				rec.Form, _ = url.ParseQuery(string(body))
			case len(body) > 0:
				var parsed map[string]any
				if err := json.Unmarshal(body, &parsed); err == nil {
					rec.Body = parsed
				}
			}
		}

		mb.mu.Lock()
		mb.received[name] = append(mb.received[name], rec)
		mb.inFlight++
		if mb.inFlight > mb.maxInFlight {
			mb.maxInFlight = mb.inFlight
		}
		mb.mu.Unlock()
		defer func() {
			mb.mu.Lock()
			mb.inFlight--
			mb.mu.Unlock()
		}()

		resp := mb.nextResponse(name)
		if resp == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
			return
		}

		if resp.connError {
			// Hijack the connection and close it to simulate a connection error.
			if hj, ok := w.(http.Hijacker); ok {
				conn, _, _ := hj.Hijack()
				if conn != nil {
					conn.Close()
				}
			}
			return
		}

		if resp.delay > 0 {
			select {
			case <-time.After(resp.delay):
			case <-r.Context().Done():
				return
			}
		}

		if resp.headerFunc != nil {
			resp.headerFunc(w.Header())
		}
		if resp.contentType != "" {
			w.Header().Set("Content-Type", resp.contentType)
			w.WriteHeader(resp.status)
			fmt.Fprint(w, resp.body)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		if resp.body != nil {
			json.NewEncoder(w).Encode(resp.body)
		}
	}
}

func (mb *MockBackend) nextResponse(name string) *mockResponse {
	mb.mu.RLock()
	cfg, ok := mb.routes[name]
	mb.mu.RUnlock()
	if !ok || cfg == nil {
		return nil
	}

	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	if len(cfg.responses) == 0 {
		return nil
	}

	idx := cfg.current
	if idx >= len(cfg.responses) {
		// Repeat the last response for subsequent calls.
		idx = len(cfg.responses) - 1
	} else {
		cfg.current++
	}
	return cfg.responses[idx]
}

// AssertCalled verifies that the route was called the expected number of times.
func (mb *MockBackend) AssertCalled(t *testing.T, name string, expectedCount int) {
	t.Helper()
	mb.mu.RLock()
	actual := len(mb.received[name])
	mb.mu.RUnlock()
	if actual != expectedCount {
		t.Errorf("mock: route %q called %d times, want %d", name, actual, expectedCount)
	}
}

// AssertNotCalled verifies that the route was never called.
func (mb *MockBackend) AssertNotCalled(t *testing.T, name string) {
	t.Helper()
	mb.AssertCalled(t, name, 0)
}

// LastRequest returns the last request received for the given route.
// Returns nil if no requests were recorded.
func (mb *MockBackend) LastRequest(name string) *RecordedRequest {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	reqs := mb.received[name]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// AllRequests returns all requests received for the given route.
func (mb *MockBackend) AllRequests(name string) []*RecordedRequest {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	reqs := mb.received[name]
	copied := make([]*RecordedRequest, len(reqs))
	copy(copied, reqs)
	return copied
}

// MaxInFlight returns the highest number of concurrently handled requests.
func (mb *MockBackend) MaxInFlight() int {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return mb.maxInFlight
}

// ResetRoute clears recorded requests and configured responses for one route.
func (mb *MockBackend) ResetRoute(name string) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	delete(mb.routes, name)
	delete(mb.received, name)
}

// DefaultRoutes returns the routes served for the test descriptor tables,
// keyed by Interface.Method.
func DefaultRoutes() map[string]route {
	return map[string]route{
		"Orders.List":          {method: "GET", pathPattern: "/api/orders"},
		"Orders.Search":        {method: "GET", pathPattern: "/api/orders/search"},
		"Orders.Get":           {method: "GET", pathPattern: "/api/orders/{id}"},
		"Orders.Update":        {method: "PATCH", pathPattern: "/api/orders/{id}"},
		"Orders.Cancel":        {method: "POST", pathPattern: "/api/orders/{id}/cancel"},
		"Orders.Confirm":       {method: "POST", pathPattern: "/api/orders/{id}/confirm"},
		"Inventory.ListItems":  {method: "GET", pathPattern: "/api/items"},
		"Inventory.CreateItem": {method: "POST", pathPattern: "/api/items"},
		"Inventory.GetItem":    {method: "GET", pathPattern: "/api/items/{itemId}"},
	}
}
