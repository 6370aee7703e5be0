package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// MockDjango is a configurable HTTP test server that simulates the Django
// backend. It allows configuring per-operation responses and records all
// received requests for later assertion.
type MockDjango struct {
	t      *testing.T
	server *httptest.Server

	mu           sync.RWMutex
	operations   map[string]*operationConfig
	receivedByOp map[string][]*RecordedRequest
}

// RecordedRequest captures the details of a request received by the mock
// backend.
type RecordedRequest struct {
	Method      string
	Path        string
	QueryParams map[string]string
	Headers     http.Header
	Body        map[string]any
	RawBody     []byte
	ReceivedAt  time.Time
}

// operationConfig holds the configured responses for a single operation.
type operationConfig struct {
	mu        sync.Mutex
	responses []*mockResponse
	current   int
}

type mockResponse struct {
	status    int
	body      any
	delay     time.Duration
	connError bool
}

// OperationMock is a builder for configuring mock responses for a specific
// operation.
type OperationMock struct {
	backend *MockDjango
	opID    string
}

// operationRoute maps an operation ID to its HTTP method and path pattern.
type operationRoute struct {
	method      string
	pathPattern string
}

// djangoRoutes lists the backend endpoints the mock understands, keyed by
// operation ID. Patterns use net/http ServeMux syntax; {$} pins collection
// roots to their exact path.
func djangoRoutes() map[string]operationRoute {
	return map[string]operationRoute{
		"apiRoot": {method: "GET", pathPattern: "/api/{$}"},

		"listAttivita":  {method: "GET", pathPattern: "/api/attivita/{$}"},
		"getAttivita":   {method: "GET", pathPattern: "/api/attivita/{id}/{$}"},
		"cercaAttivita": {method: "GET", pathPattern: "/api/attivita/cerca/{term}/{$}"},

		"lookupMezzoByTarga": {method: "GET", pathPattern: "/api/mezzi/by-targa/{targa}/{$}"},
		"listMezziByStato":   {method: "GET", pathPattern: "/api/mezzi/by-stato/{stato}/{$}"},
		"createMezzo":        {method: "POST", pathPattern: "/api/mezzi/{$}"},
		"getMezzo":           {method: "GET", pathPattern: "/api/mezzi/{id}/{$}"},
		"deleteMezzo":        {method: "DELETE", pathPattern: "/api/mezzi/{id}/{$}"},

		"listRimorchi":    {method: "GET", pathPattern: "/api/rimorchi/{$}"},
		"createRimorchio": {method: "POST", pathPattern: "/api/rimorchi/{$}"},
		"getRimorchio":    {method: "GET", pathPattern: "/api/rimorchi/{id}/{$}"},
		"deleteRimorchio": {method: "DELETE", pathPattern: "/api/rimorchi/{id}/{$}"},

		"listAssociazioni":   {method: "GET", pathPattern: "/api/mezzi-rimorchi/{$}"},
		"createAssociazione": {method: "POST", pathPattern: "/api/mezzi-rimorchi/{$}"},

		"listUtenti":   {method: "GET", pathPattern: "/api/utenti/{$}"},
		"createUtente": {method: "POST", pathPattern: "/api/utenti/{$}"},

		"listAssenzeOperatore": {method: "GET", pathPattern: "/api/assenze/operatore/{id}/{$}"},
		"createAssenza":        {method: "POST", pathPattern: "/api/assenze/{$}"},

		"listDocumenti":   {method: "GET", pathPattern: "/api/documenti/{$}"},
		"createDocumento": {method: "POST", pathPattern: "/api/documenti/{$}"},

		"getProfile": {method: "GET", pathPattern: "/api/profile/{$}"},
		"whoami":     {method: "GET", pathPattern: "/api/whoami/{$}"},
	}
}

// newMockDjango creates a new mock backend and starts the HTTP test server.
func newMockDjango(t *testing.T) *MockDjango {
	t.Helper()

	mb := &MockDjango{
		t:            t,
		operations:   make(map[string]*operationConfig),
		receivedByOp: make(map[string][]*RecordedRequest),
	}

	mux := http.NewServeMux()
	for opID, route := range djangoRoutes() {
		pattern := route.method + " " + route.pathPattern
		mux.HandleFunc(pattern, mb.handleOperation(opID))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"detail": fmt.Sprintf("mock: no operation registered for %s %s", r.Method, r.URL.Path),
		})
	})

	mb.server = httptest.NewServer(mux)
	t.Cleanup(mb.server.Close)

	return mb
}

// URL returns the base URL of the mock backend server.
func (mb *MockDjango) URL() string {
	return mb.server.URL
}

// OnOperation returns a builder for configuring responses for the named
// operation.
func (mb *MockDjango) OnOperation(operationID string) *OperationMock {
	return &OperationMock{backend: mb, opID: operationID}
}

// RespondWith configures the operation to respond with the given status and
// body. Repeated calls queue responses; the last one repeats.
func (om *OperationMock) RespondWith(status int, body any) *OperationMock {
	om.backend.addResponse(om.opID, &mockResponse{status: status, body: body})
	return om
}

// RespondWithDelay configures a delayed response to simulate a slow backend.
func (om *OperationMock) RespondWithDelay(delay time.Duration, status int, body any) *OperationMock {
	om.backend.addResponse(om.opID, &mockResponse{status: status, body: body, delay: delay})
	return om
}

// RespondWithConnectionError configures the operation to close the
// connection to simulate a backend failure.
func (om *OperationMock) RespondWithConnectionError() *OperationMock {
	om.backend.addResponse(om.opID, &mockResponse{connError: true})
	return om
}

func (mb *MockDjango) addResponse(opID string, resp *mockResponse) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	cfg, ok := mb.operations[opID]
	if !ok {
		cfg = &operationConfig{}
		mb.operations[opID] = cfg
	}
	cfg.responses = append(cfg.responses, resp)
}

func (mb *MockDjango) handleOperation(opID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &RecordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			QueryParams: make(map[string]string),
			Headers:     r.Header.Clone(),
			ReceivedAt:  time.Now(),
		}
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				rec.QueryParams[key] = values[0]
			}
		}
		if r.Body != nil {
			body, _ := io.ReadAll(r.Body)
			rec.RawBody = body
			if len(body) > 0 {
				var parsed map[string]any
				if err := json.Unmarshal(body, &parsed); err == nil {
					rec.Body = parsed
				}
			}
		}

		mb.mu.Lock()
		mb.receivedByOp[opID] = append(mb.receivedByOp[opID], rec)
		mb.mu.Unlock()

		resp := mb.getNextResponse(opID)
		if resp == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
			return
		}

		if resp.connError {
			hj, ok := w.(http.Hijacker)
			if ok {
				conn, _, _ := hj.Hijack()
				if conn != nil {
					conn.Close()
				}
			}
			return
		}

		if resp.delay > 0 {
			time.Sleep(resp.delay)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		if resp.body != nil {
			json.NewEncoder(w).Encode(resp.body)
		}
	}
}

func (mb *MockDjango) getNextResponse(opID string) *mockResponse {
	mb.mu.RLock()
	cfg, ok := mb.operations[opID]
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

// AssertCalled verifies that the operation was called the expected number of
// times.
func (mb *MockDjango) AssertCalled(t *testing.T, operationID string, expectedCount int) {
	t.Helper()
	mb.mu.RLock()
	actual := len(mb.receivedByOp[operationID])
	mb.mu.RUnlock()
	if actual != expectedCount {
		t.Errorf("mock: operation %q called %d times, want %d", operationID, actual, expectedCount)
	}
}

// AssertNotCalled verifies that the operation was never called.
func (mb *MockDjango) AssertNotCalled(t *testing.T, operationID string) {
	t.Helper()
	mb.AssertCalled(t, operationID, 0)
}

// LastRequest returns the last request received for the given operation, or
// nil if none were recorded.
func (mb *MockDjango) LastRequest(operationID string) *RecordedRequest {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	reqs := mb.receivedByOp[operationID]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// AllRequests returns all requests received for the given operation.
func (mb *MockDjango) AllRequests(operationID string) []*RecordedRequest {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	reqs := mb.receivedByOp[operationID]
	copied := make([]*RecordedRequest, len(reqs))
	copy(copied, reqs)
	return copied
}

// Reset clears all recorded requests and configured responses.
func (mb *MockDjango) Reset() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.operations = make(map[string]*operationConfig)
	mb.receivedByOp = make(map[string][]*RecordedRequest)
}
