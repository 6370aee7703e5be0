// Package integration provides a reusable test harness for end-to-end
// testing of the Gestri BFF. It starts the full HTTP router backed by a mock
// Django server, so tests exercise the real middleware chain, gateway, and
// composite workflow.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/gestri/gestri-bff/internal/config"
	"github.com/gestri/gestri-bff/internal/gateway"
	"github.com/gestri/gestri-bff/internal/observability"
	"github.com/gestri/gestri-bff/internal/saga"
	"github.com/gestri/gestri-bff/internal/transport"
)

// TestHarness encapsulates a fully wired BFF instance with a mock backend.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server

	Backend *MockDjango
	Gateway *gateway.Gateway

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*config.Config)

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(cfg *config.Config) {
		cfg.Server.HandlerTimeout = d
	}
}

// WithBackendTimeout sets the outbound backend call timeout.
func WithBackendTimeout(d time.Duration) HarnessOption {
	return func(cfg *config.Config) {
		cfg.Backend.Timeout = d
	}
}

// WithCircuitBreaker overrides the breaker thresholds.
func WithCircuitBreaker(failures, successes int, timeout time.Duration) HarnessOption {
	return func(cfg *config.Config) {
		cfg.Backend.CircuitBreaker = config.CircuitBreakerConfig{
			FailureThreshold: failures,
			SuccessThreshold: successes,
			Timeout:          timeout,
		}
	}
}

// NewTestHarness creates and starts a full BFF test instance. The servers
// are cleaned up automatically when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	mb := newMockDjango(t)

	cfg := config.Defaults()
	cfg.Backend.BaseURL = mb.URL()
	cfg.Backend.Port = 0 // the mock URL already carries its port
	cfg.Backend.Timeout = 5 * time.Second
	cfg.Observability.Metrics.Enabled = false
	for _, opt := range opts {
		opt(cfg)
	}

	logger := zap.NewNop()
	gw := gateway.New(cfg, logger, nil)

	router := transport.NewRouter(transport.Dependencies{
		Config:    cfg,
		Backend:   gw,
		Composite: saga.NewCompositeMezzo(gw, logger, nil),
		Logger:    logger,
		Readiness: observability.ReadinessChecks{
			Backend:      gw,
			BreakerState: func() string { return gw.Breaker().State().String() },
		},
	})

	h := &TestHarness{
		t:       t,
		Backend: mb,
		Gateway: gw,
		cfg:     cfg,
	}
	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// --- HTTP client helpers ---

// GET performs a GET request, optionally authenticated.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil, token, nil)
}

// POST performs a POST request with a JSON body, optionally authenticated.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPost, path, body, token, nil)
}

// PUT performs a PUT request with a JSON body.
func (h *TestHarness) PUT(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPut, path, body, token, nil)
}

// DELETE performs a DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodDelete, path, nil, token, nil)
}

// GETWithHeaders performs a GET request with additional headers.
func (h *TestHarness) GETWithHeaders(path, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil, token, headers)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks the status and parses the body into the target.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// --- Fixtures ---

// MezzoFixture returns a vehicle object as the backend would serialize it.
func MezzoFixture(id int64, targa, stato string) map[string]any {
	return map[string]any{
		"id":                    float64(id),
		"targa":                 targa,
		"statoMezzo":            stato,
		"chilometraggio":        float64(120000),
		"consumoCarburante":     8.5,
		"scadenzaRevisione":     "2027-03-01",
		"scadenzaAssicurazione": "2026-12-31",
		"isDanneggiato":         false,
	}
}

// RimorchioFixture returns a trailer object as the backend would serialize it.
func RimorchioFixture(id int64, nome, tipo string) map[string]any {
	return map[string]any{
		"id":               float64(id),
		"nome":             nome,
		"tipoRimorchio":    tipo,
		"capacitaDiCarico": 24.0,
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
