// Package gateway performs HTTP calls against the Django backend and
// normalizes every outcome into a model.Result. Callers never see transport
// errors: an unreachable backend becomes a synthesized 500 result, so the
// handler layer only ever deals in status plus decoded body.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gestri/gestri-bff/internal/config"
	"github.com/gestri/gestri-bff/internal/observability"
	"github.com/gestri/gestri-bff/model"
)

// UnreachableMessage is the body message of results synthesized when the
// backend cannot be reached at all.
const UnreachableMessage = "Cannot reach API server"

// Gateway is the single HTTP client for the Django backend. It owns the
// circuit breaker and the response normalization rules. Requests are never
// retried: callers receive exactly what the one attempt produced.
type Gateway struct {
	apiBase      string
	client       *http.Client
	breaker      *CircuitBreaker
	logger       *zap.Logger
	metrics      *observability.Metrics
	maxBodyBytes int64
}

// New creates a gateway from configuration.
func New(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) *Gateway {
	timeout := cfg.Backend.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxBody := cfg.Backend.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 10 << 20
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	cb := cfg.Backend.CircuitBreaker
	return &Gateway{
		apiBase: cfg.APIEndpoint(),
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		breaker:      NewCircuitBreaker(cb.FailureThreshold, cb.SuccessThreshold, cb.Timeout),
		logger:       logger,
		metrics:      metrics,
		maxBodyBytes: maxBody,
	}
}

// Breaker exposes the circuit breaker for health reporting.
func (g *Gateway) Breaker() *CircuitBreaker {
	return g.breaker
}

// HealthCheck verifies the backend answers HTTP at all. Any response,
// including 4xx/5xx, proves reachability; only transport failures count as
// unhealthy. The probe bypasses the breaker so readiness keeps reporting the
// real backend state while the breaker is open.
func (g *Gateway) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBase+"/", nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return nil
}

// Get performs a GET against the backend API.
func (g *Gateway) Get(ctx context.Context, path string, query url.Values) model.Result {
	return g.doJSON(ctx, http.MethodGet, path, query, nil)
}

// Post performs a POST with a JSON body against the backend API.
func (g *Gateway) Post(ctx context.Context, path string, body any) model.Result {
	return g.doJSON(ctx, http.MethodPost, path, nil, body)
}

// Put performs a PUT with a JSON body against the backend API.
func (g *Gateway) Put(ctx context.Context, path string, body any) model.Result {
	return g.doJSON(ctx, http.MethodPut, path, nil, body)
}

// Patch performs a PATCH with a JSON body against the backend API.
func (g *Gateway) Patch(ctx context.Context, path string, body any) model.Result {
	return g.doJSON(ctx, http.MethodPatch, path, nil, body)
}

// Delete performs a DELETE against the backend API.
func (g *Gateway) Delete(ctx context.Context, path string) model.Result {
	return g.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// ForwardRaw streams a request body to the backend unmodified, preserving the
// caller's Content-Type. Used for multipart uploads where re-encoding the body
// would corrupt it.
func (g *Gateway) ForwardRaw(ctx context.Context, method, path, contentType string, body io.Reader) model.Result {
	return g.execute(ctx, method, g.apiBase+path, contentType, body)
}

func (g *Gateway) doJSON(ctx context.Context, method, path string, query url.Values, body any) model.Result {
	reqURL := g.apiBase + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	contentType := ""
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return unreachableResult(fmt.Errorf("encode request body: %w", err))
		}
		reader = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	return g.execute(ctx, method, reqURL, contentType, reader)
}

// execute performs the single backend attempt with circuit breaker
// protection and normalizes whatever comes back.
func (g *Gateway) execute(ctx context.Context, method, reqURL, contentType string, body io.Reader) model.Result {
	start := time.Now()
	resource := resourceLabel(reqURL, g.apiBase)

	if err := g.breaker.Allow(); err != nil {
		g.logger.Warn("backend call rejected, circuit open",
			zap.String("method", method),
			zap.String("resource", resource),
		)
		g.observe(method, resource, http.StatusInternalServerError, start)
		return unreachableResult(err)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return unreachableResult(err)
	}
	g.setHeaders(ctx, req, contentType)

	resp, err := g.client.Do(req)
	if err != nil {
		g.breaker.RecordFailure()
		g.logger.Error("backend unreachable",
			zap.String("method", method),
			zap.String("resource", resource),
			zap.Error(err),
		)
		g.observe(method, resource, http.StatusInternalServerError, start)
		return unreachableResult(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBodyBytes))
	if err != nil {
		g.breaker.RecordFailure()
		g.observe(method, resource, http.StatusInternalServerError, start)
		return unreachableResult(err)
	}

	// 4xx responses are the backend doing its job, not an infrastructure
	// failure, so only 5xx counts against the breaker.
	if resp.StatusCode >= 500 {
		g.breaker.RecordFailure()
	} else {
		g.breaker.RecordSuccess()
	}

	g.observe(method, resource, resp.StatusCode, start)

	return model.Result{
		Status: resp.StatusCode,
		Data:   decodeBody(respBody),
	}
}

// setHeaders builds the outbound header set: JSON negotiation, the caller's
// bearer token when present, correlation id, and W3C trace context.
func (g *Gateway) setHeaders(ctx context.Context, req *http.Request, contentType string) {
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", sanitizeHeader(contentType))
	}

	if rctx := model.RequestContextFrom(ctx); rctx != nil {
		if rctx.Token != "" {
			req.Header.Set("Authorization", "Bearer "+sanitizeHeader(rctx.Token))
		}
		if rctx.CorrelationID != "" {
			req.Header.Set("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
		}
		if rctx.Locale != "" {
			req.Header.Set("Accept-Language", sanitizeHeader(rctx.Locale))
		}
	}

	observability.InjectTraceHeaders(ctx, req.Header)
}

func (g *Gateway) observe(method, resource string, status int, start time.Time) {
	if g.metrics == nil {
		return
	}
	g.metrics.RecordBackendRequest(method, resource, status, time.Since(start))
	g.metrics.SetCircuitBreakerState(breakerStateValue(g.breaker.State()))
}

func breakerStateValue(s BreakerState) float64 {
	switch s {
	case BreakerHalfOpen:
		return 1
	case BreakerOpen:
		return 2
	default:
		return 0
	}
}

// decodeBody turns a backend response body into the normalized data value:
// empty bodies become an empty object, valid JSON is decoded as-is, and
// non-JSON payloads are wrapped so callers still get structured data.
func decodeBody(body []byte) any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return map[string]any{}
	}
	var parsed any
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return map[string]any{"detail": string(trimmed)}
	}
	return parsed
}

// unreachableResult synthesizes the 500 result returned for any failure that
// prevented a backend response from being read.
func unreachableResult(err error) model.Result {
	return model.Result{
		Status: http.StatusInternalServerError,
		Data: map[string]any{
			"message": UnreachableMessage,
			"error":   err.Error(),
		},
	}
}

// resourceLabel extracts the first path segment after the API root, keeping
// metric label cardinality bounded regardless of ids in the path.
func resourceLabel(reqURL, apiBase string) string {
	rest := strings.TrimPrefix(reqURL, apiBase)
	rest = strings.TrimPrefix(rest, "/")
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "root"
	}
	return rest
}

// sanitizeHeader strips newlines and carriage returns to prevent header
// injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}
