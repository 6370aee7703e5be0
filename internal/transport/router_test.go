package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/gestri/gestri-bff/internal/config"
	"github.com/gestri/gestri-bff/internal/observability"
	"github.com/gestri/gestri-bff/internal/saga"
	"github.com/gestri/gestri-bff/model"
)

// backendCall records one request the handlers sent to the fake backend.
type backendCall struct {
	method      string
	path        string
	query       url.Values
	body        any
	contentType string
	raw         []byte
}

// fakeBackend answers scripted results keyed by "METHOD path" and records
// every call in order. Unknown paths answer 404 like the real backend.
type fakeBackend struct {
	responses map[string]model.Result
	calls     []backendCall
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{responses: make(map[string]model.Result)}
}

func (f *fakeBackend) on(method, path string, res model.Result) {
	f.responses[method+" "+path] = res
}

func (f *fakeBackend) answer(c backendCall) model.Result {
	f.calls = append(f.calls, c)
	if res, ok := f.responses[c.method+" "+c.path]; ok {
		return res
	}
	return model.Result{Status: http.StatusNotFound, Data: map[string]any{"detail": "Not found."}}
}

func (f *fakeBackend) Get(_ context.Context, path string, query url.Values) model.Result {
	return f.answer(backendCall{method: http.MethodGet, path: path, query: query})
}

func (f *fakeBackend) Post(_ context.Context, path string, body any) model.Result {
	return f.answer(backendCall{method: http.MethodPost, path: path, body: body})
}

func (f *fakeBackend) Put(_ context.Context, path string, body any) model.Result {
	return f.answer(backendCall{method: http.MethodPut, path: path, body: body})
}

func (f *fakeBackend) Patch(_ context.Context, path string, body any) model.Result {
	return f.answer(backendCall{method: http.MethodPatch, path: path, body: body})
}

func (f *fakeBackend) Delete(_ context.Context, path string) model.Result {
	return f.answer(backendCall{method: http.MethodDelete, path: path})
}

func (f *fakeBackend) ForwardRaw(_ context.Context, method, path, contentType string, body io.Reader) model.Result {
	raw, _ := io.ReadAll(body)
	return f.answer(backendCall{method: method, path: path, contentType: contentType, raw: raw})
}

func (f *fakeBackend) find(method, path string) *backendCall {
	for i := range f.calls {
		if f.calls[i].method == method && f.calls[i].path == path {
			return &f.calls[i]
		}
	}
	return nil
}

type alwaysHealthy struct{}

func (alwaysHealthy) HealthCheck(_ context.Context) error { return nil }

func newTestRouter(b *fakeBackend) http.Handler {
	cfg := config.Defaults()
	return NewRouter(Dependencies{
		Config:    cfg,
		Backend:   b,
		Composite: saga.NewCompositeMezzo(b, zap.NewNop(), nil),
		Readiness: observability.ReadinessChecks{Backend: alwaysHealthy{}},
	})
}

func doJSON(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_listWrapsInEnvelope(t *testing.T) {
	b := newFakeBackend()
	b.on("GET", "/attivita/", model.Result{
		Status: http.StatusOK,
		Data:   []any{map[string]any{"id": float64(1)}, map[string]any{"id": float64(2)}},
	})

	rec := doJSON(t, newTestRouter(b), http.MethodGet, "/api/attivita/", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string][]any
	json.NewDecoder(rec.Body).Decode(&body)
	if len(body["data"]) != 2 {
		t.Errorf("data = %v", body["data"])
	}
}

func TestRouter_invalidIDRejectedWithoutBackendCall(t *testing.T) {
	b := newFakeBackend()

	rec := doJSON(t, newTestRouter(b), http.MethodGet, "/api/attivita/abc", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(b.calls) != 0 {
		t.Errorf("no backend call expected, got %v", b.calls)
	}
}

func TestRouter_errorStatusAndBodyPassThrough(t *testing.T) {
	b := newFakeBackend()
	b.on("GET", "/attivita/5/", model.Result{
		Status: http.StatusNotFound,
		Data:   map[string]any{"detail": "Not found."},
	})

	rec := doJSON(t, newTestRouter(b), http.MethodGet, "/api/attivita/5", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	if body["detail"] != "Not found." {
		t.Errorf("body = %v", body)
	}
}

func TestRouter_blankSearchTermFallsBackToList(t *testing.T) {
	b := newFakeBackend()
	b.on("GET", "/mezzi-rimorchi/", model.Result{Status: http.StatusOK, Data: []any{}})

	rec := doJSON(t, newTestRouter(b), http.MethodGet, "/api/mezzi-rimorchi/cerca/%20", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if b.find("GET", "/mezzi-rimorchi/") == nil {
		t.Errorf("blank term should list, calls = %v", b.calls)
	}
}

func TestRouter_searchTermForwarded(t *testing.T) {
	b := newFakeBackend()
	b.on("GET", "/mezzi-rimorchi/cerca/cisterna/", model.Result{Status: http.StatusOK, Data: []any{}})

	rec := doJSON(t, newTestRouter(b), http.MethodGet, "/api/mezzi-rimorchi/cerca/cisterna", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRouter_filterByPostForwardsFilters(t *testing.T) {
	b := newFakeBackend()
	b.on("POST", "/documenti/filter-by/tipo/", model.Result{Status: http.StatusOK, Data: []any{}})

	rec := doJSON(t, newTestRouter(b), http.MethodPost,
		"/api/documenti/filter-by/tipo", `{"filters":["FIR"]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	call := b.find("POST", "/documenti/filter-by/tipo/")
	if call == nil {
		t.Fatalf("calls = %v", b.calls)
	}
	body, _ := call.body.(map[string]any)
	if _, ok := body["filters"]; !ok {
		t.Errorf("filters not forwarded: %v", call.body)
	}
}

func TestRouter_assenzeCreateNormalizesTipo(t *testing.T) {
	b := newFakeBackend()
	b.on("POST", "/assenze/", model.Result{Status: http.StatusCreated, Data: map[string]any{"id": float64(1)}})

	rec := doJSON(t, newTestRouter(b), http.MethodPost,
		"/api/assenze/", `{"tipoAssenza":"vacanza","operatore_id":3}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	call := b.find("POST", "/assenze/")
	body, _ := call.body.(map[string]any)
	if body["tipoAssenza"] != model.TipoAssenzaPermesso {
		t.Errorf("tipoAssenza = %v, want PERMESSO", body["tipoAssenza"])
	}
}

func TestRouter_utentiCreaRequiresCredentials(t *testing.T) {
	b := newFakeBackend()

	rec := doJSON(t, newTestRouter(b), http.MethodPost, "/api/utenti/crea", `{"nome":"Mario"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body model.ValidationFailed
	json.NewDecoder(rec.Body).Decode(&body)
	if len(body.Details["email"]) == 0 || len(body.Details["password"]) == 0 {
		t.Errorf("details = %v", body.Details)
	}
	if len(b.calls) != 0 {
		t.Error("invalid user payload must not reach the backend")
	}
}

func TestRouter_utentiAssenzeDisponibili(t *testing.T) {
	b := newFakeBackend()
	b.on("GET", "/assenze/operatore/7/", model.Result{Status: http.StatusOK, Data: []any{}})

	rec := doJSON(t, newTestRouter(b), http.MethodGet, "/api/utenti/7/assenze/disponibili", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if b.find("GET", "/assenze/operatore/7/") == nil {
		t.Errorf("calls = %v", b.calls)
	}
}

func TestRouter_profileAndWhoami(t *testing.T) {
	b := newFakeBackend()
	b.on("GET", "/profile/", model.Result{Status: http.StatusOK, Data: map[string]any{"id": float64(1)}})
	b.on("GET", "/whoami/", model.Result{Status: http.StatusOK, Data: map[string]any{"email": "a@b.it"}})

	router := newTestRouter(b)
	if rec := doJSON(t, router, http.MethodGet, "/api/profile", ""); rec.Code != http.StatusOK {
		t.Errorf("profile status = %d", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodGet, "/api/whoami", ""); rec.Code != http.StatusOK {
		t.Errorf("whoami status = %d", rec.Code)
	}
}

func TestRouter_healthEndpoint(t *testing.T) {
	rec := doJSON(t, newTestRouter(newFakeBackend()), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRouter_readyEndpoint(t *testing.T) {
	rec := doJSON(t, newTestRouter(newFakeBackend()), http.MethodGet, "/ready", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_waitlists(t *testing.T) {
	b := newFakeBackend()
	b.on("GET", "/waitlists/", model.Result{Status: http.StatusOK, Data: []any{}})
	b.on("POST", "/waitlists/", model.Result{Status: http.StatusCreated, Data: map[string]any{"id": float64(1)}})

	router := newTestRouter(b)
	if rec := doJSON(t, router, http.MethodGet, "/api/waitlists/", ""); rec.Code != http.StatusOK {
		t.Errorf("list status = %d", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodPost, "/api/waitlists/", `{"mezzo_id":1}`); rec.Code != http.StatusCreated {
		t.Errorf("create status = %d", rec.Code)
	}
}
