package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gestri/gestri-bff/internal/observability"
	"github.com/gestri/gestri-bff/model"
)

// Backend is the slice of the gateway the transport layer needs. Declared
// here so handler tests can swap in a scripted fake.
type Backend interface {
	Get(ctx context.Context, path string, query url.Values) model.Result
	Post(ctx context.Context, path string, body any) model.Result
	Put(ctx context.Context, path string, body any) model.Result
	Patch(ctx context.Context, path string, body any) model.Result
	Delete(ctx context.Context, path string) model.Result
	ForwardRaw(ctx context.Context, method, path, contentType string, body io.Reader) model.Result
}

var numericID = regexp.MustCompile(`^\d+$`)

// normalizeFunc rewrites a decoded create/update body into the payload sent
// to the backend. A non-empty FieldErrors rejects the request with a 400
// before any backend call.
type normalizeFunc func(map[string]any) (map[string]any, model.FieldErrors)

// resourceProxy serves the standard CRUD, search, and filter routes for one
// backend collection. Per-resource differences live in the normalize hook and
// in dedicated handlers; everything here is shared glue.
type resourceProxy struct {
	backend   Backend
	base      string // backend collection path, e.g. "/attivita"
	name      string // metrics label
	normalize normalizeFunc
	metrics   *observability.Metrics
}

func newResourceProxy(backend Backend, base string, metrics *observability.Metrics) *resourceProxy {
	return &resourceProxy{
		backend: backend,
		base:    base,
		name:    strings.Trim(base, "/"),
		metrics: metrics,
	}
}

func (p *resourceProxy) withNormalize(fn normalizeFunc) *resourceProxy {
	p.normalize = fn
	return p
}

// mount registers the standard route set on the router. Resources whose
// surface deviates from the pattern register extra routes after mounting.
func (p *resourceProxy) mount(r chi.Router) {
	r.Get("/", p.list)
	r.Post("/", p.create)
	r.Get("/cerca/{term}", p.search)
	r.Get("/filter-by/{term}", p.search)
	r.Post("/filter-by/{term}", p.filterPost)
	r.Get("/{id}", p.get)
	r.Put("/{id}", p.update)
	r.Delete("/{id}", p.remove)
}

func (p *resourceProxy) list(w http.ResponseWriter, r *http.Request) {
	WriteResult(w, p.backend.Get(r.Context(), p.base+"/", nil))
}

func (p *resourceProxy) create(w http.ResponseWriter, r *http.Request) {
	body, err := decodeJSONBody(r)
	if err != nil {
		WriteBadRequest(w, "Corpo della richiesta non valido")
		return
	}
	if p.normalize != nil {
		normalized, errs := p.normalize(body)
		if !errs.Empty() {
			p.recordValidationFailure()
			WriteValidationFailed(w, errs)
			return
		}
		body = normalized
	}
	p.debugPayload(r, body)
	WriteResult(w, p.backend.Post(r.Context(), p.base+"/", body))
}

func (p *resourceProxy) get(w http.ResponseWriter, r *http.Request) {
	id, ok := p.idParam(w, r)
	if !ok {
		return
	}
	WriteResult(w, p.backend.Get(r.Context(), p.base+"/"+id+"/", nil))
}

func (p *resourceProxy) update(w http.ResponseWriter, r *http.Request) {
	id, ok := p.idParam(w, r)
	if !ok {
		return
	}
	body, err := decodeJSONBody(r)
	if err != nil {
		WriteBadRequest(w, "Corpo della richiesta non valido")
		return
	}
	if p.normalize != nil {
		normalized, errs := p.normalize(body)
		if !errs.Empty() {
			p.recordValidationFailure()
			WriteValidationFailed(w, errs)
			return
		}
		body = normalized
	}
	p.debugPayload(r, body)
	WriteResult(w, p.backend.Put(r.Context(), p.base+"/"+id+"/", body))
}

func (p *resourceProxy) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := p.idParam(w, r)
	if !ok {
		return
	}
	WriteResult(w, p.backend.Delete(r.Context(), p.base+"/"+id+"/"))
}

// search serves both /cerca/{term} and /filter-by/{term} GETs. A blank or
// whitespace term falls back to the unfiltered list.
func (p *resourceProxy) search(w http.ResponseWriter, r *http.Request) {
	term := searchTerm(r)
	if term == "" {
		p.list(w, r)
		return
	}
	WriteResult(w, p.backend.Get(r.Context(), p.base+"/cerca/"+url.PathEscape(term)+"/", nil))
}

func (p *resourceProxy) filterPost(w http.ResponseWriter, r *http.Request) {
	term := searchTerm(r)
	body, err := decodeJSONBody(r)
	if err != nil {
		WriteBadRequest(w, "Corpo della richiesta non valido")
		return
	}
	WriteResult(w, p.backend.Post(r.Context(), p.base+"/filter-by/"+url.PathEscape(term)+"/", body))
}

// idParam validates the {id} path parameter. Non-numeric ids are rejected
// locally so malformed paths never reach the backend.
func (p *resourceProxy) idParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !numericID.MatchString(id) {
		p.recordValidationFailure()
		WriteBadRequest(w, "Id non valido")
		return "", false
	}
	return id, true
}

func (p *resourceProxy) recordValidationFailure() {
	if p.metrics != nil {
		p.metrics.RecordValidationFailure(p.name)
	}
}

// debugPayload logs the body forwarded to the backend with credential fields
// masked. Gated on debug level so the copy is only made when it will be seen.
func (p *resourceProxy) debugPayload(r *http.Request, body map[string]any) {
	logger := observability.LoggerFrom(r.Context(), nil)
	if logger == nil {
		return
	}
	if ce := logger.Check(zap.DebugLevel, "forwarding payload"); ce != nil {
		ce.Write(
			zap.String("resource", p.name),
			zap.Any("body", observability.RedactBody(body, nil)),
		)
	}
}

// searchTerm returns the decoded, trimmed {term} path parameter.
func searchTerm(r *http.Request) string {
	term := chi.URLParam(r, "term")
	if decoded, err := url.PathUnescape(term); err == nil {
		term = decoded
	}
	return strings.TrimSpace(term)
}

// decodeJSONBody reads the request body as a JSON object. An empty body is
// accepted as an empty object, matching how the backend treats it.
func decodeJSONBody(r *http.Request) (map[string]any, error) {
	defer r.Body.Close()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return map[string]any{}, nil
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	return body, nil
}
