package transport

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gestri/gestri-bff/internal/config"
	"github.com/gestri/gestri-bff/internal/observability"
	"github.com/gestri/gestri-bff/internal/saga"
	"github.com/gestri/gestri-bff/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config    *config.Config
	Backend   Backend
	Composite *saga.CompositeMezzo
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Readiness observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints sit outside
// the API middleware chain.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := NewHandlers(deps.Backend, deps.Composite, logger, deps.Metrics)

	r := chi.NewRouter()

	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, observability.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(observability.TracingMiddleware)
		api.Use(BuildRequestContext(logger))
		api.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		api.Use(RequestLogging(logger))
		if deps.Metrics != nil {
			api.Use(deps.Metrics.MetricsMiddleware)
		}

		api.Route("/attivita", func(r chi.Router) {
			newResourceProxy(deps.Backend, "/attivita", deps.Metrics).mount(r)
			r.Get("/by-date/{date}", h.AttivitaByDate)
			r.Post("/{id}/associa-mezzo", h.AttivitaAssociaMezzo)
			r.Post("/{id}/associa-operatore", h.AttivitaAssociaOperatore)
			r.Delete("/{id}/dissocia-operatore", h.AttivitaDissociaOperatore)
			r.Get("/{id}/mezzi-rimorchi/disponibili", h.AttivitaMezziRimorchiDisponibili)
			r.Get("/{id}/operatori/disponibili", h.AttivitaOperatoriDisponibili)
		})

		api.Route("/mezzi", func(r chi.Router) {
			proxy := newResourceProxy(deps.Backend, "/mezzi", deps.Metrics)
			r.Get("/", h.MezziList)
			r.Post("/", h.MezziCreate)
			r.Get("/cerca/{term}", proxy.search)
			r.Get("/filter-by/{term}", proxy.search)
			r.Post("/filter-by/{term}", proxy.filterPost)
			r.Get("/by-stato/{stato}", h.MezziByStato)
			r.Get("/{id}", proxy.get)
			r.Put("/{id}", proxy.update)
			r.Delete("/{id}", proxy.remove)
		})

		api.Post("/mezzo/crea", h.MezzoCrea)

		api.Route("/rimorchi", func(r chi.Router) {
			proxy := newResourceProxy(deps.Backend, "/rimorchi", deps.Metrics)
			r.Get("/", proxy.list)
			r.Post("/", h.RimorchiCreate)
			r.Get("/{id}", proxy.get)
			r.Put("/{id}", proxy.update)
			r.Delete("/{id}", proxy.remove)
			r.Post("/{id}/upload-image", h.RimorchiUploadImage)
		})

		api.Route("/mezzi-rimorchi", func(r chi.Router) {
			newResourceProxy(deps.Backend, "/mezzi-rimorchi", deps.Metrics).mount(r)
		})

		api.Route("/documenti", func(r chi.Router) {
			proxy := newResourceProxy(deps.Backend, "/documenti", deps.Metrics).
				withNormalize(normalizeDocumento)
			proxy.mount(r)
			r.Post("/upload", h.DocumentiUpload)
			r.Put("/upload", h.DocumentiUpload)
			r.Patch("/upload", h.DocumentiUpload)
		})

		api.Route("/utenti", func(r chi.Router) {
			newResourceProxy(deps.Backend, "/utenti", deps.Metrics).mount(r)
			r.Post("/crea", h.UtentiCrea)
			r.Get("/{id}/assenze/disponibili", h.UtentiAssenzeDisponibili)
		})

		api.Route("/assenze", func(r chi.Router) {
			proxy := newResourceProxy(deps.Backend, "/assenze", deps.Metrics).
				withNormalize(normalizeAssenza)
			r.Get("/", proxy.list)
			r.Post("/", proxy.create)
			r.Get("/{id}", proxy.get)
			r.Put("/{id}", proxy.update)
			r.Delete("/{id}", proxy.remove)
		})

		api.Route("/waitlists", func(r chi.Router) {
			proxy := newResourceProxy(deps.Backend, "/waitlists", deps.Metrics)
			r.Get("/", proxy.list)
			r.Post("/", proxy.create)
		})

		api.Get("/profile", h.ProfileGet)
		api.Put("/profile", h.ProfilePut)
		api.Delete("/profile", h.ProfileDelete)
		api.Get("/whoami", h.Whoami)
	})

	return r
}

// normalizeDocumento corrects the document type in JSON payloads; unknown
// values fall back to ALTRO.
func normalizeDocumento(body map[string]any) (map[string]any, model.FieldErrors) {
	if tipo, ok := body["tipoDocumento"].(string); ok {
		body["tipoDocumento"] = model.NormalizeTipoDocumento(tipo)
	}
	return body, nil
}

// normalizeAssenza corrects the absence type; unknown values fall back to
// PERMESSO.
func normalizeAssenza(body map[string]any) (map[string]any, model.FieldErrors) {
	return model.NormalizeAssenza(body), nil
}
