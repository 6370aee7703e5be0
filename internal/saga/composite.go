package saga

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/gestri/gestri-bff/internal/observability"
	"github.com/gestri/gestri-bff/model"
)

// ErrRimorchioNonTrovato is returned when the caller asked to link an
// existing trailer that the backend does not know.
var ErrRimorchioNonTrovato = errors.New("rimorchio non trovato per id fornito")

// Backend is the slice of the gateway the composite workflow needs.
type Backend interface {
	Get(ctx context.Context, path string, query url.Values) model.Result
	Post(ctx context.Context, path string, body any) model.Result
	Delete(ctx context.Context, path string) model.Result
}

// CompositeRequest is the payload of the composite vehicle creation
// endpoint. Clients send either nested mezzo/rimorchio objects or the same
// fields flattened at the top level; nested objects win when both appear.
type CompositeRequest struct {
	Mezzo     *model.MezzoInput     `json:"mezzo"`
	Rimorchio *model.RimorchioInput `json:"rimorchio"`

	// Flat form.
	Targa                 string   `json:"targa"`
	Chilometraggio        *float64 `json:"chilometraggio"`
	ConsumoCarburante     *float64 `json:"consumoCarburante"`
	ScadenzaRevisione     string   `json:"scadenzaRevisione"`
	ScadenzaAssicurazione string   `json:"scadenzaAssicurazione"`
	StatoMezzo            string   `json:"statoMezzo"`
	IsDanneggiato         bool     `json:"isDanneggiato"`
	RimorchioID           *int64   `json:"rimorchioId"`
	NomeRimorchio         string   `json:"nomeRimorchio"`
	CapacitaDiCarico      *float64 `json:"capacitaDiCarico"`
	TipoRimorchio         string   `json:"tipoRimorchio"`
}

// Inputs resolves the two accepted payload shapes into one vehicle and one
// trailer input.
func (r CompositeRequest) Inputs() (model.MezzoInput, model.RimorchioInput) {
	mezzo := model.MezzoInput{
		Targa:                 r.Targa,
		Chilometraggio:        r.Chilometraggio,
		ConsumoCarburante:     r.ConsumoCarburante,
		ScadenzaRevisione:     r.ScadenzaRevisione,
		ScadenzaAssicurazione: r.ScadenzaAssicurazione,
		StatoMezzo:            r.StatoMezzo,
		IsDanneggiato:         r.IsDanneggiato,
	}
	if r.Mezzo != nil {
		mezzo = *r.Mezzo
	}

	rimorchio := model.RimorchioInput{
		ID:               r.RimorchioID,
		Nome:             r.NomeRimorchio,
		CapacitaDiCarico: r.CapacitaDiCarico,
		TipoRimorchio:    r.TipoRimorchio,
	}
	if r.Rimorchio != nil {
		rimorchio = *r.Rimorchio
	}

	return mezzo, rimorchio
}

// CompositeMezzo creates a vehicle, resolves or creates a trailer, and links
// the two in one request, rolling back whatever this run created when a later
// step fails. Either side may be omitted: a plate-only payload runs just the
// vehicle step, a trailer-only payload just the trailer step, and the link
// happens only when both sides are present. Entities that already existed are
// never deleted.
type CompositeMezzo struct {
	backend Backend
	runner  *Runner
	logger  *zap.Logger
}

// NewCompositeMezzo wires the composite creation workflow.
func NewCompositeMezzo(backend Backend, logger *zap.Logger, metrics *observability.Metrics) *CompositeMezzo {
	return &CompositeMezzo{
		backend: backend,
		runner:  NewRunner("mezzo-composito", logger, metrics),
		logger:  logger,
	}
}

// Create runs the workflow and returns the HTTP result to send to the client.
func (c *CompositeMezzo) Create(ctx context.Context, req CompositeRequest) model.Result {
	mezzoIn, rimorchioIn := req.Inputs()

	wantMezzo := mezzoIn.HasTarga()
	wantRimorchio := rimorchioIn.HasID() || rimorchioIn.HasNome()

	errs := model.FieldErrors{}
	var mezzoBody map[string]any
	if wantMezzo {
		var mezzoErrs model.FieldErrors
		mezzoBody, mezzoErrs = mezzoIn.Normalize()
		for field, msgs := range mezzoErrs {
			errs[field] = msgs
		}
	}
	if !wantMezzo && !wantRimorchio {
		errs.Add("targa", "La targa è obbligatoria quando non viene indicato un rimorchio")
		errs.Add("rimorchio", "Specificare l'id di un rimorchio esistente oppure i dati per crearne uno")
	}
	if !errs.Empty() {
		return model.Result{
			Status: http.StatusBadRequest,
			Data:   model.NewValidationFailed(errs),
		}
	}

	var (
		mezzoData      map[string]any
		rimorchioData  map[string]any
		associazione   map[string]any
		mezzoID        int64
		rimorchioID    int64
		createdMezzo   bool
		createdTrailer bool
	)

	var steps []Step

	if wantMezzo {
		steps = append(steps, Step{
			Name: "trova-o-crea-mezzo",
			Run: func(ctx context.Context) (*Compensator, error) {
				targa, _ := mezzoBody["targa"].(string)
				lookup := c.backend.Get(ctx, "/mezzi/by-targa/"+url.PathEscape(targa)+"/", nil)
				if lookup.OK() {
					if id, ok := lookup.ID(); ok {
						mezzoID = id
						mezzoData = lookup.DataMap()
						c.logger.Info("reusing existing vehicle",
							zap.Int64("mezzo_id", id),
							zap.String("targa", targa),
						)
						return nil, nil
					}
				}

				created := c.backend.Post(ctx, "/mezzi/", mezzoBody)
				if !created.OK() {
					return nil, model.NewUpstreamError(created)
				}
				id, ok := created.ID()
				if !ok {
					return nil, fmt.Errorf("vehicle creation response has no id")
				}
				mezzoID = id
				mezzoData = created.DataMap()
				createdMezzo = true
				return &Compensator{
					Name: "elimina-mezzo",
					Run: func(ctx context.Context) error {
						res := c.backend.Delete(ctx, fmt.Sprintf("/mezzi/%d/", id))
						if !res.OK() {
							return fmt.Errorf("delete vehicle %d: status %d", id, res.Status)
						}
						return nil
					},
				}, nil
			},
		})
	}

	if wantRimorchio {
		steps = append(steps, Step{
			Name: "trova-o-crea-rimorchio",
			Run: func(ctx context.Context) (*Compensator, error) {
				if rimorchioIn.HasID() {
					id := *rimorchioIn.ID
					lookup := c.backend.Get(ctx, fmt.Sprintf("/rimorchi/%d/", id), nil)
					if lookup.Status == http.StatusNotFound {
						return nil, ErrRimorchioNonTrovato
					}
					if !lookup.OK() {
						return nil, model.NewUpstreamError(lookup)
					}
					rimorchioID = id
					rimorchioData = lookup.DataMap()
					return nil, nil
				}

				body, _ := rimorchioIn.Normalize()
				created := c.backend.Post(ctx, "/rimorchi/", body)
				if !created.OK() {
					return nil, model.NewUpstreamError(created)
				}
				id, ok := created.ID()
				if !ok {
					return nil, fmt.Errorf("trailer creation response has no id")
				}
				rimorchioID = id
				rimorchioData = created.DataMap()
				createdTrailer = true
				return &Compensator{
					Name: "elimina-rimorchio",
					Run: func(ctx context.Context) error {
						res := c.backend.Delete(ctx, fmt.Sprintf("/rimorchi/%d/", id))
						if !res.OK() {
							return fmt.Errorf("delete trailer %d: status %d", id, res.Status)
						}
						return nil
					},
				}, nil
			},
		})
	}

	if wantMezzo && wantRimorchio {
		steps = append(steps, Step{
			Name: "associa-mezzo-rimorchio",
			Run: func(ctx context.Context) (*Compensator, error) {
				link := c.backend.Post(ctx, "/mezzi-rimorchi/", map[string]any{
					"mezzo_id":     mezzoID,
					"rimorchio_id": rimorchioID,
					"attivo":       true,
				})
				if !link.OK() {
					return nil, model.NewUpstreamError(link)
				}
				associazione = link.DataMap()
				return nil, nil
			},
		})
	}

	if err := c.runner.Execute(ctx, steps); err != nil {
		return compositeErrorResult(err)
	}

	status := http.StatusOK
	if createdMezzo || createdTrailer {
		status = http.StatusCreated
	}
	return model.Result{
		Status: status,
		Data: map[string]any{
			"mezzo":        mezzoData,
			"rimorchio":    rimorchioData,
			"associazione": associazione,
		},
	}
}

// compositeErrorResult maps workflow errors onto client responses: the
// missing-trailer sentinel becomes a 404, backend failures pass through with
// their own status and body, anything else is a local 500.
func compositeErrorResult(err error) model.Result {
	if errors.Is(err, ErrRimorchioNonTrovato) {
		return model.Result{
			Status: http.StatusNotFound,
			Data:   model.ErrorBody{Error: "Rimorchio non trovato per id fornito"},
		}
	}

	var upstream *model.UpstreamError
	if errors.As(err, &upstream) {
		res := upstream.Result
		if m, ok := res.Data.(map[string]any); !ok || len(m) == 0 {
			if _, isSlice := res.Data.([]any); !isSlice {
				res.Data = model.ErrorBody{Error: "Server error"}
			}
		}
		return res
	}

	return model.Result{
		Status: http.StatusInternalServerError,
		Data:   model.InternalErrorBody{Error: "Internal server error", Details: err.Error()},
	}
}
