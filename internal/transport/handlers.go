package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gestri/gestri-bff/internal/observability"
	"github.com/gestri/gestri-bff/internal/saga"
	"github.com/gestri/gestri-bff/model"
)

var isoDateParam = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// maxUploadBytes bounds buffered multipart bodies. Uploads above this are
// rejected before touching the backend.
const maxUploadBytes = 32 << 20

// Handlers holds the route handlers that deviate from the generic resource
// proxy pattern: lookups with fallback shapes, multipart pass-throughs, the
// composite creation workflow, and nested association endpoints.
type Handlers struct {
	backend   Backend
	composite *saga.CompositeMezzo
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewHandlers wires the special-case handlers.
func NewHandlers(backend Backend, composite *saga.CompositeMezzo, logger *zap.Logger, metrics *observability.Metrics) *Handlers {
	return &Handlers{
		backend:   backend,
		composite: composite,
		logger:    logger,
		metrics:   metrics,
	}
}

// --- mezzi ---

// MezziList serves GET /api/mezzi. A ?targa= query turns the listing into a
// plate lookup whose result is always list-shaped: a hit is wrapped in a
// one-element array and a 404 becomes an empty 200 list, so the client table
// renders either way. Without a plate the vehicles are listed by state,
// defaulting to DISPONIBILE.
func (h *Handlers) MezziList(w http.ResponseWriter, r *http.Request) {
	if targa := strings.TrimSpace(r.URL.Query().Get("targa")); targa != "" {
		path := "/mezzi/by-targa/" + url.PathEscape(strings.ToUpper(targa)) + "/"
		res := h.backend.Get(r.Context(), path, nil)
		switch {
		case res.Status == http.StatusNotFound:
			WriteList(w, http.StatusOK, nil)
		case res.OK():
			if list, ok := res.Data.([]any); ok {
				WriteList(w, res.Status, list)
				return
			}
			WriteList(w, res.Status, []any{res.Data})
		default:
			WriteResult(w, res)
		}
		return
	}

	stato := model.NormalizeStatoMezzo(r.URL.Query().Get("stato"))
	WriteResult(w, h.backend.Get(r.Context(), "/mezzi/by-stato/"+stato+"/", nil))
}

// MezziCreate validates and normalizes the vehicle payload before forwarding.
func (h *Handlers) MezziCreate(w http.ResponseWriter, r *http.Request) {
	var in model.MezzoInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		WriteBadRequest(w, "Corpo della richiesta non valido")
		return
	}
	body, errs := in.Normalize()
	if !errs.Empty() {
		h.recordValidationFailure("mezzi")
		WriteValidationFailed(w, errs)
		return
	}
	WriteResult(w, h.backend.Post(r.Context(), "/mezzi/", body))
}

// MezziByStato serves GET /api/mezzi/by-stato/{stato}; unknown states list
// the available vehicles instead of erroring.
func (h *Handlers) MezziByStato(w http.ResponseWriter, r *http.Request) {
	stato := model.NormalizeStatoMezzo(chi.URLParam(r, "stato"))
	WriteResult(w, h.backend.Get(r.Context(), "/mezzi/by-stato/"+stato+"/", nil))
}

// MezzoCrea runs the composite vehicle+trailer+link creation workflow.
func (h *Handlers) MezzoCrea(w http.ResponseWriter, r *http.Request) {
	var req saga.CompositeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Corpo della richiesta non valido")
		return
	}
	WriteResult(w, h.composite.Create(r.Context(), req))
}

// --- rimorchi ---

// RimorchiCreate validates and normalizes the trailer payload.
func (h *Handlers) RimorchiCreate(w http.ResponseWriter, r *http.Request) {
	var in model.RimorchioInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		WriteBadRequest(w, "Corpo della richiesta non valido")
		return
	}
	body, errs := in.Normalize()
	if !errs.Empty() {
		h.recordValidationFailure("rimorchi")
		WriteValidationFailed(w, errs)
		return
	}
	WriteResult(w, h.backend.Post(r.Context(), "/rimorchi/", body))
}

// RimorchiUploadImage streams a multipart image upload to the backend
// unmodified.
func (h *Handlers) RimorchiUploadImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !numericID.MatchString(id) {
		WriteBadRequest(w, "Id non valido")
		return
	}
	contentType := r.Header.Get("Content-Type")
	res := h.backend.ForwardRaw(r.Context(), http.MethodPost,
		"/rimorchi/"+id+"/upload-image/", contentType, r.Body)
	WriteResult(w, res)
}

// --- documenti ---

// DocumentiUpload serves POST, PUT, and PATCH on /api/documenti/upload. The
// multipart body is buffered once so its form fields can be validated, then
// forwarded byte-for-byte: creation requires tipoDocumento, updates require a
// numeric documento_id that selects the backend resource.
func (h *Handlers) DocumentiUpload(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		WriteInternalError(w, err)
		return
	}
	if len(raw) > maxUploadBytes {
		WriteJSON(w, http.StatusRequestEntityTooLarge, model.ErrorBody{Error: "File troppo grande"})
		return
	}

	fields, err := multipartFields(contentType, raw)
	if err != nil {
		WriteBadRequest(w, "Payload multipart non valido")
		return
	}

	path := "/documenti/"
	if r.Method == http.MethodPost {
		if strings.TrimSpace(fields["tipoDocumento"]) == "" {
			h.recordValidationFailure("documenti")
			errs := model.FieldErrors{}
			errs.Add("tipoDocumento", "Il tipo di documento è obbligatorio")
			WriteValidationFailed(w, errs)
			return
		}
	} else {
		id := strings.TrimSpace(fields["documento_id"])
		if !numericID.MatchString(id) {
			h.recordValidationFailure("documenti")
			errs := model.FieldErrors{}
			errs.Add("documento_id", "L'id del documento è obbligatorio")
			WriteValidationFailed(w, errs)
			return
		}
		path = "/documenti/" + id + "/"
	}

	res := h.backend.ForwardRaw(r.Context(), r.Method, path, contentType, bytes.NewReader(raw))
	WriteResult(w, res)
}

// --- utenti ---

// UtentiCrea serves the validated user creation route.
func (h *Handlers) UtentiCrea(w http.ResponseWriter, r *http.Request) {
	var in model.UtenteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		WriteBadRequest(w, "Corpo della richiesta non valido")
		return
	}
	body, errs := in.Normalize()
	if !errs.Empty() {
		h.recordValidationFailure("utenti")
		WriteValidationFailed(w, errs)
		return
	}
	WriteResult(w, h.backend.Post(r.Context(), "/utenti/", body))
}

// UtentiAssenzeDisponibili maps the nested association route onto the
// backend's operator-scoped absence listing.
func (h *Handlers) UtentiAssenzeDisponibili(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !numericID.MatchString(id) {
		WriteBadRequest(w, "Id non valido")
		return
	}
	WriteResult(w, h.backend.Get(r.Context(), "/assenze/operatore/"+id+"/", nil))
}

// --- attivita ---

// AttivitaByDate lists the activities of one day. The date must be
// YYYY-MM-DD; a day without activities is an empty list, not an error.
func (h *Handlers) AttivitaByDate(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if !isoDateParam.MatchString(date) {
		WriteBadRequest(w, "Data non valida, formato richiesto YYYY-MM-DD")
		return
	}
	res := h.backend.Get(r.Context(), "/attivita/by-date/"+date+"/", nil)
	if res.Status == http.StatusNotFound {
		WriteList(w, http.StatusOK, nil)
		return
	}
	WriteResult(w, res)
}

// AttivitaAssociaMezzo links a vehicle-trailer pair to an activity.
func (h *Handlers) AttivitaAssociaMezzo(w http.ResponseWriter, r *http.Request) {
	h.attivitaAssocia(w, r, "associa-mezzo", "mezzo_rimorchio_id")
}

// AttivitaAssociaOperatore links an operator to an activity.
func (h *Handlers) AttivitaAssociaOperatore(w http.ResponseWriter, r *http.Request) {
	h.attivitaAssocia(w, r, "associa-operatore", "operatore_id")
}

func (h *Handlers) attivitaAssocia(w http.ResponseWriter, r *http.Request, action, requiredField string) {
	id := chi.URLParam(r, "id")
	if !numericID.MatchString(id) {
		WriteBadRequest(w, "Id non valido")
		return
	}
	body, err := decodeJSONBody(r)
	if err != nil {
		WriteBadRequest(w, "Corpo della richiesta non valido")
		return
	}
	if body[requiredField] == nil {
		h.recordValidationFailure("attivita")
		errs := model.FieldErrors{}
		errs.Add(requiredField, fmt.Sprintf("Il campo %s è obbligatorio", requiredField))
		WriteValidationFailed(w, errs)
		return
	}
	WriteResult(w, h.backend.Post(r.Context(), "/attivita/"+id+"/"+action+"/", body))
}

// AttivitaDissociaOperatore removes an operator from an activity. The client
// sends the operator in the request body; the backend wants it in the path.
func (h *Handlers) AttivitaDissociaOperatore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !numericID.MatchString(id) {
		WriteBadRequest(w, "Id non valido")
		return
	}
	body, err := decodeJSONBody(r)
	if err != nil {
		WriteBadRequest(w, "Corpo della richiesta non valido")
		return
	}
	operatore := jsonNumericID(body["operatore_id"])
	if operatore == "" {
		h.recordValidationFailure("attivita")
		errs := model.FieldErrors{}
		errs.Add("operatore_id", "Il campo operatore_id è obbligatorio")
		WriteValidationFailed(w, errs)
		return
	}
	WriteResult(w, h.backend.Delete(r.Context(),
		"/attivita/"+id+"/dissocia-operatore/"+operatore+"/"))
}

// AttivitaMezziRimorchiDisponibili lists the vehicle-trailer pairs free for
// an activity's time window.
func (h *Handlers) AttivitaMezziRimorchiDisponibili(w http.ResponseWriter, r *http.Request) {
	h.attivitaDisponibili(w, r, "/mezzi-rimorchi/disponibili/")
}

// AttivitaOperatoriDisponibili lists the operators free for an activity's
// time window.
func (h *Handlers) AttivitaOperatoriDisponibili(w http.ResponseWriter, r *http.Request) {
	h.attivitaDisponibili(w, r, "/operatori/disponibili/")
}

func (h *Handlers) attivitaDisponibili(w http.ResponseWriter, r *http.Request, path string) {
	id := chi.URLParam(r, "id")
	if !numericID.MatchString(id) {
		WriteBadRequest(w, "Id non valido")
		return
	}
	query := url.Values{"attivita_id": []string{id}}
	WriteResult(w, h.backend.Get(r.Context(), path, query))
}

// --- profile / whoami ---

// ProfileGet returns the authenticated user's own profile.
func (h *Handlers) ProfileGet(w http.ResponseWriter, r *http.Request) {
	WriteResult(w, h.backend.Get(r.Context(), "/profile/", nil))
}

// ProfilePut updates the authenticated user's own profile.
func (h *Handlers) ProfilePut(w http.ResponseWriter, r *http.Request) {
	body, err := decodeJSONBody(r)
	if err != nil {
		WriteBadRequest(w, "Corpo della richiesta non valido")
		return
	}
	WriteResult(w, h.backend.Put(r.Context(), "/profile/", body))
}

// ProfileDelete deletes the authenticated user's own account.
func (h *Handlers) ProfileDelete(w http.ResponseWriter, r *http.Request) {
	WriteResult(w, h.backend.Delete(r.Context(), "/profile/"))
}

// Whoami returns the identity the backend associates with the bearer token.
func (h *Handlers) Whoami(w http.ResponseWriter, r *http.Request) {
	WriteResult(w, h.backend.Get(r.Context(), "/whoami/", nil))
}

// --- helpers ---

func (h *Handlers) recordValidationFailure(resource string) {
	if h.metrics != nil {
		h.metrics.RecordValidationFailure(resource)
	}
}

// jsonNumericID renders a decoded JSON id value as a numeric path segment,
// or "" when it is absent or not a whole number.
func jsonNumericID(v any) string {
	switch id := v.(type) {
	case float64:
		if id == float64(int64(id)) {
			return fmt.Sprintf("%d", int64(id))
		}
	case string:
		if numericID.MatchString(id) {
			return id
		}
	}
	return ""
}

// multipartFields parses the non-file form fields out of a buffered
// multipart body. File parts are skipped, not read into memory twice.
func multipartFields(contentType string, body []byte) (map[string]string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return nil, fmt.Errorf("unexpected content type %q", mediaType)
	}

	mr := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	fields := make(map[string]string)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if part.FileName() != "" {
			io.Copy(io.Discard, part)
			part.Close()
			continue
		}
		value, err := io.ReadAll(io.LimitReader(part, 1<<16))
		part.Close()
		if err != nil {
			return nil, err
		}
		fields[part.FormName()] = string(value)
	}
	return fields, nil
}
