package model

import (
	"regexp"
	"strings"
)

// Vehicle states accepted by the backend. Anything else falls back to
// DISPONIBILE: the proxy silently corrects enum values instead of rejecting
// them, matching the backend's own default.
const (
	StatoDisponibile  = "DISPONIBILE"
	StatoOccupato     = "OCCUPATO"
	StatoManutenzione = "MANUTENZIONE"
)

var statiMezzo = []string{StatoDisponibile, StatoOccupato, StatoManutenzione}

var isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// IsISODate reports whether s is a YYYY-MM-DD date string.
func IsISODate(s string) bool {
	return isoDateRe.MatchString(s)
}

// NormalizeStatoMezzo corrects a vehicle state against the allow-list,
// falling back to DISPONIBILE.
func NormalizeStatoMezzo(stato string) string {
	return normalizeEnum(stato, StatoDisponibile, statiMezzo)
}

// MezzoInput is the vehicle payload accepted by the create/update routes and
// by the composite creation workflow.
type MezzoInput struct {
	Targa                 string   `json:"targa"`
	Chilometraggio        *float64 `json:"chilometraggio"`
	ConsumoCarburante     *float64 `json:"consumoCarburante"`
	ScadenzaRevisione     string   `json:"scadenzaRevisione"`
	ScadenzaAssicurazione string   `json:"scadenzaAssicurazione"`
	StatoMezzo            string   `json:"statoMezzo"`
	IsDanneggiato         bool     `json:"isDanneggiato"`
}

// HasTarga reports whether a plate was supplied.
func (in MezzoInput) HasTarga() bool {
	return strings.TrimSpace(in.Targa) != ""
}

// Normalize validates the payload and produces the cleaned body forwarded to
// the backend. The plate is required and upper-cased; the state is corrected
// against the allow-list; numbers default to zero; dates must be ISO or are
// sent as null.
func (in MezzoInput) Normalize() (map[string]any, FieldErrors) {
	errs := FieldErrors{}
	cleaned := make(map[string]any)

	targa := strings.TrimSpace(in.Targa)
	if targa == "" {
		errs.Add("targa", "La targa è obbligatoria")
	} else {
		cleaned["targa"] = strings.ToUpper(targa)
	}

	cleaned["statoMezzo"] = normalizeEnum(in.StatoMezzo, StatoDisponibile, statiMezzo)

	cleaned["chilometraggio"] = int64(floatOrZero(in.Chilometraggio))
	cleaned["consumoCarburante"] = floatOrZero(in.ConsumoCarburante)

	cleaned["scadenzaRevisione"] = isoDateOrNil(in.ScadenzaRevisione)
	cleaned["scadenzaAssicurazione"] = isoDateOrNil(in.ScadenzaAssicurazione)

	cleaned["isDanneggiato"] = in.IsDanneggiato

	if !errs.Empty() {
		return nil, errs
	}
	return cleaned, nil
}

// normalizeEnum upper-cases value and checks it against the allow-list,
// returning fallback for anything unknown or empty.
func normalizeEnum(value, fallback string, allowed []string) string {
	v := strings.ToUpper(strings.TrimSpace(value))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return fallback
}

func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func isoDateOrNil(s string) any {
	if IsISODate(s) {
		return s
	}
	return nil
}
