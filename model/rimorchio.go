package model

import "strings"

// TipoRimorchioAltro is the fallback trailer type.
const TipoRimorchioAltro = "ALTRO"

var tipiRimorchio = []string{
	"RIBALTABILE",
	"COMPATTANTE",
	"CISTERNA",
	"PIANALE",
	"CASSONE",
	"SCARRABILE",
	TipoRimorchioAltro,
}

// RimorchioInput is the trailer payload accepted by the create route and by
// the composite creation workflow. ID is set when the caller wants to link an
// existing trailer instead of creating one.
type RimorchioInput struct {
	ID               *int64   `json:"id"`
	Nome             string   `json:"nome"`
	CapacitaDiCarico *float64 `json:"capacitaDiCarico"`
	TipoRimorchio    string   `json:"tipoRimorchio"`
}

// HasID reports whether an existing trailer id was supplied.
func (in RimorchioInput) HasID() bool {
	return in.ID != nil && *in.ID > 0
}

// HasNome reports whether a trailer name was supplied.
func (in RimorchioInput) HasNome() bool {
	return strings.TrimSpace(in.Nome) != ""
}

// Normalize produces the cleaned creation body forwarded to the backend.
// The type is corrected against the allow-list, capacity defaults to zero.
func (in RimorchioInput) Normalize() (map[string]any, FieldErrors) {
	errs := FieldErrors{}
	if !in.HasNome() {
		errs.Add("nome", "Nome rimorchio mancante")
		return nil, errs
	}
	return map[string]any{
		"nome":             strings.TrimSpace(in.Nome),
		"capacitaDiCarico": floatOrZero(in.CapacitaDiCarico),
		"tipoRimorchio":    normalizeEnum(in.TipoRimorchio, TipoRimorchioAltro, tipiRimorchio),
	}, nil
}
