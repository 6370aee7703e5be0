package model

// TipoAssenzaPermesso is the fallback absence type.
const TipoAssenzaPermesso = "PERMESSO"

var tipiAssenza = []string{
	"MALATTIA",
	"FERIE",
	TipoAssenzaPermesso,
	"ASPETTATIVA",
	"MATERNITA",
}

// NormalizeTipoAssenza corrects an absence type against the allow-list.
func NormalizeTipoAssenza(tipo string) string {
	return normalizeEnum(tipo, TipoAssenzaPermesso, tipiAssenza)
}

// NormalizeAssenza re-validates the enum field of an absence payload before
// forwarding; every other field passes through untouched, the backend owns
// the rest of the validation.
func NormalizeAssenza(body map[string]any) map[string]any {
	if body == nil {
		return nil
	}
	if tipo, ok := body["tipoAssenza"].(string); ok {
		body["tipoAssenza"] = NormalizeTipoAssenza(tipo)
	}
	return body
}
