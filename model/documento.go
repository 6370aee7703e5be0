package model

// TipoDocumentoAltro is the fallback document type.
const TipoDocumentoAltro = "ALTRO"

var tipiDocumento = []string{
	"FIR",
	"CORSO_SICUREZZA",
	"CORSO_AGGIORNAMENTO",
	TipoDocumentoAltro,
}

// NormalizeTipoDocumento corrects a document type against the allow-list.
func NormalizeTipoDocumento(tipo string) string {
	return normalizeEnum(tipo, TipoDocumentoAltro, tipiDocumento)
}
