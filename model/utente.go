package model

import (
	"regexp"
	"strings"
)

// RuoloCliente is the fallback user role.
const RuoloCliente = "CLIENTE"

var ruoli = []string{RuoloCliente, "OPERATORE", "STAFF"}

var italianDateRe = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`)

// UtenteInput is the user payload accepted by the creation routes.
type UtenteInput struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	Ruolo          string `json:"ruolo"`
	Nome           string `json:"nome"`
	Cognome        string `json:"cognome"`
	LuogoDiNascita string `json:"luogoDiNascita"`
	Residenza      string `json:"residenza"`
	DataDiNascita  string `json:"dataDiNascita"`
}

// Normalize validates the payload and produces the cleaned body forwarded to
// the backend. Email and password are required; the role is corrected against
// the allow-list; the birth date accepts YYYY-MM-DD or dd/MM/YYYY.
func (in UtenteInput) Normalize() (map[string]any, FieldErrors) {
	errs := FieldErrors{}
	cleaned := make(map[string]any)

	email := strings.TrimSpace(in.Email)
	if email == "" {
		errs.Add("email", "Email obbligatoria")
	} else {
		cleaned["email"] = email
	}

	password := strings.TrimSpace(in.Password)
	if password == "" {
		errs.Add("password", "Password obbligatoria")
	} else {
		cleaned["password"] = password
	}

	cleaned["ruolo"] = normalizeEnum(in.Ruolo, RuoloCliente, ruoli)

	cleaned["nome"] = trimOrNil(in.Nome)
	cleaned["cognome"] = trimOrNil(in.Cognome)
	cleaned["luogoDiNascita"] = trimOrNil(in.LuogoDiNascita)
	cleaned["residenza"] = trimOrNil(in.Residenza)
	cleaned["dataDiNascita"] = birthDateOrNil(in.DataDiNascita)

	if !errs.Empty() {
		return nil, errs
	}
	return cleaned, nil
}

func trimOrNil(s string) any {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil
	}
	return t
}

// birthDateOrNil converts dd/MM/YYYY to ISO and passes ISO dates through.
// Anything else becomes null rather than failing the request.
func birthDateOrNil(s string) any {
	if IsISODate(s) {
		return s
	}
	if m := italianDateRe.FindStringSubmatch(s); m != nil {
		return m[3] + "-" + m[2] + "-" + m[1]
	}
	return nil
}
