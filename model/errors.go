package model

// FieldErrors collects validation messages per field, mirroring the error
// shape the backend itself produces for invalid payloads.
type FieldErrors map[string][]string

// Add appends a message for the given field.
func (fe FieldErrors) Add(field, message string) {
	fe[field] = append(fe[field], message)
}

// Empty reports whether no field has errors.
func (fe FieldErrors) Empty() bool {
	return len(fe) == 0
}

// ValidationFailed is the body returned for locally rejected payloads.
type ValidationFailed struct {
	Error   string      `json:"error"`
	Details FieldErrors `json:"details"`
}

// NewValidationFailed builds the standard validation failure body.
func NewValidationFailed(details FieldErrors) ValidationFailed {
	return ValidationFailed{Error: "Validazione fallita", Details: details}
}

// ErrorBody is a single-message JSON error payload.
type ErrorBody struct {
	Error string `json:"error"`
}

// InternalErrorBody is the payload for uncaught local failures. Details
// carries the underlying message for debugging; it is never a stack trace.
type InternalErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
