// Package transport contains the HTTP router, middleware chain, and the
// resource proxy handlers that translate the frontend API onto the Django
// backend.
package transport

import (
	"encoding/json"
	"net/http"

	"github.com/gestri/gestri-bff/model"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteResult sends a backend result to the client. Successful lists are
// wrapped in a {"data": [...]} envelope; single resources go out as-is. Error
// statuses relay the backend's body untouched, even when it is a list of
// messages, except that an empty error body becomes a generic message so
// clients never get a bare "{}" failure.
func WriteResult(w http.ResponseWriter, res model.Result) {
	body := res.Data

	if res.Status >= 400 {
		if m, ok := body.(map[string]any); ok && len(m) == 0 {
			body = model.ErrorBody{Error: "Server error"}
		}
		WriteJSON(w, res.Status, body)
		return
	}

	if list, ok := body.([]any); ok {
		WriteJSON(w, res.Status, map[string]any{"data": list})
		return
	}

	WriteJSON(w, res.Status, body)
}

// WriteList sends items under the {"data": [...]} envelope. An empty or nil
// slice encodes as an empty array, never null.
func WriteList(w http.ResponseWriter, status int, items []any) {
	if items == nil {
		items = []any{}
	}
	WriteJSON(w, status, map[string]any{"data": items})
}

// WriteValidationFailed writes a 400 with per-field messages in the same
// shape the backend uses for invalid payloads.
func WriteValidationFailed(w http.ResponseWriter, details model.FieldErrors) {
	WriteJSON(w, http.StatusBadRequest, model.NewValidationFailed(details))
}

// WriteBadRequest writes a 400 with a single message.
func WriteBadRequest(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, model.ErrorBody{Error: msg})
}

// WriteInternalError writes the 500 body used for faults inside the proxy
// itself, as opposed to errors relayed from the backend.
func WriteInternalError(w http.ResponseWriter, err error) {
	details := ""
	if err != nil {
		details = err.Error()
	}
	WriteJSON(w, http.StatusInternalServerError, model.InternalErrorBody{
		Error:   "Internal server error",
		Details: details,
	})
}
