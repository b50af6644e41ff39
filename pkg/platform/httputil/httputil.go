// Package httputil centralizes JSON encoding and domain error translation
// for HTTP handlers, so every endpoint speaks the same envelope.
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "shepherd/pkg/domain-errors"
)

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError translates a domain error into the JSON error envelope. Server
// faults keep their description out of the response; the code alone crosses
// the wire.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	body := map[string]string{"error": string(code)}
	if status < http.StatusInternalServerError {
		body["error_description"] = dErrors.MessageOf(err)
	}
	WriteJSON(w, status, body)
}

// DecodeJSON decodes the request body into T. On failure it writes the error
// response itself and reports false.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (T, bool) {
	var req T
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		if logger != nil {
			logger.WarnContext(r.Context(), "malformed request body", "error", err)
		}
		WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed request body"))
		return req, false
	}
	return req, true
}
