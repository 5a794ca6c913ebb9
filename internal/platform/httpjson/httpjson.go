// Package httpjson centralizes JSON response writing so every endpoint and
// middleware produces the same envelopes.
package httpjson

import (
	"encoding/json"
	"net/http"

	dErrors "taskgate/pkg/domainerrors"
)

// errorEnvelope is the single error body shape returned to clients.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Write encodes v as JSON with the given status.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error to its HTTP envelope. Unknown errors
// collapse to a generic 500 so internal detail never reaches the client.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	Write(w, dErrors.ToHTTPStatus(code), errorEnvelope{
		Error:   string(code),
		Message: dErrors.MessageOf(err),
	})
}
