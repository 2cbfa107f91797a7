package httpx

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/accordsai/negotiation/pkg/errors"
)

func NewRequestID() string { return "req_" + uuid.NewString() }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	resp := map[string]any{
		"request_id": NewRequestID(),
		"error": map[string]any{
			"code": code, "message": message, "details": details,
		},
	}
	WriteJSON(w, status, resp)
}

// WriteDomainError renders err through its wire form so clients can
// rebuild the typed error with errors.FromWire.
func WriteDomainError(w http.ResponseWriter, err error) {
	wire := errors.ToWire(err)
	WriteError(w, StatusFor(wire.Code), wire.Code, wire.Message, wire.Details)
}

// StatusFor maps a wire error code to its HTTP status.
func StatusFor(code string) int {
	switch code {
	case "BAD_REQUEST", "BAD_JSON":
		return http.StatusBadRequest
	case "UNAUTHORIZED":
		return http.StatusUnauthorized
	case "NOT_FOUND":
		return http.StatusNotFound
	case "VALIDATION_ERROR":
		return http.StatusUnprocessableEntity
	case "INTEGRITY_ERROR", "SUBMISSION_ERROR", "SESSION_ABORTED", "REFUSED", "CONFLICT":
		return http.StatusConflict
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// PathParam returns the unescaped chi URL parameter key. Party names carry
// commas and spaces, so clients escape them.
func PathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
