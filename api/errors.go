package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rvalente/taskspace/storage"
	"github.com/rvalente/taskspace/store"
)

// Error codes carried in the wire-level error shape. Every rejection
// uses the same {code, message} envelope.
const (
	codeBadRequest   = "bad_request"
	codeUnauthorized = "unauthorized"
	codeForbidden    = "forbidden"
	codeConflict     = "conflict"
	codeNotFound     = "not_found"
	codeInternal     = "internal_error"
)

// signinFailedMessage is deliberately identical for every credential
// failure so responses cannot be used to enumerate accounts.
const signinFailedMessage = "invalid email or password"

// totpFailedMessage covers absent, expired, and mismatched TOTP state
// with one indistinguishable message.
const totpFailedMessage = "two-factor sign-in failed; restart sign-in"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: msg})
}

// writeInternalError logs the diagnostic detail server-side and sends
// a generic message; internals never reach the wire.
func writeInternalError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}

// mapError is the single transport-boundary translation from typed
// errors to status codes.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, store.ErrEmailTaken):
		writeError(w, http.StatusConflict, codeConflict, "email is already registered")
	case errors.Is(err, store.ErrVersionMismatch):
		writeError(w, http.StatusConflict, codeConflict, "record was modified by another request; reload and retry")
	case errors.Is(err, storage.ErrCASFailed):
		writeError(w, http.StatusConflict, codeConflict, "record was modified by another request; reload and retry")
	default:
		writeInternalError(w, "unexpected error", err)
	}
}
